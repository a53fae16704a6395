package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrEmpty is returned by Check when the expression is blank.
var ErrEmpty = errors.New("empty expression")

// Evaluate evaluates an expression string against the given variables and returns a boolean result.
// Supported operators: ==, !=, >, <, >=, <=, &&, ||, !
// Supported literals: numbers, quoted strings, true, false, null
// Dot-notation field access: result.score looks up vars["result"].(map[string]any)["score"]
func Evaluate(src string, vars map[string]any) (bool, error) {
	val, err := EvaluateValue(src, vars)
	if err != nil {
		return false, err
	}
	return toBool(val), nil
}

// EvaluateValue evaluates an expression and returns its raw value.
// A blank expression evaluates to nil.
func EvaluateValue(src string, vars map[string]any) (any, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	p := &parser{tokens: tokens, vars: vars}
	val, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.tokens[p.pos].value, p.tokens[p.pos].start)
	}
	return val, nil
}

// Check reports whether src is a well-formed expression.
func Check(src string) error {
	if strings.TrimSpace(src) == "" {
		return ErrEmpty
	}
	_, err := EvaluateValue(src, nil)
	return err
}

// Identifiers returns the distinct root identifiers referenced by src, in order of appearance.
// Literal keywords are excluded; "user.name" contributes "user".
func Identifiers(src string) ([]string, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokens {
		if t.kind != tkIdent || isKeyword(t.value) {
			continue
		}
		root := rootOf(t.value)
		if !seen[root] {
			seen[root] = true
			out = append(out, root)
		}
	}
	return out, nil
}

// RenameIdentifier rewrites every identifier whose root is oldName so that it uses newName.
// Expressions that fail to tokenize are returned unchanged.
func RenameIdentifier(src, oldName, newName string) string {
	tokens, err := tokenize(src)
	if err != nil {
		return src
	}
	runes := []rune(src)
	var sb strings.Builder
	last := 0
	for _, t := range tokens {
		if t.kind != tkIdent || isKeyword(t.value) || rootOf(t.value) != oldName {
			continue
		}
		sb.WriteString(string(runes[last:t.start]))
		sb.WriteString(newName)
		sb.WriteString(strings.TrimPrefix(t.value, oldName))
		last = t.end
	}
	sb.WriteString(string(runes[last:]))
	return sb.String()
}

func rootOf(ident string) string {
	if i := strings.IndexByte(ident, '.'); i >= 0 {
		return ident[:i]
	}
	return ident
}

func isKeyword(ident string) bool {
	switch ident {
	case "true", "false", "null":
		return true
	}
	return false
}

// --- Token types ---

type tokenKind int

const (
	tkNumber tokenKind = iota // 42, 0.8, -3.14
	tkString                  // "hello"
	tkIdent                   // variable name or keyword
	tkOp                      // ==, !=, >, <, >=, <=, &&, ||, !
	tkLParen                  // (
	tkRParen                  // )
)

type token struct {
	kind  tokenKind
	value string
	start int
	end   int
}

// --- Tokenizer ---

func tokenize(src string) ([]token, error) {
	var tokens []token
	i := 0
	runes := []rune(src)

	for i < len(runes) {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}

		if ch == '(' {
			tokens = append(tokens, token{tkLParen, "(", i, i + 1})
			i++
			continue
		}
		if ch == ')' {
			tokens = append(tokens, token{tkRParen, ")", i, i + 1})
			i++
			continue
		}

		if ch == '"' || ch == '\'' {
			s, n, err := readString(runes, i, ch)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s, i, n})
			i = n
			continue
		}

		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			switch two {
			case "==", "!=", ">=", "<=", "&&", "||":
				tokens = append(tokens, token{tkOp, two, i, i + 2})
				i += 2
				continue
			}
		}

		if ch == '>' || ch == '<' || ch == '!' {
			tokens = append(tokens, token{tkOp, string(ch), i, i + 1})
			i++
			continue
		}

		// '-' is a sign only at the start or after an operator or opening parenthesis.
		if isDigit(ch) || (ch == '-' && i+1 < len(runes) && isDigit(runes[i+1]) && isNumberStart(tokens)) {
			num, n := readNumber(runes, i)
			tokens = append(tokens, token{tkNumber, num, i, n})
			i = n
			continue
		}

		if isIdentStart(ch) {
			ident, n := readIdent(runes, i)
			if strings.HasSuffix(ident, ".") || strings.Contains(ident, "..") {
				return nil, fmt.Errorf("malformed field access %q at position %d", ident, i)
			}
			tokens = append(tokens, token{tkIdent, ident, i, n})
			i = n
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
	}

	return tokens, nil
}

func readString(runes []rune, start int, quote rune) (string, int, error) {
	i := start + 1
	var sb strings.Builder
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			sb.WriteRune(runes[i+1])
			i += 2
			continue
		}
		if runes[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func readNumber(runes []rune, start int) (string, int) {
	i := start
	if i < len(runes) && runes[i] == '-' {
		i++
	}
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
	}
	return string(runes[start:i]), i
}

func readIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func isDigit(ch rune) bool      { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

func isNumberStart(preceding []token) bool {
	if len(preceding) == 0 {
		return true
	}
	last := preceding[len(preceding)-1]
	return last.kind == tkOp || last.kind == tkLParen
}

// --- Recursive descent parser ---

type parser struct {
	tokens []token
	pos    int
	vars   map[string]any
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// parseOr handles: expr || expr
func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() != nil && p.peek().kind == tkOp && p.peek().value == "||" {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = toBool(left) || toBool(right)
	}
	return left, nil
}

// parseAnd handles: expr && expr
func (p *parser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek() != nil && p.peek().kind == tkOp && p.peek().value == "&&" {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = toBool(left) && toBool(right)
	}
	return left, nil
}

// parseComparison handles: expr (==|!=|>|<|>=|<=) expr
func (p *parser) parseComparison() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek() != nil && p.peek().kind == tkOp {
		op := p.peek().value
		switch op {
		case "==", "!=", ">", "<", ">=", "<=":
			p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return evalComparison(left, op, right), nil
		}
	}
	return left, nil
}

// parseUnary handles: !expr, primary
func (p *parser) parseUnary() (any, error) {
	if p.peek() != nil && p.peek().kind == tkOp && p.peek().value == "!" {
		p.advance()
		val, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return !toBool(val), nil
	}
	return p.parsePrimary()
}

// parsePrimary handles: literals, identifiers, parenthesized expressions
func (p *parser) parsePrimary() (any, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		return strconv.ParseFloat(t.value, 64)

	case tkString:
		p.advance()
		return t.value, nil

	case tkIdent:
		p.advance()
		switch t.value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		default:
			return Resolve(t.value, p.vars), nil
		}

	case tkLParen:
		p.advance()
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() == nil || p.peek().kind != tkRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return val, nil

	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, t.start)
	}
}

// --- Evaluation helpers ---

// Resolve resolves a dot-notation variable path from the vars map.
// "status" -> vars["status"]
// "result.score" -> vars["result"].(map[string]any)["score"]
func Resolve(path string, vars map[string]any) any {
	parts := strings.Split(path, ".")
	var current any = vars

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// evalComparison evaluates a comparison between two values.
// nil is treated as less than any non-nil value; two nils are equal.
func evalComparison(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		if op == "!=" {
			return true
		}
		if op == "==" {
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			switch op {
			case "==":
				return lb == rb
			case "!=":
				return lb != rb
			}
			return false
		}
	}

	lf, lok := ToFloat64(left)
	rf, rok := ToFloat64(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}

	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

// toBool converts a value to boolean.
func toBool(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		return true
	}
}

// ToFloat64 attempts to convert a value to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
