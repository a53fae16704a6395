package validation

import (
	"sort"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/expr"
)

// References lists the variable names a node reads or writes, in order of
// appearance. Malformed expressions contribute nothing.
func References(n *workflow.Node) []string {
	refs := Reads(n)
	if c, ok := n.Config.(*workflow.VariableConfig); ok && c.Name != "" {
		refs = append([]string{c.Name}, refs...)
	}
	return dedupe(refs)
}

// Reads lists the variable names a node reads. A variable node's target is a
// write and is not included.
func Reads(n *workflow.Node) []string {
	var refs []string
	addExpr := func(src string) {
		ids, err := expr.Identifiers(src)
		if err == nil {
			refs = append(refs, ids...)
		}
	}
	addText := func(s string) { refs = append(refs, expr.References(s)...) }

	switch c := n.Config.(type) {
	case *workflow.ModelConfig:
		addText(c.Prompt)
		addText(c.SystemPrompt)
	case *workflow.ToolConfig:
		walkStrings(c.Params, addText)
	case *workflow.MemoryConfig:
		addText(c.Key)
		addText(c.Value)
	case *workflow.RetrievalConfig:
		addText(c.Query)
	case *workflow.ConditionalConfig:
		addExpr(c.Predicate)
	case *workflow.LoopConfig:
		addExpr(c.Condition)
	case *workflow.VariableConfig:
		addExpr(c.Expression)
	}
	return dedupe(refs)
}

// EdgeReferences lists the variable names used by an edge condition.
func EdgeReferences(e *workflow.Edge) []string {
	ids, err := expr.Identifiers(e.Condition)
	if err != nil {
		return nil
	}
	return ids
}

func walkStrings(v any, fn func(string)) {
	switch val := v.(type) {
	case string:
		fn(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(val[k], fn)
		}
	case []any:
		for _, item := range val {
			walkStrings(item, fn)
		}
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (v *validator) declared(name string) bool {
	if Builtins[name] {
		return true
	}
	_, ok := v.def.Variables[name]
	return ok
}

func (v *validator) checkVariables() {
	for _, n := range v.idx.Nodes() {
		for _, name := range References(n) {
			if !v.declared(name) {
				v.errorf(n.ID, "", CodeUndeclaredVariable, "node %s references undeclared variable %q", n.ID, name)
			}
		}
	}
	for _, e := range v.def.Edges {
		if e == nil || e.Condition == "" {
			continue
		}
		for _, name := range EdgeReferences(e) {
			if !v.declared(name) {
				v.errorf("", e.ID, CodeUndeclaredVariable, "edge %s references undeclared variable %q", e.ID, name)
			}
		}
	}
}
