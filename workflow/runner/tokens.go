package runner

import (
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter counts tokens of text for a model.
type TokenCounter interface {
	CountTokens(model, text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(model, text string) int

// CountTokens calls f.
func (f TokenCounterFunc) CountTokens(model, text string) int { return f(model, text) }

// EstimateTokens approximates a token count from characters: CJK runes
// count ~1.5 per token, everything else ~4.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateCounter counts with EstimateTokens regardless of model.
var EstimateCounter TokenCounter = TokenCounterFunc(func(_, text string) int { return EstimateTokens(text) })

const fallbackEncoding = "cl100k_base"

// TiktokenCounter counts with the model's tiktoken encoding and falls back
// to EstimateTokens when no encoding can be loaded. Encodings are loaded
// lazily and cached per model.
type TiktokenCounter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
	failed   map[string]bool
	logger   *zap.Logger
}

// NewTiktokenCounter creates a counter.
func NewTiktokenCounter(logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{
		encoders: make(map[string]*tiktoken.Tiktoken),
		failed:   make(map[string]bool),
		logger:   logger.With(zap.String("component", "token_counter")),
	}
}

// CountTokens implements TokenCounter.
func (c *TiktokenCounter) CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := c.encoder(model)
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) encoder(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[model]; ok {
		return enc
	}
	if c.failed[model] {
		return nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		c.failed[model] = true
		c.logger.Warn("tiktoken encoding unavailable, estimating tokens",
			zap.String("model", model),
			zap.Error(err),
		)
		return nil
	}
	c.encoders[model] = enc
	return enc
}
