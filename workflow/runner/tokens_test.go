package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short text rounds up to one", text: "hi", want: 1},
		{name: "latin", text: "the quick brown fox jumps", want: 6},
		{name: "cjk", text: "你好世界你好", want: 4},
		{name: "mixed", text: "hello 世界", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateTokens_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		b := rapid.String().Draw(t, "b")
		if a == "" {
			return
		}
		if EstimateTokens(a+b) < EstimateTokens(a) {
			t.Fatalf("appending %q to %q lowered the estimate", b, a)
		}
	})
}

func TestTiktokenCounter(t *testing.T) {
	c := NewTiktokenCounter(nil)
	assert.Zero(t, c.CountTokens("gpt-4o", ""))

	// Either the encoding loads or the estimate is used; both count text.
	n := c.CountTokens("gpt-4o", "count these tokens please")
	assert.Positive(t, n)
	assert.Equal(t, n, c.CountTokens("gpt-4o", "count these tokens please"))
}

func TestTokenCounterFunc(t *testing.T) {
	f := TokenCounterFunc(func(model, text string) int { return len(model) + len(text) })
	assert.Equal(t, 5, f.CountTokens("ab", "cde"))
	assert.Equal(t, EstimateTokens("some text"), EstimateCounter.CountTokens("any", "some text"))
}
