package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Components(t *testing.T) {
	def := NewBuilder("wf", "components").
		Start("start").
		Delay("a", 1).
		Delay("b", 1).
		Delay("c", 1).
		Delay("self", 1).
		Delay("end", 1).
		Connect("start", "a").
		Connect("a", "b").
		Connect("b", "c").
		Connect("c", "a").
		Connect("a", "self").
		Connect("self", "self").
		Connect("self", "end").
		Build()

	idx := NewIndex(def)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"self"}}, idx.Components())
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true, "self": true}, idx.StronglyConnected())
}

func TestIndex_CycleThrough(t *testing.T) {
	def := NewBuilder("wf", "detour").
		Start("start").
		Delay("l1", 1).
		Delay("l2", 1).
		Delay("d", 1).
		Connect("start", "l1").
		Connect("l1", "l2").
		Connect("l2", "l1").
		Connect("l1", "d").
		Connect("d", "l2").
		Build()

	idx := NewIndex(def)
	components := idx.Components()
	require.Len(t, components, 1)

	c, ok := idx.CycleThrough("d", components[0])
	require.True(t, ok)
	assert.Equal(t, []string{"d", "l2", "l1"}, c.Nodes)
	assert.Equal(t, "l1", c.BackEdge.Source)
	assert.Equal(t, "d", c.BackEdge.Target)

	self := NewIndex(NewBuilder("wf", "self").Delay("x", 1).Connect("x", "x").Build())
	c, ok = self.CycleThrough("x", []string{"x"})
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, c.Nodes)

	_, ok = idx.CycleThrough("start", components[0])
	assert.False(t, ok)
}
