package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func temp(f float64) *float64 { return &f }

func sampleDefinition() *Definition {
	return NewBuilder("wf-1", "sample").
		Variable("topic", "string", "go").
		Start("start").
		Model("draft", ModelConfig{Model: "gpt-4o", Temperature: temp(0.2), MaxTokens: 256, Prompt: "Write about ${topic}"}).
		Conditional("check", "topic == \"go\"").
		Tool("publish", ToolConfig{ToolName: "publish", Params: map[string]any{"title": "${topic}"}}).
		Delay("wait", 100).
		Connect("start", "draft").
		Connect("draft", "check").
		ConnectVia("check", "publish", HandleTrue).
		ConnectVia("check", "wait", HandleFalse).
		Build()
}

func TestDefinition_AddNode(t *testing.T) {
	def := New("wf", "test")

	assert.True(t, def.AddNode(NewNode("a", NodeTypeStart)))
	assert.False(t, def.AddNode(NewNode("a", NodeTypeModel)), "duplicate id must be ignored")
	assert.False(t, def.AddNode(nil))
	assert.False(t, def.AddNode(&Node{Type: NodeTypeDelay}), "empty id must be ignored")
	assert.Len(t, def.Nodes, 1)
	assert.Equal(t, NodeTypeStart, def.Nodes[0].Type)
}

func TestDefinition_AddEdge(t *testing.T) {
	def := New("wf", "test")
	def.AddNode(NewNode("a", NodeTypeStart))
	def.AddNode(NewNode("b", NodeTypeDelay))

	tests := []struct {
		name string
		edge *Edge
		want bool
	}{
		{name: "valid", edge: NewEdge("e1", "a", "b"), want: true},
		{name: "duplicate id", edge: NewEdge("e1", "b", "a"), want: false},
		{name: "dangling source", edge: NewEdge("e2", "x", "b"), want: false},
		{name: "dangling target", edge: NewEdge("e3", "a", "x"), want: false},
		{name: "same route", edge: NewEdge("e4", "a", "b"), want: false},
		{name: "different handle", edge: NewEdge("e5", "a", "b").WithHandle(HandleTrue), want: true},
		{name: "different condition", edge: NewEdge("e6", "a", "b").WithCondition("x > 1"), want: true},
		{name: "nil", edge: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, def.AddEdge(tt.edge))
		})
	}
	assert.Len(t, def.Edges, 3)
}

func TestDefinition_RemoveNodeCascades(t *testing.T) {
	def := sampleDefinition()

	require.True(t, def.RemoveNode("check"))
	assert.False(t, def.HasNode("check"))
	for _, e := range def.Edges {
		assert.NotEqual(t, "check", e.Source)
		assert.NotEqual(t, "check", e.Target)
	}
	assert.Len(t, def.Edges, 1)
	assert.False(t, def.RemoveNode("check"), "second removal is a no-op")
}

func TestDefinition_MutationsOnUnknownIDsAreNoOps(t *testing.T) {
	def := sampleDefinition()
	before := def.Clone()

	assert.False(t, def.RemoveNode("ghost"))
	assert.False(t, def.RemoveEdge("ghost"))
	assert.False(t, def.UpdateNodeConfig("ghost", &DelayConfig{DurationMs: 1}))
	assert.False(t, def.MoveNode("ghost", Position{X: 1}))
	assert.False(t, def.UpdateNode("ghost", "x", "y"))
	assert.False(t, def.RenameVariable("ghost", "other"))
	assert.False(t, def.RemoveVariable("ghost"))

	assert.True(t, def.Equal(before))
}

func TestDefinition_UpdateNodeConfig(t *testing.T) {
	def := sampleDefinition()

	assert.False(t, def.UpdateNodeConfig("wait", &ModelConfig{Model: "x"}), "type mismatch is ignored")
	assert.False(t, def.UpdateNodeConfig("wait", nil))
	assert.False(t, def.UpdateNodeConfig("wait", &DelayConfig{DurationMs: 100}), "identical config is not a change")
	assert.True(t, def.UpdateNodeConfig("wait", &DelayConfig{DurationMs: 250}))

	n, _ := def.Node("wait")
	assert.Equal(t, 250, n.Config.(*DelayConfig).DurationMs)
}

func TestDefinition_RenameVariable(t *testing.T) {
	def := sampleDefinition()
	def.AddEdge(NewEdge("guard", "draft", "wait").WithCondition("topic != \"\""))
	def.AddNode(&Node{ID: "assign", Type: NodeTypeVariable, Config: &VariableConfig{Name: "topic", Expression: "topic"}})
	def.DeclareVariable("other", Variable{Type: "string"})

	assert.False(t, def.RenameVariable("topic", "other"), "renaming onto an existing name is ignored")
	assert.False(t, def.RenameVariable("topic", ""))
	require.True(t, def.RenameVariable("topic", "subject"))

	_, hasOld := def.Variables["topic"]
	assert.False(t, hasOld)
	assert.Contains(t, def.Variables, "subject")

	draft, _ := def.Node("draft")
	assert.Equal(t, "Write about ${subject}", draft.Config.(*ModelConfig).Prompt)
	check, _ := def.Node("check")
	assert.Equal(t, "subject == \"go\"", check.Config.(*ConditionalConfig).Predicate)
	publish, _ := def.Node("publish")
	assert.Equal(t, "${subject}", publish.Config.(*ToolConfig).Params["title"])
	assign, _ := def.Node("assign")
	assert.Equal(t, "subject", assign.Config.(*VariableConfig).Name)
	assert.Equal(t, "subject", assign.Config.(*VariableConfig).Expression)
	guard, _ := def.Edge("guard")
	assert.Equal(t, "subject != \"\"", guard.Condition)
}

func TestDefinition_CloneIsIndependent(t *testing.T) {
	def := sampleDefinition()
	c := def.Clone()
	require.True(t, def.Equal(c))

	c.Nodes[1].Config.(*ModelConfig).Prompt = "changed"
	*c.Nodes[1].Config.(*ModelConfig).Temperature = 1.5
	c.Nodes[3].Config.(*ToolConfig).Params["title"] = "changed"
	c.Edges[0].Target = "wait"
	c.Variables["topic"] = Variable{Type: "number"}

	draft, _ := def.Node("draft")
	assert.Equal(t, "Write about ${topic}", draft.Config.(*ModelConfig).Prompt)
	assert.Equal(t, 0.2, *draft.Config.(*ModelConfig).Temperature)
	publish, _ := def.Node("publish")
	assert.Equal(t, "${topic}", publish.Config.(*ToolConfig).Params["title"])
	assert.Equal(t, "draft", def.Edges[0].Target)
	assert.Equal(t, "string", def.Variables["topic"].Type)
}

func TestDefinition_Queries(t *testing.T) {
	def := sampleDefinition()

	assert.Len(t, def.Outgoing("check"), 2)
	assert.Len(t, def.Incoming("check"), 1)
	assert.Len(t, def.StartNodes(), 1)
	assert.Equal(t, []string{"start", "draft", "check", "publish", "wait"}, def.NodeIDs())
	assert.Equal(t, HandleTrue, def.Outgoing("check")[0].BranchKey())
}

// Feature: workflow-graph-model, Property 1: mutations preserve structural invariants
func TestProperty_MutationsPreserveInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	type op struct {
		Kind int
		A, B int
	}
	genOp := gopter.CombineGens(gen.IntRange(0, 3), gen.IntRange(0, 7), gen.IntRange(0, 7)).
		Map(func(v []interface{}) op { return op{Kind: v[0].(int), A: v[1].(int), B: v[2].(int)} })

	properties.Property("node ids unique, edge ids unique, endpoints resolve", prop.ForAll(
		func(ops []op) bool {
			def := New("wf", "prop")
			edgeSeq := 0
			for _, o := range ops {
				a, b := fmt.Sprintf("n%d", o.A), fmt.Sprintf("n%d", o.B)
				switch o.Kind {
				case 0:
					def.AddNode(NewNode(a, NodeTypeDelay))
				case 1:
					def.RemoveNode(a)
				case 2:
					edgeSeq++
					def.AddEdge(NewEdge(fmt.Sprintf("e%d", edgeSeq), a, b))
				case 3:
					def.RemoveEdge(fmt.Sprintf("e%d", o.A))
				}
			}

			nodeIDs := map[string]bool{}
			for _, n := range def.Nodes {
				if nodeIDs[n.ID] {
					return false
				}
				nodeIDs[n.ID] = true
			}
			edgeIDs := map[string]bool{}
			for _, e := range def.Edges {
				if edgeIDs[e.ID] || !nodeIDs[e.Source] || !nodeIDs[e.Target] {
					return false
				}
				edgeIDs[e.ID] = true
			}
			return true
		},
		gen.SliceOf(genOp),
	))

	properties.TestingRun(t)
}
