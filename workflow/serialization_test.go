package workflow

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "id": "wf-json",
  "nodes": [
    {"id": "start", "type": "start", "position": {"x": 0, "y": 0}},
    {"id": "m", "type": "model", "position": {"x": 0, "y": 100},
     "config": {"model": "gpt-4o", "temperature": 0.5, "maxTokens": 100, "topP": 0.9}},
    {"id": "x", "type": "teleport", "config": {"where": "mars"}},
    null
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "m"},
    {"id": "e2", "source": "m", "target": "missing", "sourceHandle": "error"}
  ],
  "metadata": {"name": "from json"},
  "variables": {"city": {"type": "string", "default": "Paris"}},
  "settings": {"autoSave": false, "enableValidation": true, "enableAnalytics": true}
}`

func TestFromJSON_DispatchesConfigAndKeepsUnknownFields(t *testing.T) {
	def, err := FromJSON([]byte(sampleJSON))
	require.NoError(t, err)

	require.Len(t, def.Nodes, 3, "null nodes are dropped")
	m, ok := def.Node("m")
	require.True(t, ok)
	cfg, ok := m.Config.(*ModelConfig)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", cfg.Model)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, 0.5, *cfg.Temperature)
	assert.Equal(t, []string{"topP"}, m.UnknownFields)

	x, _ := def.Node("x")
	unknown, ok := x.Config.(*UnknownConfig)
	require.True(t, ok)
	assert.Equal(t, "mars", unknown.Values["where"])

	start, _ := def.Node("start")
	assert.IsType(t, &StartConfig{}, start.Config)

	e2, _ := def.Edge("e2")
	assert.True(t, e2.IsErrorEdge())
	assert.Equal(t, "Paris", def.Variables["city"].Default)
}

func TestFromJSON_RejectsMalformedConfig(t *testing.T) {
	_, err := FromJSON([]byte(`{"nodes":[{"id":"d","type":"delay","config":{"durationMs":"soon"}}]}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`{"nodes":[{"id":"d","type":"delay","config":[1,2]}]}`))
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	def := sampleDefinition()

	s, err := def.ToJSON()
	require.NoError(t, err)
	back, err := FromJSON([]byte(s))
	require.NoError(t, err)

	assert.Equal(t, def.NodeIDs(), back.NodeIDs())
	assert.Len(t, back.Edges, len(def.Edges))
	draft, _ := back.Node("draft")
	assert.Equal(t, "Write about ${topic}", draft.Config.(*ModelConfig).Prompt)
	publish, _ := back.Node("publish")
	assert.Equal(t, "${topic}", publish.Config.(*ToolConfig).Params["title"])
	assert.Empty(t, draft.UnknownFields)
}

func TestYAMLRoundTrip(t *testing.T) {
	def := sampleDefinition()

	s, err := def.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, s, "maxTokens: 256")

	back, err := FromYAML([]byte(s))
	require.NoError(t, err)
	assert.Equal(t, def.NodeIDs(), back.NodeIDs())
	check, _ := back.Node("check")
	assert.Equal(t, "topic == \"go\"", check.Config.(*ConditionalConfig).Predicate)
	edge := back.Outgoing("check")[1]
	assert.Equal(t, HandleFalse, edge.SourceHandle)
}

func TestFromYAML_UnknownFields(t *testing.T) {
	doc := `
nodes:
  - id: wait
    type: delay
    config:
      durationMs: 10
      jitter: true
edges: []
metadata:
  name: yaml
`
	def, err := FromYAML([]byte(doc))
	require.NoError(t, err)
	n, _ := def.Node("wait")
	assert.Equal(t, 10, n.Config.(*DelayConfig).DurationMs)
	assert.Equal(t, []string{"jitter"}, n.UnknownFields)
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	def := sampleDefinition()

	for _, name := range []string{"wf.json", "wf.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, def.SaveFile(path))
		loaded, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, def.NodeIDs(), loaded.NodeIDs(), name)
	}

	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestConfigKeys(t *testing.T) {
	keys := ConfigKeys(NodeTypeModel)
	for _, k := range []string{"model", "temperature", "maxTokens", "prompt", "systemPrompt"} {
		assert.True(t, keys[k], k)
	}
	assert.Empty(t, ConfigKeys(NodeType("bogus")))
}
