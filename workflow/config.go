package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// NodeConfig is the type-specific configuration of a node.
// The set of implementations is closed; use a type switch to dispatch.
type NodeConfig interface {
	NodeType() NodeType
	cloneConfig() NodeConfig
}

// StartConfig configures the entry node.
type StartConfig struct {
	InputSchema map[string]string `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
}

// ModelConfig configures a language model call.
type ModelConfig struct {
	Model        string   `json:"model" yaml:"model"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens" yaml:"maxTokens"`
	Prompt       string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
}

// ToolConfig configures a tool invocation.
type ToolConfig struct {
	ToolName  string         `json:"toolName" yaml:"toolName"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	TimeoutMs int            `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// Memory operations.
const (
	MemoryRead  = "read"
	MemoryWrite = "write"
)

// MemoryConfig configures a memory read or write.
type MemoryConfig struct {
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`
	Key       string `json:"key" yaml:"key"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
}

// RetrievalConfig configures a retrieval query.
type RetrievalConfig struct {
	Query     string `json:"query" yaml:"query"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	TopK      int    `json:"topK,omitempty" yaml:"topK,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// ConditionalConfig configures a branch point.
type ConditionalConfig struct {
	Predicate string `json:"predicate" yaml:"predicate"`
}

// LoopConfig configures a loop. At least one of Condition or MaxIterations bounds it.
type LoopConfig struct {
	Condition     string `json:"condition,omitempty" yaml:"condition,omitempty"`
	MaxIterations int    `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
}

// Bounded reports whether the loop declares a termination bound.
func (c *LoopConfig) Bounded() bool {
	return c != nil && (c.MaxIterations > 0 || strings.TrimSpace(c.Condition) != "")
}

// VariableConfig assigns a workflow variable from an expression or literal value.
type VariableConfig struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
	Value      any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// ErrorHandlerConfig configures failure handling for the nodes routed to it.
type ErrorHandlerConfig struct {
	MaxRetries   int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	RetryDelayMs int `json:"retryDelayMs,omitempty" yaml:"retryDelayMs,omitempty"`
	Fallback     any `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// DelayConfig configures a pause.
type DelayConfig struct {
	DurationMs int `json:"durationMs" yaml:"durationMs"`
}

// UnknownConfig preserves the raw config of a node whose type is not recognised.
type UnknownConfig struct {
	Type   NodeType       `json:"-" yaml:"-"`
	Values map[string]any `json:"-" yaml:"-"`
}

func (*StartConfig) NodeType() NodeType        { return NodeTypeStart }
func (*ModelConfig) NodeType() NodeType        { return NodeTypeModel }
func (*ToolConfig) NodeType() NodeType         { return NodeTypeTool }
func (*MemoryConfig) NodeType() NodeType       { return NodeTypeMemory }
func (*RetrievalConfig) NodeType() NodeType    { return NodeTypeRetrieval }
func (*ConditionalConfig) NodeType() NodeType  { return NodeTypeConditional }
func (*LoopConfig) NodeType() NodeType         { return NodeTypeLoop }
func (*VariableConfig) NodeType() NodeType     { return NodeTypeVariable }
func (*ErrorHandlerConfig) NodeType() NodeType { return NodeTypeErrorHandler }
func (*DelayConfig) NodeType() NodeType        { return NodeTypeDelay }
func (c *UnknownConfig) NodeType() NodeType    { return c.Type }

func (c *StartConfig) cloneConfig() NodeConfig {
	out := *c
	if c.InputSchema != nil {
		out.InputSchema = make(map[string]string, len(c.InputSchema))
		for k, v := range c.InputSchema {
			out.InputSchema[k] = v
		}
	}
	return &out
}

func (c *ModelConfig) cloneConfig() NodeConfig {
	out := *c
	if c.Temperature != nil {
		t := *c.Temperature
		out.Temperature = &t
	}
	return &out
}

func (c *ToolConfig) cloneConfig() NodeConfig {
	out := *c
	if c.Params != nil {
		out.Params = cloneValue(c.Params).(map[string]any)
	}
	return &out
}

func (c *MemoryConfig) cloneConfig() NodeConfig      { out := *c; return &out }
func (c *RetrievalConfig) cloneConfig() NodeConfig   { out := *c; return &out }
func (c *ConditionalConfig) cloneConfig() NodeConfig { out := *c; return &out }
func (c *LoopConfig) cloneConfig() NodeConfig        { out := *c; return &out }
func (c *DelayConfig) cloneConfig() NodeConfig       { out := *c; return &out }

func (c *VariableConfig) cloneConfig() NodeConfig {
	out := *c
	out.Value = cloneValue(c.Value)
	return &out
}

func (c *ErrorHandlerConfig) cloneConfig() NodeConfig {
	out := *c
	out.Fallback = cloneValue(c.Fallback)
	return &out
}

func (c *UnknownConfig) cloneConfig() NodeConfig {
	out := *c
	if c.Values != nil {
		out.Values = cloneValue(c.Values).(map[string]any)
	}
	return &out
}

// cloneValue deep-copies JSON-like values.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// DefaultConfig returns an empty config for the node type, or nil for unknown types.
func DefaultConfig(t NodeType) NodeConfig {
	switch t {
	case NodeTypeStart:
		return &StartConfig{}
	case NodeTypeModel:
		return &ModelConfig{}
	case NodeTypeTool:
		return &ToolConfig{}
	case NodeTypeMemory:
		return &MemoryConfig{}
	case NodeTypeRetrieval:
		return &RetrievalConfig{}
	case NodeTypeConditional:
		return &ConditionalConfig{}
	case NodeTypeLoop:
		return &LoopConfig{}
	case NodeTypeVariable:
		return &VariableConfig{}
	case NodeTypeErrorHandler:
		return &ErrorHandlerConfig{}
	case NodeTypeDelay:
		return &DelayConfig{}
	default:
		return nil
	}
}

// DecodeConfig decodes a JSON config object for the given node type.
// It returns the typed config and the sorted list of keys the type does not define.
func DecodeConfig(t NodeType, raw json.RawMessage) (NodeConfig, []string, error) {
	var fields map[string]json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, nil, fmt.Errorf("config must be an object: %w", err)
		}
	}

	cfg := DefaultConfig(t)
	if cfg == nil {
		values := make(map[string]any)
		if len(fields) > 0 {
			if err := json.Unmarshal(raw, &values); err != nil {
				return nil, nil, fmt.Errorf("decode config: %w", err)
			}
		}
		return &UnknownConfig{Type: t, Values: values}, nil, nil
	}
	if len(fields) == 0 {
		return cfg, nil, nil
	}

	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, nil, fmt.Errorf("decode %s config: %w", t, err)
	}

	known := ConfigKeys(t)
	var unknown []string
	for k := range fields {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return cfg, unknown, nil
}

// ConfigKeys returns the set of JSON keys defined by the config of type t.
func ConfigKeys(t NodeType) map[string]bool {
	cfg := DefaultConfig(t)
	keys := make(map[string]bool)
	if cfg == nil {
		return keys
	}
	rt := reflect.TypeOf(cfg).Elem()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}
