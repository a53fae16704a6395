package runner

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// Model
// =============================================================================

// ModelCall is a resolved model node invocation. Prompts are already
// interpolated against the run's variables.
type ModelCall struct {
	NodeID       string
	Model        string
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// ModelReply is what a model returned. Zero token counts are filled in by
// the runner's TokenCounter; a zero Cost is derived from the configured price.
type ModelReply struct {
	Text             string
	Output           any
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// ModelInvoker calls a language model.
type ModelInvoker interface {
	Invoke(ctx context.Context, call ModelCall) (ModelReply, error)
}

// ModelFunc adapts a function to ModelInvoker.
type ModelFunc func(ctx context.Context, call ModelCall) (ModelReply, error)

// Invoke calls f.
func (f ModelFunc) Invoke(ctx context.Context, call ModelCall) (ModelReply, error) {
	return f(ctx, call)
}

// =============================================================================
// Tools
// =============================================================================

// ToolRegistry resolves and calls tools by name.
type ToolRegistry interface {
	Call(ctx context.Context, name string, params map[string]any) (any, error)
}

// ToolFunc is a single tool implementation.
type ToolFunc func(ctx context.Context, params map[string]any) (any, error)

// Tools is a map-backed ToolRegistry.
type Tools map[string]ToolFunc

// Call invokes the named tool.
func (t Tools) Call(ctx context.Context, name string, params map[string]any) (any, error) {
	fn, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("tool %q is not registered", name)
	}
	return fn(ctx, params)
}

// =============================================================================
// Memory
// =============================================================================

// MemoryBackend stores values written and read by memory nodes.
type MemoryBackend interface {
	Read(ctx context.Context, namespace, key string) (any, bool, error)
	Write(ctx context.Context, namespace, key string, value any) error
}

// MemoryMap is an in-process MemoryBackend.
type MemoryMap struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryMap creates an empty in-process memory.
func NewMemoryMap() *MemoryMap {
	return &MemoryMap{values: make(map[string]any)}
}

func memoryKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + "/" + key
}

// Read returns the stored value.
func (m *MemoryMap) Read(_ context.Context, namespace, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[memoryKey(namespace, key)]
	return v, ok, nil
}

// Write stores value, replacing any previous one.
func (m *MemoryMap) Write(_ context.Context, namespace, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memoryKey(namespace, key)] = value
	return nil
}

// =============================================================================
// Retrieval
// =============================================================================

// RetrievalQuery is a resolved retrieval node request.
type RetrievalQuery struct {
	NodeID string
	Query  string
	Source string
	TopK   int
}

// Document is one retrieved item.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Retriever looks up documents for retrieval nodes.
type Retriever interface {
	Retrieve(ctx context.Context, q RetrievalQuery) ([]Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, q RetrievalQuery) ([]Document, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, q RetrievalQuery) ([]Document, error) {
	return f(ctx, q)
}
