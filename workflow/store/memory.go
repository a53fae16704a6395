package store

import (
	"context"
	"sync"

	"github.com/BaSui01/flowstudio/workflow"
)

// MemoryStore is an in-memory GraphStore for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	defs   map[string]*workflow.Definition
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]*workflow.Definition)}
}

// Save implements GraphStore.
func (s *MemoryStore) Save(_ context.Context, def *workflow.Definition) error {
	stored, err := prepare(def)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.defs[stored.ID] = stored
	return nil
}

// Get implements GraphStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*workflow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	def, ok := s.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return def.Clone(), nil
}

// List implements GraphStore.
func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]Summary, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	out := make([]Summary, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, summarize(def))
	}
	s.mu.RUnlock()

	sortSummaries(out)
	return page(out, opts), nil
}

// Delete implements GraphStore.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.defs[id]; !ok {
		return ErrNotFound
	}
	delete(s.defs, id)
	return nil
}

// Ping implements GraphStore.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements GraphStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.defs = make(map[string]*workflow.Definition)
	return nil
}
