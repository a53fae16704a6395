package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/flowstudio/workflow"
)

// OpRecorder receives the outcome of store operations.
type OpRecorder interface {
	RecordStoreOp(backend, operation string, duration time.Duration, err error)
}

// Instrumented times every operation of the wrapped store. ErrNotFound is
// an answer, not a failure, and is recorded as success.
type Instrumented struct {
	inner    GraphStore
	backend  string
	recorder OpRecorder
}

var _ GraphStore = (*Instrumented)(nil)

// NewInstrumented wraps inner. A nil recorder returns inner unchanged.
func NewInstrumented(inner GraphStore, backend StoreType, recorder OpRecorder) GraphStore {
	if recorder == nil {
		return inner
	}
	if backend == "" {
		backend = StoreTypeMemory
	}
	return &Instrumented{inner: inner, backend: string(backend), recorder: recorder}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.recorder.RecordStoreOp(s.backend, op, time.Since(start), err)
}

// Save implements GraphStore.
func (s *Instrumented) Save(ctx context.Context, def *workflow.Definition) error {
	start := time.Now()
	err := s.inner.Save(ctx, def)
	s.observe("save", start, err)
	return err
}

// Get implements GraphStore.
func (s *Instrumented) Get(ctx context.Context, id string) (*workflow.Definition, error) {
	start := time.Now()
	def, err := s.inner.Get(ctx, id)
	s.observe("get", start, err)
	return def, err
}

// List implements GraphStore.
func (s *Instrumented) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	start := time.Now()
	out, err := s.inner.List(ctx, opts)
	s.observe("list", start, err)
	return out, err
}

// Delete implements GraphStore.
func (s *Instrumented) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}

// Ping implements GraphStore.
func (s *Instrumented) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close implements GraphStore.
func (s *Instrumented) Close() error {
	return s.inner.Close()
}
