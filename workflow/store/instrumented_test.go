package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowstudio/testutil/fixtures"
)

type recordedOp struct {
	backend, op string
	failed      bool
}

type opLog struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (l *opLog) RecordStoreOp(backend, operation string, _ time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, recordedOp{backend: backend, op: operation, failed: err != nil})
}

func TestInstrumented_RecordsOperations(t *testing.T) {
	log := &opLog{}
	s := NewInstrumented(NewMemoryStore(), StoreTypeMemory, log)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, fixtures.LinearWorkflow()))
	_, err := s.Get(ctx, "wf-linear")
	require.NoError(t, err)
	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "wf-linear"))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Save(ctx, fixtures.LinearWorkflow()), ErrStoreClosed)

	assert.Equal(t, []recordedOp{
		{"memory", "save", false},
		{"memory", "get", false},
		{"memory", "get", false},
		{"memory", "list", false},
		{"memory", "delete", false},
		{"memory", "save", true},
	}, log.ops)
}

func TestNewInstrumented_NilRecorder(t *testing.T) {
	inner := NewMemoryStore()
	assert.Same(t, GraphStore(inner), NewInstrumented(inner, StoreTypeMemory, nil))
}
