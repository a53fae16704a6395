package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowstudio/testutil"
	"github.com/BaSui01/flowstudio/testutil/fixtures"
	"github.com/BaSui01/flowstudio/workflow"
)

type countingRecorder struct {
	mu       sync.Mutex
	started  []string
	finished []Status
	nodes    map[workflow.NodeType]int
	tokens   int
	panics   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{nodes: make(map[workflow.NodeType]int)}
}

func (r *countingRecorder) RecordExecutionStarted(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, workflowID)
}

func (r *countingRecorder) RecordExecutionFinished(_ string, status Status, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, status)
}

func (r *countingRecorder) RecordNodeFinished(nodeType workflow.NodeType, _ bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[nodeType]++
}

func (r *countingRecorder) RecordUsage(_ string, u Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens += u.TokensUsed
}

func (r *countingRecorder) RecordHandlerPanic() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panics++
}

func (r *countingRecorder) snapshot() (started int, finished []Status, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), append([]Status(nil), r.finished...), r.tokens
}

func TestRecorders_FanOut(t *testing.T) {
	a, b := newCountingRecorder(), newCountingRecorder()
	rec := Recorders(a, nil, b)

	rec.RecordExecutionStarted("wf")
	rec.RecordExecutionFinished("wf", StatusFailed, time.Second)
	rec.RecordNodeFinished(workflow.NodeTypeTool, true, time.Millisecond)
	rec.RecordUsage("wf", Usage{TokensUsed: 7})
	rec.RecordHandlerPanic()

	for _, r := range []*countingRecorder{a, b} {
		started, finished, tokens := r.snapshot()
		assert.Equal(t, 1, started)
		assert.Equal(t, []Status{StatusFailed}, finished)
		assert.Equal(t, 7, tokens)
		assert.Equal(t, 1, r.nodes[workflow.NodeTypeTool])
		assert.Equal(t, 1, r.panics)
	}
}

func TestRecorders_SingleIsUnwrapped(t *testing.T) {
	a := newCountingRecorder()
	assert.Same(t, a, Recorders(nil, a))
}

func TestCoordinator_ReportsToRecorder(t *testing.T) {
	rec := newCountingRecorder()
	c := newTestCoordinator(t, RunnerFunc(func(ctx context.Context, req Request, r Reporter) (any, error) {
		r.NodeStarted("search", workflow.NodeTypeTool)
		r.Usage(Usage{TokensUsed: 42})
		r.NodeFinished("search", nil)
		if req.Input["fail"] == true {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}), DefaultConfig(), WithRecorder(rec))

	ok, err := c.Start(testutil.TestContext(t), fixtures.LinearWorkflow(), nil)
	require.NoError(t, err)
	waitStatus(t, c, ok, StatusCompleted)

	bad, err := c.Start(testutil.TestContext(t), fixtures.LinearWorkflow(), map[string]any{"fail": true})
	require.NoError(t, err)
	waitStatus(t, c, bad, StatusFailed)

	started, finished, tokens := rec.snapshot()
	assert.Equal(t, 2, started)
	assert.ElementsMatch(t, []Status{StatusCompleted, StatusFailed}, finished)
	assert.Equal(t, 84, tokens)
	rec.mu.Lock()
	assert.Equal(t, 2, rec.nodes[workflow.NodeTypeTool])
	rec.mu.Unlock()
}
