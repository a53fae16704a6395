package execution

import (
	"fmt"

	"github.com/BaSui01/flowstudio/workflow"
)

// reporter binds Reporter calls to one execution entry.
type reporter struct {
	c *Coordinator
	e *entry
}

func (r *reporter) Progress(completed, total int) {
	r.c.progress(r.e, completed, total)
}

func (r *reporter) NodeStarted(nodeID string, nodeType workflow.NodeType) {
	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exec.Status.Terminal() {
		return
	}

	e.inFlight[nodeID]++
	e.exec.CurrentStep = nodeID
	e.exec.Nodes = append(e.exec.Nodes, NodeRun{
		NodeID:    nodeID,
		NodeType:  nodeType,
		StartTime: r.c.now(),
		Status:    StatusRunning,
	})
	r.c.appendLogLocked(e, LogDebug, nodeID, fmt.Sprintf("%s node started", nodeType))
	r.c.saveLocked(e)
}

// NodeFinished closes the latest open run of the node. When a stop is
// pending and this was the last step in flight, the execution is cancelled.
func (r *reporter) NodeFinished(nodeID string, err error) {
	e := r.e
	e.mu.Lock()
	if e.exec.Status.Terminal() {
		e.mu.Unlock()
		return
	}

	if n := e.inFlight[nodeID]; n > 1 {
		e.inFlight[nodeID] = n - 1
	} else {
		delete(e.inFlight, nodeID)
	}

	now := r.c.now()
	for i := len(e.exec.Nodes) - 1; i >= 0; i-- {
		run := &e.exec.Nodes[i]
		if run.NodeID != nodeID || run.Status != StatusRunning {
			continue
		}
		run.EndTime = now
		run.Duration = now.Sub(run.StartTime)
		run.Status = StatusCompleted
		if err != nil {
			run.Status = StatusFailed
			run.Error = err.Error()
		}
		r.c.recorder.RecordNodeFinished(run.NodeType, err != nil, run.Duration)
		break
	}
	if err != nil {
		r.c.appendLogLocked(e, LogError, nodeID, fmt.Sprintf("node %s failed: %v", nodeID, err))
	}

	finished := false
	if e.stopping && len(e.inFlight) == 0 {
		finished = r.c.terminateLocked(e, StatusCancelled, nil, nil)
	} else {
		r.c.saveLocked(e)
	}
	e.mu.Unlock()

	if finished {
		r.c.retire(e.exec.ID)
	}
}

func (r *reporter) Usage(u Usage) {
	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exec.Status.Terminal() {
		return
	}
	e.exec.Metrics.apply(u)
	r.c.saveLocked(e)
	r.c.recorder.RecordUsage(e.exec.WorkflowID, u)
}

func (r *reporter) Log(level LogLevel, nodeID, message string) {
	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exec.Status.Terminal() {
		return
	}
	r.c.appendLogLocked(e, level, nodeID, message)
	r.c.saveLocked(e)
}
