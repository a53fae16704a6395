package execution

import (
	"time"

	"github.com/BaSui01/flowstudio/workflow"
)

// Recorder receives lifecycle measurements. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	RecordExecutionStarted(workflowID string)
	RecordExecutionFinished(workflowID string, status Status, duration time.Duration)
	RecordNodeFinished(nodeType workflow.NodeType, failed bool, duration time.Duration)
	RecordUsage(workflowID string, u Usage)
	RecordHandlerPanic()
}

type nopRecorder struct{}

func (nopRecorder) RecordExecutionStarted(string)                             {}
func (nopRecorder) RecordExecutionFinished(string, Status, time.Duration)     {}
func (nopRecorder) RecordNodeFinished(workflow.NodeType, bool, time.Duration) {}
func (nopRecorder) RecordUsage(string, Usage)                                 {}
func (nopRecorder) RecordHandlerPanic()                                       {}

// Recorders fans measurements out to every non-nil recorder.
func Recorders(rs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RecordExecutionStarted(workflowID string) {
	for _, r := range m {
		r.RecordExecutionStarted(workflowID)
	}
}

func (m multiRecorder) RecordExecutionFinished(workflowID string, status Status, d time.Duration) {
	for _, r := range m {
		r.RecordExecutionFinished(workflowID, status, d)
	}
}

func (m multiRecorder) RecordNodeFinished(nodeType workflow.NodeType, failed bool, d time.Duration) {
	for _, r := range m {
		r.RecordNodeFinished(nodeType, failed, d)
	}
}

func (m multiRecorder) RecordUsage(workflowID string, u Usage) {
	for _, r := range m {
		r.RecordUsage(workflowID, u)
	}
}

func (m multiRecorder) RecordHandlerPanic() {
	for _, r := range m {
		r.RecordHandlerPanic()
	}
}
