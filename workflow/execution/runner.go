package execution

import (
	"context"

	"github.com/BaSui01/flowstudio/workflow"
)

// Request is what a runner receives for one execution.
type Request struct {
	ExecutionID string
	Definition  *workflow.Definition
	Input       map[string]any
}

// Reporter is handed to a runner to publish progress for its execution.
// Calls made after the execution reached a terminal state are ignored.
type Reporter interface {
	// Progress reports completed out of total steps.
	Progress(completed, total int)
	// NodeStarted marks a step as in flight.
	NodeStarted(nodeID string, nodeType workflow.NodeType)
	// NodeFinished acknowledges a step. A nil err means success.
	NodeFinished(nodeID string, err error)
	// Usage adds resource consumption.
	Usage(u Usage)
	// Log appends an entry to the execution log.
	Log(level LogLevel, nodeID, message string)
}

// Runner dispatches a validated definition. Run blocks until the run ends
// and returns its result. Cancelling ctx asks the run to stop; the runner
// acknowledges by returning.
type Runner interface {
	Run(ctx context.Context, req Request, reporter Reporter) (any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req Request, reporter Reporter) (any, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, req Request, reporter Reporter) (any, error) {
	return f(ctx, req, reporter)
}
