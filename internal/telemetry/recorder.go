package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
)

const meterName = "github.com/BaSui01/flowstudio/internal/telemetry"

// Recorder exports execution measurements as OTel metrics.
type Recorder struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	duration metric.Float64Histogram
	nodes    metric.Int64Counter
	nodeTime metric.Float64Histogram
	tokens   metric.Int64Counter
	cost     metric.Float64Counter
	panics   metric.Int64Counter
}

var _ execution.Recorder = (*Recorder)(nil)

// NewRecorder creates the instruments on mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	m := mp.Meter(meterName)
	r := &Recorder{}
	var err error

	if r.started, err = m.Int64Counter("flowstudio.executions.started",
		metric.WithDescription("Executions created")); err != nil {
		return nil, fmt.Errorf("create started counter: %w", err)
	}
	if r.finished, err = m.Int64Counter("flowstudio.executions.finished",
		metric.WithDescription("Executions that reached a terminal status")); err != nil {
		return nil, fmt.Errorf("create finished counter: %w", err)
	}
	if r.duration, err = m.Float64Histogram("flowstudio.executions.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Execution wall time")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if r.nodes, err = m.Int64Counter("flowstudio.nodes.finished",
		metric.WithDescription("Node runs")); err != nil {
		return nil, fmt.Errorf("create node counter: %w", err)
	}
	if r.nodeTime, err = m.Float64Histogram("flowstudio.nodes.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Node run time")); err != nil {
		return nil, fmt.Errorf("create node histogram: %w", err)
	}
	if r.tokens, err = m.Int64Counter("flowstudio.tokens",
		metric.WithDescription("Tokens consumed by executions")); err != nil {
		return nil, fmt.Errorf("create token counter: %w", err)
	}
	if r.cost, err = m.Float64Counter("flowstudio.cost",
		metric.WithUnit("USD"),
		metric.WithDescription("Execution cost")); err != nil {
		return nil, fmt.Errorf("create cost counter: %w", err)
	}
	if r.panics, err = m.Int64Counter("flowstudio.subscriber.panics",
		metric.WithDescription("Recovered panics in event subscribers")); err != nil {
		return nil, fmt.Errorf("create panic counter: %w", err)
	}
	return r, nil
}

// RecordExecutionStarted implements execution.Recorder.
func (r *Recorder) RecordExecutionStarted(workflowID string) {
	r.started.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("workflow.id", workflowID)))
}

// RecordExecutionFinished implements execution.Recorder.
func (r *Recorder) RecordExecutionFinished(workflowID string, status execution.Status, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("execution.status", string(status)),
	)
	ctx := context.Background()
	r.finished.Add(ctx, 1, attrs)
	r.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordNodeFinished implements execution.Recorder.
func (r *Recorder) RecordNodeFinished(nodeType workflow.NodeType, failed bool, d time.Duration) {
	ctx := context.Background()
	r.nodes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node.type", string(nodeType)),
		attribute.Bool("node.failed", failed),
	))
	r.nodeTime.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("node.type", string(nodeType))))
}

// RecordUsage implements execution.Recorder.
func (r *Recorder) RecordUsage(workflowID string, u execution.Usage) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("workflow.id", workflowID))
	if u.TokensUsed > 0 {
		r.tokens.Add(ctx, int64(u.TokensUsed), attrs)
	}
	if u.Cost > 0 {
		r.cost.Add(ctx, u.Cost, attrs)
	}
}

// RecordHandlerPanic implements execution.Recorder.
func (r *Recorder) RecordHandlerPanic() {
	r.panics.Add(context.Background(), 1)
}
