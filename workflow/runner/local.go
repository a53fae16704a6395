package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
)

const instrumentationName = "github.com/BaSui01/flowstudio/workflow/runner"

// LocalConfig tunes the in-process runner.
type LocalConfig struct {
	// MaxParallel limits concurrently running model, tool, memory and
	// retrieval nodes within one run. Zero means unlimited.
	MaxParallel int `yaml:"max_parallel" json:"max_parallel"`
	// MaxLoopIterations guards loops whose condition never turns false.
	MaxLoopIterations int `yaml:"max_loop_iterations" json:"max_loop_iterations"`
	// DefaultTimeout applies to tool and retrieval nodes without timeoutMs.
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`
	// TokenPrices is the cost per 1K tokens, keyed by model name.
	TokenPrices map[string]float64 `yaml:"token_prices" json:"token_prices"`
}

// DefaultLocalConfig returns the default runner configuration.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		MaxParallel:       8,
		MaxLoopIterations: 1000,
	}
}

// LocalOption customises a LocalRunner.
type LocalOption func(*LocalRunner)

// WithModelInvoker sets the model backend.
func WithModelInvoker(m ModelInvoker) LocalOption {
	return func(r *LocalRunner) { r.models = m }
}

// WithTools sets the tool registry.
func WithTools(t ToolRegistry) LocalOption {
	return func(r *LocalRunner) { r.tools = t }
}

// WithMemory replaces the in-process memory backend.
func WithMemory(m MemoryBackend) LocalOption {
	return func(r *LocalRunner) { r.memory = m }
}

// WithRetriever sets the retrieval backend.
func WithRetriever(rt Retriever) LocalOption {
	return func(r *LocalRunner) { r.retriever = rt }
}

// WithTokenCounter replaces the tiktoken counter.
func WithTokenCounter(c TokenCounter) LocalOption {
	return func(r *LocalRunner) { r.tokens = c }
}

// WithLocalTracerProvider sets the OpenTelemetry tracer provider.
func WithLocalTracerProvider(tp trace.TracerProvider) LocalOption {
	return func(r *LocalRunner) { r.tracer = tp.Tracer(instrumentationName) }
}

// LocalRunner executes definitions in-process. Independent branches run
// concurrently; a node with several incoming edges waits until every one of
// them has either fired or been ruled out.
type LocalRunner struct {
	cfg       LocalConfig
	models    ModelInvoker
	tools     ToolRegistry
	memory    MemoryBackend
	retriever Retriever
	tokens    TokenCounter
	tracer    trace.Tracer
	logger    *zap.Logger
}

var _ execution.Runner = (*LocalRunner)(nil)

// NewLocalRunner creates a runner. Without WithMemory, memory nodes use a
// MemoryMap shared by every run of this runner.
func NewLocalRunner(cfg LocalConfig, logger *zap.Logger, opts ...LocalOption) *LocalRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &LocalRunner{
		cfg:    cfg,
		memory: NewMemoryMap(),
		tracer: otel.Tracer(instrumentationName),
		logger: logger.With(zap.String("component", "local_runner")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tokens == nil {
		r.tokens = NewTiktokenCounter(logger)
	}
	return r
}

// Run implements execution.Runner.
func (r *LocalRunner) Run(ctx context.Context, req execution.Request, rep execution.Reporter) (any, error) {
	def := req.Definition
	if def == nil {
		return nil, types.NewInvalidRequestError("workflow definition is required")
	}
	starts := def.StartNodes()
	if len(starts) != 1 {
		return nil, types.Errorf(types.ErrValidationFailed, "workflow %s needs exactly one start node (got %d)", def.ID, len(starts))
	}

	ctx, span := r.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", def.ID),
		attribute.String("execution.id", req.ExecutionID),
	))
	defer span.End()

	x := newRun(r, req, rep)
	main := x.plan.region([]string{starts[0].ID}, nil)
	x.total = main.size()

	r.logger.Debug("run started",
		zap.String("execution_id", req.ExecutionID),
		zap.String("workflow_id", def.ID),
		zap.Int("steps", x.total),
	)

	out, err := x.flow(ctx, newFlowState(main, nil, true), req.Input)
	if ctxErr := ctx.Err(); ctxErr != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, ctxErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("run failed", zap.String("execution_id", req.ExecutionID), zap.Error(err))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// nodeError wraps a node failure with the node id the coordinator records.
func nodeError(n *workflow.Node, err error) error {
	var te *types.Error
	if errors.As(err, &te) && te.NodeID != "" {
		return err
	}
	code := types.ErrNodeFailed
	if errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrTimeout
	}
	return types.NewError(code, fmt.Sprintf("%s node %s failed", n.Type, n.ID)).
		WithNodeID(n.ID).
		WithCause(err)
}

func newLimiter(n int) *semaphore.Weighted {
	if n <= 0 {
		return nil
	}
	return semaphore.NewWeighted(int64(n))
}
