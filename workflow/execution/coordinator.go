package execution

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/validation"
)

const instrumentationName = "github.com/BaSui01/flowstudio/workflow/execution"

// Config bounds the coordinator's resource use.
type Config struct {
	// MaxConcurrent limits running executions; extra ones wait as queued.
	// Zero means unlimited.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	// MaxRetained limits how many terminal executions are kept before the
	// oldest are evicted. Zero means unlimited.
	MaxRetained int `yaml:"max_retained" json:"max_retained"`
	// MaxLogEntries caps each execution log; the oldest entries are dropped.
	MaxLogEntries int `yaml:"max_log_entries" json:"max_log_entries"`
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 0,
		MaxRetained:   1000,
		MaxLogEntries: 1000,
	}
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithStore replaces the in-memory execution store.
func WithStore(s Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator overrides execution id generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) { c.newID = gen }
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(instrumentationName) }
}

type subscription struct {
	executionID string
	handler     Handler
}

type entry struct {
	mu       sync.Mutex
	exec     *Execution
	def      *workflow.Definition
	cancel   context.CancelFunc
	inFlight map[string]int
	stopping bool
	mailbox  *mailbox
}

// Coordinator owns the lifecycle of every execution: queued → running →
// completed | failed | cancelled. Transitions of one execution are
// serialised by its own mutex; terminal states are absorbing.
type Coordinator struct {
	runner   Runner
	cfg      Config
	store    Store
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
	sem      *semaphore.Weighted

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu       sync.RWMutex
	entries  map[string]*entry
	subs     map[string]subscription
	finished []string
	closed   bool

	runs       sync.WaitGroup
	deliveries sync.WaitGroup
}

// NewCoordinator creates a coordinator dispatching runs to runner.
func NewCoordinator(runner Runner, cfg Config, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		runner:    runner,
		cfg:       cfg,
		store:     NewMemoryStore(),
		recorder:  nopRecorder{},
		tracer:    otel.Tracer(instrumentationName),
		logger:    logger.With(zap.String("component", "execution_coordinator")),
		now:       time.Now,
		newID:     uuid.NewString,
		baseCtx:   ctx,
		cancelAll: cancel,
		entries:   make(map[string]*entry),
		subs:      make(map[string]subscription),
	}
	if cfg.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start validates def and, when it is valid, dispatches a run and returns
// the new execution id without waiting. An invalid definition yields a
// VALIDATION_FAILED error whose Details hold the validation.Result.
func (c *Coordinator) Start(ctx context.Context, def *workflow.Definition, input map[string]any) (string, error) {
	if def == nil {
		return "", types.NewInvalidRequestError("workflow definition is required")
	}
	res := validation.Validate(def)
	if !res.IsValid {
		c.logger.Info("execution rejected by validation",
			zap.String("workflow_id", def.ID),
			zap.Int("errors", len(res.Errors)),
		)
		return "", types.Errorf(types.ErrValidationFailed, "workflow %s is not executable: %s", def.ID, res.Summary()).
			WithDetails(res).
			WithHTTPStatus(http.StatusUnprocessableEntity)
	}
	return c.launch(ctx, def.Clone(), cloneInput(input), "")
}

// Retry re-runs a failed execution under a new id. The failed record is
// left untouched.
func (c *Coordinator) Retry(ctx context.Context, id string) (string, error) {
	e, err := c.entry(id)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	if e.exec.Status != StatusFailed {
		status := e.exec.Status
		e.mu.Unlock()
		return "", types.NewInvalidOperationError(
			fmt.Sprintf("execution %s is %s; only failed executions can be retried", id, status))
	}
	def := e.def.Clone()
	input := cloneInput(e.exec.Input)
	e.mu.Unlock()

	return c.launch(ctx, def, input, id)
}

// Stop cancels a queued or running execution. With no step in flight the
// execution is cancelled at once; otherwise the run context is cancelled
// and the transition happens when the runner acknowledges. Stopping a
// terminal execution is an INVALID_OPERATION error; a repeated Stop while
// one is pending is a no-op.
//
// A run that completes on its own just before Stop is handled is already
// terminal, so Stop reports INVALID_OPERATION (409 over HTTP). Callers racing
// a natural finish should expect that error and read the execution status.
func (c *Coordinator) Stop(id string) error {
	e, err := c.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.exec.Status.Terminal() {
		status := e.exec.Status
		e.mu.Unlock()
		return types.NewInvalidOperationError(fmt.Sprintf("execution %s is already %s", id, status))
	}
	if e.stopping {
		e.mu.Unlock()
		return nil
	}
	e.stopping = true
	e.cancel()

	finished := false
	if len(e.inFlight) == 0 {
		finished = c.terminateLocked(e, StatusCancelled, nil, nil)
	} else {
		c.appendLogLocked(e, LogInfo, e.exec.CurrentStep, "stop requested, waiting for the running step")
		c.saveLocked(e)
	}
	e.mu.Unlock()

	c.logger.Info("execution stop requested", zap.String("execution_id", id), zap.Bool("immediate", finished))
	if finished {
		c.retire(id)
	}
	return nil
}

// OnProgress records completed out of total steps. Progress never
// decreases: a report that would lower it is ignored and logged as a warning.
func (c *Coordinator) OnProgress(id string, completed, total int) error {
	e, err := c.entry(id)
	if err != nil {
		return err
	}
	c.progress(e, completed, total)
	return nil
}

// OnComplete moves the execution to completed. Later terminal events are no-ops.
func (c *Coordinator) OnComplete(id string, result any) error {
	return c.terminate(id, StatusCompleted, result, nil)
}

// OnFail moves the execution to failed. The node id is taken from a
// *types.Error when present.
func (c *Coordinator) OnFail(id string, cause error) error {
	return c.terminate(id, StatusFailed, nil, cause)
}

// OnCancel moves the execution to cancelled.
func (c *Coordinator) OnCancel(id string) error {
	return c.terminate(id, StatusCancelled, nil, nil)
}

func (c *Coordinator) terminate(id string, status Status, result any, cause error) error {
	e, err := c.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	finished := c.terminateLocked(e, status, result, cause)
	e.mu.Unlock()
	if finished {
		c.retire(id)
	}
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Get returns a snapshot of an execution.
func (c *Coordinator) Get(id string) (*Execution, error) {
	exec, ok := c.store.Get(id)
	if !ok {
		return nil, types.NewNotFoundError("execution", id)
	}
	return c.live(exec), nil
}

// List returns every retained execution ordered by start time.
func (c *Coordinator) List() []*Execution {
	return c.liveAll(c.store.List())
}

// ListByWorkflow returns the executions of one workflow.
func (c *Coordinator) ListByWorkflow(workflowID string) []*Execution {
	return c.liveAll(c.store.ListByWorkflow(workflowID))
}

// ListByStatus returns executions in the given status.
func (c *Coordinator) ListByStatus(status Status) []*Execution {
	return c.liveAll(c.store.ListByStatus(status))
}

// Evict forgets a terminal execution and its subscriptions.
func (c *Coordinator) Evict(id string) error {
	e, err := c.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	status := e.exec.Status
	e.mu.Unlock()
	if !status.Terminal() {
		return types.NewInvalidOperationError(fmt.Sprintf("execution %s is %s; only finished executions can be evicted", id, status))
	}

	c.mu.Lock()
	c.removeLocked(id)
	for i, fid := range c.finished {
		if fid == id {
			c.finished = append(c.finished[:i], c.finished[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return nil
}

// live fills the running time of executions that have not finished.
func (c *Coordinator) live(exec *Execution) *Execution {
	if !exec.Status.Terminal() && exec.Status != StatusQueued {
		exec.Metrics.ExecutionTimeSeconds = c.now().Sub(exec.StartTime).Seconds()
	}
	return exec
}

func (c *Coordinator) liveAll(list []*Execution) []*Execution {
	for _, exec := range list {
		c.live(exec)
	}
	return list
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe registers handler for the events of one execution.
func (c *Coordinator) Subscribe(executionID string, handler Handler) (string, error) {
	if _, err := c.entry(executionID); err != nil {
		return "", err
	}
	return c.subscribe(executionID, handler), nil
}

// SubscribeAll registers handler for the events of every execution.
func (c *Coordinator) SubscribeAll(handler Handler) string {
	return c.subscribe("", handler)
}

// Unsubscribe removes a subscription. It reports whether one was removed.
func (c *Coordinator) Unsubscribe(subID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[subID]; !ok {
		return false
	}
	delete(c.subs, subID)
	return true
}

func (c *Coordinator) subscribe(executionID string, handler Handler) string {
	id := uuid.NewString()
	c.mu.Lock()
	c.subs[id] = subscription{executionID: executionID, handler: handler}
	c.mu.Unlock()
	return id
}

func (c *Coordinator) dispatch(ev Event) {
	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.executionID == "" || sub.executionID == ev.ExecutionID {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		c.deliver(h, ev)
	}
}

func (c *Coordinator) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.recorder.RecordHandlerPanic()
			c.logger.Error("event handler panicked",
				zap.String("execution_id", ev.ExecutionID),
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ev)
}

// Close cancels every active run and waits for runs and pending event
// deliveries to finish, or for ctx to expire.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancelAll()

	done := make(chan struct{})
	go func() {
		c.runs.Wait()
		c.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("execution coordinator closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Internals
// =============================================================================

func (c *Coordinator) entry(id string) (*entry, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, types.NewNotFoundError("execution", id)
	}
	return e, nil
}

func (c *Coordinator) launch(ctx context.Context, def *workflow.Definition, input map[string]any, retryOf string) (string, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return "", types.NewError(types.ErrServiceUnavailable, "execution coordinator is closed").
			WithHTTPStatus(http.StatusServiceUnavailable)
	}

	id := c.newID()
	runCtx, cancel := context.WithCancel(c.baseCtx)
	runCtx = types.WithExecutionID(types.WithWorkflowID(runCtx, def.ID), id)
	if traceID, ok := types.TraceID(ctx); ok {
		runCtx = types.WithTraceID(runCtx, traceID)
	}

	exec := &Execution{
		ID:         id,
		WorkflowID: def.ID,
		Status:     StatusQueued,
		StartTime:  c.now(),
		Logs:       []LogEntry{},
		RetryOf:    retryOf,
		Input:      input,
	}
	e := &entry{
		exec:     exec,
		def:      def,
		cancel:   cancel,
		inFlight: make(map[string]int),
	}
	e.mailbox = newMailbox(c.dispatch, &c.deliveries)

	acquired := c.sem == nil || c.sem.TryAcquire(1)
	if acquired {
		exec.Status = StatusRunning
		c.appendLogLocked(e, LogInfo, "", "execution started")
	} else {
		c.appendLogLocked(e, LogInfo, "", "execution queued")
	}
	if retryOf != "" {
		c.appendLogLocked(e, LogInfo, "", "retry of execution "+retryOf)
	}

	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()
	c.store.Save(exec)
	c.recorder.RecordExecutionStarted(def.ID)

	c.logger.Info("execution created",
		zap.String("execution_id", id),
		zap.String("workflow_id", def.ID),
		zap.String("status", string(exec.Status)),
		zap.String("retry_of", retryOf),
	)

	link := trace.LinkFromContext(ctx)
	c.runs.Add(1)
	go c.run(runCtx, e, acquired, link)
	return id, nil
}

func (c *Coordinator) run(ctx context.Context, e *entry, acquired bool, link trace.Link) {
	defer c.runs.Done()

	if !acquired {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			e.mu.Lock()
			finished := c.terminateLocked(e, StatusCancelled, nil, nil)
			e.mu.Unlock()
			if finished {
				c.retire(e.exec.ID)
			}
			return
		}
		if !c.markRunning(e) {
			c.sem.Release(1)
			return
		}
	}
	if c.sem != nil {
		defer c.sem.Release(1)
	}

	id, workflowID := e.exec.ID, e.def.ID
	ctx, span := c.tracer.Start(ctx, "workflow.execution",
		trace.WithLinks(link),
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("execution.id", id),
		),
	)
	defer span.End()

	result, err := c.invoke(ctx, e)

	e.mu.Lock()
	stopping := e.stopping
	var finished bool
	switch {
	case err == nil:
		finished = c.terminateLocked(e, StatusCompleted, result, nil)
		span.SetStatus(codes.Ok, "")
	case stopping || errors.Is(err, context.Canceled):
		finished = c.terminateLocked(e, StatusCancelled, nil, nil)
		span.SetStatus(codes.Error, "cancelled")
	default:
		finished = c.terminateLocked(e, StatusFailed, nil, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.mu.Unlock()

	if finished {
		c.retire(id)
	}
}

func (c *Coordinator) invoke(ctx context.Context, e *entry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrInternalError, "runner panicked: %v", r)
		}
	}()
	req := Request{
		ExecutionID: e.exec.ID,
		Definition:  e.def,
		Input:       cloneInput(e.exec.Input),
	}
	return c.runner.Run(ctx, req, &reporter{c: c, e: e})
}

func (c *Coordinator) markRunning(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exec.Status != StatusQueued {
		return false
	}
	e.exec.Status = StatusRunning
	c.appendLogLocked(e, LogInfo, "", "execution started")
	c.saveLocked(e)
	e.mailbox.post(c.eventLocked(e, EventProgress))
	return true
}

func (c *Coordinator) progress(e *entry, completed, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec := e.exec
	if exec.Status.Terminal() {
		return
	}
	if total <= 0 {
		c.appendLogLocked(e, LogWarn, "", fmt.Sprintf("progress report ignored: total steps %d", total))
		c.saveLocked(e)
		return
	}
	completed = max(0, min(completed, total))
	pct := completed * 100 / total

	if pct < exec.Progress || completed < exec.CompletedSteps {
		msg := fmt.Sprintf("progress regression ignored: %d/%d (%d%%) is behind %d/%d (%d%%)",
			completed, total, pct, exec.CompletedSteps, exec.TotalSteps, exec.Progress)
		c.appendLogLocked(e, LogWarn, "", msg)
		c.saveLocked(e)
		c.logger.Warn("progress regression ignored",
			zap.String("execution_id", exec.ID),
			zap.Int("reported", pct),
			zap.Int("current", exec.Progress),
		)
		return
	}

	exec.CompletedSteps = completed
	exec.TotalSteps = total
	exec.Progress = pct
	c.appendLogLocked(e, LogInfo, exec.CurrentStep, fmt.Sprintf("step %d of %d completed", completed, total))
	c.saveLocked(e)
	e.mailbox.post(c.eventLocked(e, EventProgress))
}

// terminateLocked performs a terminal transition. It reports false when the
// execution had already finished. The caller must hold e.mu and call retire
// after releasing it when true is returned.
func (c *Coordinator) terminateLocked(e *entry, status Status, result any, cause error) bool {
	exec := e.exec
	if exec.Status.Terminal() {
		c.logger.Debug("terminal event ignored",
			zap.String("execution_id", exec.ID),
			zap.String("status", string(exec.Status)),
			zap.String("event", string(status)),
		)
		return false
	}

	now := c.now()
	exec.Status = status
	exec.EndTime = &now
	exec.Metrics.ExecutionTimeSeconds = now.Sub(exec.StartTime).Seconds()

	var evType EventType
	switch status {
	case StatusCompleted:
		evType = EventCompleted
		exec.Result = result
		if exec.TotalSteps > 0 {
			exec.CompletedSteps = exec.TotalSteps
		}
		exec.Progress = 100
		c.appendLogLocked(e, LogInfo, "", "execution completed")
	case StatusFailed:
		evType = EventFailed
		failure := &Failure{Message: "execution failed", Timestamp: now}
		if cause != nil {
			failure.Message = cause.Error()
			if te, ok := types.AsError(cause); ok {
				failure.NodeID = te.NodeID
				if te.Cause != nil {
					failure.Message = te.Message + ": " + te.Cause.Error()
				} else {
					failure.Message = te.Message
				}
			}
		}
		exec.Error = failure
		c.appendLogLocked(e, LogError, failure.NodeID, failure.Message)
	case StatusCancelled:
		evType = EventCancelled
		c.appendLogLocked(e, LogWarn, exec.CurrentStep, "execution cancelled")
	}

	for i := range exec.Nodes {
		if exec.Nodes[i].Status == StatusRunning {
			exec.Nodes[i].Status = StatusCancelled
			exec.Nodes[i].EndTime = now
			exec.Nodes[i].Duration = now.Sub(exec.Nodes[i].StartTime)
		}
	}
	e.inFlight = map[string]int{}
	e.cancel()

	c.saveLocked(e)
	e.mailbox.post(c.eventLocked(e, evType))
	c.recorder.RecordExecutionFinished(exec.WorkflowID, status, now.Sub(exec.StartTime))

	fields := []zap.Field{
		zap.String("execution_id", exec.ID),
		zap.String("workflow_id", exec.WorkflowID),
		zap.String("status", string(status)),
		zap.Float64("seconds", exec.Metrics.ExecutionTimeSeconds),
	}
	if status == StatusFailed {
		c.logger.Warn("execution finished", append(fields, zap.String("error", exec.Error.Message))...)
	} else {
		c.logger.Info("execution finished", fields...)
	}
	return true
}

// retire records a finished execution and evicts the oldest ones beyond
// the retention bound.
func (c *Coordinator) retire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = append(c.finished, id)
	if c.cfg.MaxRetained <= 0 {
		return
	}
	for len(c.finished) > c.cfg.MaxRetained {
		oldest := c.finished[0]
		c.finished = c.finished[1:]
		c.removeLocked(oldest)
		c.logger.Debug("execution evicted by retention", zap.String("execution_id", oldest))
	}
}

func (c *Coordinator) removeLocked(id string) {
	delete(c.entries, id)
	c.store.Delete(id)
	for subID, sub := range c.subs {
		if sub.executionID == id {
			delete(c.subs, subID)
		}
	}
}

func (c *Coordinator) appendLogLocked(e *entry, level LogLevel, nodeID, message string) {
	e.exec.Logs = append(e.exec.Logs, LogEntry{
		Timestamp: c.now(),
		Level:     level,
		Message:   message,
		NodeID:    nodeID,
	})
	if limit := c.cfg.MaxLogEntries; limit > 0 && len(e.exec.Logs) > limit {
		e.exec.Logs = append([]LogEntry(nil), e.exec.Logs[len(e.exec.Logs)-limit:]...)
	}
}

func (c *Coordinator) saveLocked(e *entry) {
	c.store.Save(e.exec)
}

func (c *Coordinator) eventLocked(e *entry, t EventType) Event {
	exec := e.exec
	ev := Event{
		Type:           t,
		ExecutionID:    exec.ID,
		WorkflowID:     exec.WorkflowID,
		Status:         exec.Status,
		Progress:       exec.Progress,
		CompletedSteps: exec.CompletedSteps,
		TotalSteps:     exec.TotalSteps,
		CurrentStep:    exec.CurrentStep,
		Result:         exec.Result,
		Metrics:        exec.Metrics,
		Timestamp:      c.now(),
	}
	if exec.Error != nil {
		f := *exec.Error
		ev.Error = &f
	}
	return ev
}

func cloneInput(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
