package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/expr"
)

// run holds the state of one execution. mu guards vars, memBytes,
// completed and every flowState of the run.
type run struct {
	r     *LocalRunner
	req   execution.Request
	rep   execution.Reporter
	plan  *plan
	limit *semaphore.Weighted

	mu        sync.Mutex
	vars      map[string]any
	memBytes  int64
	completed int
	total     int
}

func newRun(r *LocalRunner, req execution.Request, rep execution.Reporter) *run {
	vars := make(map[string]any, len(req.Definition.Variables))
	for name, v := range req.Definition.Variables {
		vars[name] = v.Default
	}
	return &run{
		r:     r,
		req:   req,
		rep:   rep,
		plan:  newPlan(req.Definition),
		limit: newLimiter(r.cfg.MaxParallel),
		vars:  vars,
	}
}

// flowState tracks one walk over a region. Only the main flow counts
// towards progress; loop bodies repeat and are not counted.
type flowState struct {
	reg     *region
	counted bool
	pending map[string]int
	fired   map[string]bool
	inputs  map[string]any
	sinks   map[string]any
	locals  map[string]any
}

func newFlowState(reg *region, parent *flowState, counted bool) *flowState {
	st := &flowState{
		reg:     reg,
		counted: counted,
		pending: make(map[string]int, len(reg.pending)),
		fired:   make(map[string]bool),
		inputs:  make(map[string]any),
		sinks:   make(map[string]any),
		locals:  make(map[string]any),
	}
	for id, n := range reg.pending {
		st.pending[id] = n
	}
	if parent != nil {
		for k, v := range parent.locals {
			st.locals[k] = v
		}
	}
	return st
}

// result is the output of the flow: the single sink output, or sink outputs
// keyed by node id when several branches ended.
func (st *flowState) result() any {
	switch len(st.sinks) {
	case 0:
		return nil
	case 1:
		for _, v := range st.sinks {
			return v
		}
	}
	out := make(map[string]any, len(st.sinks))
	for id, v := range st.sinks {
		out[id] = v
	}
	return out
}

// outcome is what a node produced.
type outcome struct {
	output any
	branch bool
	// failed is set when the node failed and its error edges take over.
	failed bool
}

type ready struct {
	id    string
	input any
}

// flow walks a region from its roots until every reachable node has run or
// been ruled out.
func (x *run) flow(ctx context.Context, st *flowState, input any) (any, error) {
	g, gctx := errgroup.WithContext(ctx)

	var launch func(next ready)
	launch = func(next ready) {
		g.Go(func() error {
			n, _ := x.plan.idx.Node(next.id)
			out, err := x.step(gctx, st, n, next.input)
			if err != nil {
				return err
			}
			for _, nr := range x.advance(st, n, out) {
				launch(nr)
			}
			return nil
		})
	}
	for _, root := range st.reg.roots {
		launch(ready{id: root, input: input})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	return st.result(), nil
}

// step runs a node. A failure is retried and then routed through the
// node's error edge when an errorHandler is attached; otherwise it fails
// the flow.
func (x *run) step(ctx context.Context, st *flowState, n *workflow.Node, input any) (outcome, error) {
	out, err := x.exec(ctx, st, n, input)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return outcome{}, ctx.Err()
	}

	handler := x.errorHandler(st.reg, n.ID)
	if handler == nil {
		return outcome{}, nodeError(n, err)
	}

	cfg, _ := handler.Config.(*workflow.ErrorHandlerConfig)
	if cfg != nil {
		for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
			x.rep.Log(execution.LogWarn, n.ID,
				fmt.Sprintf("retrying node %s (attempt %d of %d): %v", n.ID, attempt, cfg.MaxRetries, err))
			if werr := sleep(ctx, time.Duration(cfg.RetryDelayMs*attempt)*time.Millisecond); werr != nil {
				return outcome{}, werr
			}
			out, err = x.exec(ctx, st, n, input)
			if err == nil {
				return out, nil
			}
			if ctx.Err() != nil {
				return outcome{}, ctx.Err()
			}
		}
	}

	x.rep.Log(execution.LogError, n.ID, fmt.Sprintf("node %s failed, handled by %s: %v", n.ID, handler.ID, err))
	return outcome{
		failed: true,
		output: map[string]any{"nodeId": n.ID, "error": err.Error(), "input": input},
	}, nil
}

// errorHandler returns the errorHandler reached by the node's error edge.
func (x *run) errorHandler(reg *region, id string) *workflow.Node {
	for _, e := range reg.out[id] {
		if !e.IsErrorEdge() {
			continue
		}
		if n, ok := x.plan.idx.Node(e.Target); ok && n.Type == workflow.NodeTypeErrorHandler {
			return n
		}
	}
	return nil
}

// exec runs one attempt of a node with tracing and reporting.
func (x *run) exec(ctx context.Context, st *flowState, n *workflow.Node, input any) (outcome, error) {
	if x.limit != nil && limited(n.Type) {
		if err := x.limit.Acquire(ctx, 1); err != nil {
			return outcome{}, err
		}
		defer x.limit.Release(1)
	}

	ctx, span := x.r.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("node.id", n.ID),
		attribute.String("node.type", string(n.Type)),
	))
	defer span.End()

	x.rep.NodeStarted(n.ID, n.Type)
	start := time.Now()
	out, err := x.dispatch(ctx, st, n, input)
	x.rep.NodeFinished(n.ID, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.r.logger.Debug("node failed",
			zap.String("execution_id", x.req.ExecutionID),
			zap.String("node_id", n.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return outcome{}, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func limited(t workflow.NodeType) bool {
	switch t {
	case workflow.NodeTypeModel, workflow.NodeTypeTool, workflow.NodeTypeMemory, workflow.NodeTypeRetrieval:
		return true
	}
	return false
}

// advance settles the outgoing edges of a finished node and returns the
// nodes that became ready.
func (x *run) advance(st *flowState, n *workflow.Node, out outcome) []ready {
	x.mu.Lock()
	defer x.mu.Unlock()

	if out.failed {
		st.locals["error"] = out.output
	}
	x.countLocked(st)

	edges := st.reg.out[n.ID]
	fires := x.firingLocked(st, n, edges, out)

	var next []ready
	anyFired := false
	for i, e := range edges {
		anyFired = anyFired || fires[i]
		next = x.resolveLocked(st, e.Target, fires[i], out.output, next)
	}
	if !anyFired {
		st.sinks[n.ID] = out.output
	}
	return next
}

// firingLocked decides which edges fire. Error edges fire only on a handled
// failure and normal edges only on success. On a conditional node the
// true/false handles follow the predicate, condition edges follow their
// own expression, and the default handle fires when nothing else did.
func (x *run) firingLocked(st *flowState, n *workflow.Node, edges []*workflow.Edge, out outcome) []bool {
	fires := make([]bool, len(edges))
	var scope map[string]any
	cond := func(e *workflow.Edge) bool {
		if scope == nil {
			scope = x.scopeLocked(st, out.output)
		}
		ok, err := expr.Evaluate(e.Condition, scope)
		if err != nil {
			x.rep.Log(execution.LogWarn, n.ID, fmt.Sprintf("edge %s condition %q: %v", e.ID, e.Condition, err))
			return false
		}
		return ok
	}

	conditional := n.Type == workflow.NodeTypeConditional
	matched := false
	for i, e := range edges {
		switch {
		case e.IsErrorEdge():
			fires[i] = out.failed
		case out.failed:
		case conditional && e.SourceHandle == workflow.HandleTrue:
			fires[i] = out.branch
		case conditional && e.SourceHandle == workflow.HandleFalse:
			fires[i] = !out.branch
		case conditional && e.SourceHandle == workflow.HandleDefault:
			continue
		case e.Condition != "":
			fires[i] = cond(e)
		case conditional && e.SourceHandle != "":
		default:
			fires[i] = true
		}
		matched = matched || fires[i]
	}
	if conditional && !out.failed && !matched {
		for i, e := range edges {
			if e.SourceHandle == workflow.HandleDefault {
				fires[i] = true
			}
		}
	}
	return fires
}

// resolveLocked settles one incoming edge of target. A target whose
// incoming edges are all settled runs when at least one fired; otherwise it
// is skipped and its own edges are settled as not fired.
func (x *run) resolveLocked(st *flowState, target string, fired bool, output any, next []ready) []ready {
	st.pending[target]--
	if fired && !st.fired[target] {
		st.fired[target] = true
		st.inputs[target] = output
	}
	if st.pending[target] > 0 {
		return next
	}
	if st.fired[target] {
		return append(next, ready{id: target, input: st.inputs[target]})
	}

	x.countLocked(st)
	x.rep.Log(execution.LogDebug, target, fmt.Sprintf("node %s skipped", target))
	for _, e := range st.reg.out[target] {
		next = x.resolveLocked(st, e.Target, false, nil, next)
	}
	return next
}

func (x *run) countLocked(st *flowState) {
	if !st.counted {
		return
	}
	x.completed++
	x.rep.Progress(x.completed, x.total)
}

// scopeLocked builds the variables visible to a node: workflow variables,
// the run input, the node's input as output, then flow locals such as
// iteration and error.
func (x *run) scopeLocked(st *flowState, output any) map[string]any {
	s := make(map[string]any, len(x.vars)+len(st.locals)+2)
	for k, v := range x.vars {
		s[k] = v
	}
	s["input"] = x.req.Input
	s["output"] = output
	for k, v := range st.locals {
		s[k] = v
	}
	return s
}

func (x *run) scope(st *flowState, output any) map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.scopeLocked(st, output)
}

func (x *run) setVar(name string, value any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vars[name] = value
}

func (x *run) setLocal(st *flowState, name string, value any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	st.locals[name] = value
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
