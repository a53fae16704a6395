package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/expr"
)

// ErrNotConfigured is returned when a node needs a collaborator the runner
// was built without.
var ErrNotConfigured = errors.New("collaborator not configured")

func (x *run) dispatch(ctx context.Context, st *flowState, n *workflow.Node, input any) (outcome, error) {
	switch c := n.Config.(type) {
	case *workflow.StartConfig:
		return outcome{output: input}, nil
	case *workflow.ModelConfig:
		return x.model(ctx, st, n, c, input)
	case *workflow.ToolConfig:
		return x.tool(ctx, st, n, c, input)
	case *workflow.MemoryConfig:
		return x.memory(ctx, st, n, c, input)
	case *workflow.RetrievalConfig:
		return x.retrieval(ctx, st, n, c, input)
	case *workflow.ConditionalConfig:
		ok, err := expr.Evaluate(c.Predicate, x.scope(st, input))
		if err != nil {
			return outcome{}, fmt.Errorf("predicate %q: %w", c.Predicate, err)
		}
		x.rep.Log(execution.LogDebug, n.ID, fmt.Sprintf("predicate %q is %t", c.Predicate, ok))
		return outcome{output: input, branch: ok}, nil
	case *workflow.LoopConfig:
		return x.loop(ctx, st, n, c, input)
	case *workflow.VariableConfig:
		return x.variable(st, n, c, input)
	case *workflow.ErrorHandlerConfig:
		if c.Fallback != nil {
			return outcome{output: c.Fallback}, nil
		}
		return outcome{output: input}, nil
	case *workflow.DelayConfig:
		if err := sleep(ctx, time.Duration(c.DurationMs)*time.Millisecond); err != nil {
			return outcome{}, err
		}
		return outcome{output: input}, nil
	case nil:
		if n.Type == workflow.NodeTypeStart {
			return outcome{output: input}, nil
		}
	}
	return outcome{}, types.Errorf(types.ErrInvalidRequest, "node %s: %s nodes cannot be executed", n.ID, n.Type)
}

func (x *run) model(ctx context.Context, st *flowState, n *workflow.Node, c *workflow.ModelConfig, input any) (outcome, error) {
	if x.r.models == nil {
		return outcome{}, fmt.Errorf("model invoker: %w", ErrNotConfigured)
	}
	scope := x.scope(st, input)
	call := ModelCall{
		NodeID:       n.ID,
		Model:        c.Model,
		Prompt:       expr.Interpolate(c.Prompt, scope),
		SystemPrompt: expr.Interpolate(c.SystemPrompt, scope),
		MaxTokens:    c.MaxTokens,
	}
	if c.Temperature != nil {
		call.Temperature = *c.Temperature
	}

	reply, err := x.r.models.Invoke(ctx, call)
	if err != nil {
		return outcome{}, err
	}

	prompt := reply.PromptTokens
	if prompt == 0 {
		prompt = x.r.tokens.CountTokens(c.Model, call.SystemPrompt) + x.r.tokens.CountTokens(c.Model, call.Prompt)
	}
	completion := reply.CompletionTokens
	if completion == 0 {
		completion = x.r.tokens.CountTokens(c.Model, reply.Text)
	}
	cost := reply.Cost
	if cost == 0 {
		if price, ok := x.r.cfg.TokenPrices[c.Model]; ok {
			cost = float64(prompt+completion) / 1000 * price
		}
	}
	x.rep.Usage(execution.Usage{TokensUsed: prompt + completion, APICalls: 1, Cost: cost})

	if reply.Output != nil {
		return outcome{output: reply.Output}, nil
	}
	return outcome{output: reply.Text}, nil
}

func (x *run) tool(ctx context.Context, st *flowState, n *workflow.Node, c *workflow.ToolConfig, input any) (outcome, error) {
	if x.r.tools == nil {
		return outcome{}, fmt.Errorf("tool registry: %w", ErrNotConfigured)
	}
	params, _ := resolveValue(c.Params, x.scope(st, input)).(map[string]any)

	ctx, cancel := x.withTimeout(ctx, c.TimeoutMs)
	defer cancel()

	out, err := x.r.tools.Call(ctx, c.ToolName, params)
	x.rep.Usage(execution.Usage{APICalls: 1})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return outcome{}, fmt.Errorf("tool %s timed out: %w", c.ToolName, context.DeadlineExceeded)
		}
		return outcome{}, err
	}
	return outcome{output: out}, nil
}

func (x *run) memory(ctx context.Context, st *flowState, n *workflow.Node, c *workflow.MemoryConfig, input any) (outcome, error) {
	scope := x.scope(st, input)
	key := expr.Interpolate(c.Key, scope)

	if c.Operation == workflow.MemoryWrite {
		value := resolveValue(c.Value, scope)
		if err := x.r.memory.Write(ctx, c.Namespace, key, value); err != nil {
			return outcome{}, fmt.Errorf("memory write %q: %w", key, err)
		}
		x.mu.Lock()
		x.memBytes += int64(len(fmt.Sprint(value)))
		peak := x.memBytes
		x.mu.Unlock()
		x.rep.Usage(execution.Usage{MemoryUsage: peak})
		return outcome{output: value}, nil
	}

	value, ok, err := x.r.memory.Read(ctx, c.Namespace, key)
	if err != nil {
		return outcome{}, fmt.Errorf("memory read %q: %w", key, err)
	}
	if !ok {
		x.rep.Log(execution.LogDebug, n.ID, fmt.Sprintf("memory key %q not found", key))
	}
	return outcome{output: value}, nil
}

func (x *run) retrieval(ctx context.Context, st *flowState, n *workflow.Node, c *workflow.RetrievalConfig, input any) (outcome, error) {
	if x.r.retriever == nil {
		return outcome{}, fmt.Errorf("retriever: %w", ErrNotConfigured)
	}
	q := RetrievalQuery{
		NodeID: n.ID,
		Query:  expr.Interpolate(c.Query, x.scope(st, input)),
		Source: c.Source,
		TopK:   c.TopK,
	}

	ctx, cancel := x.withTimeout(ctx, c.TimeoutMs)
	defer cancel()

	docs, err := x.r.retriever.Retrieve(ctx, q)
	x.rep.Usage(execution.Usage{APICalls: 1})
	if err != nil {
		return outcome{}, err
	}
	if q.TopK > 0 && len(docs) > q.TopK {
		docs = docs[:q.TopK]
	}
	return outcome{output: docs}, nil
}

// loop runs the body region once per iteration while the condition holds
// and maxIterations is not reached. The final count stays visible to the
// rest of the flow as iteration.
func (x *run) loop(ctx context.Context, st *flowState, n *workflow.Node, c *workflow.LoopConfig, input any) (outcome, error) {
	body := x.plan.body(n.ID, st.reg)
	condition := strings.TrimSpace(c.Condition)
	guard := x.r.cfg.MaxLoopIterations

	last := input
	i := 0
	for ; c.MaxIterations <= 0 || i < c.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return outcome{}, err
		}
		child := newFlowState(body, st, false)
		child.locals["iteration"] = i
		if condition != "" {
			ok, err := expr.Evaluate(condition, x.scope(child, last))
			if err != nil {
				return outcome{}, fmt.Errorf("loop condition %q: %w", condition, err)
			}
			if !ok {
				break
			}
		}
		if guard > 0 && i >= guard {
			return outcome{}, fmt.Errorf("loop %s exceeded %d iterations", n.ID, guard)
		}
		if len(body.roots) == 0 {
			continue
		}
		out, err := x.flow(ctx, child, last)
		if err != nil {
			return outcome{}, err
		}
		last = out
	}

	x.setLocal(st, "iteration", i)
	x.rep.Log(execution.LogInfo, n.ID, fmt.Sprintf("loop %s finished after %d iterations", n.ID, i))
	return outcome{output: last}, nil
}

func (x *run) variable(st *flowState, n *workflow.Node, c *workflow.VariableConfig, input any) (outcome, error) {
	var value any
	if strings.TrimSpace(c.Expression) != "" {
		v, err := expr.EvaluateValue(c.Expression, x.scope(st, input))
		if err != nil {
			return outcome{}, fmt.Errorf("variable %s expression %q: %w", c.Name, c.Expression, err)
		}
		value = v
	} else {
		value = resolveValue(c.Value, x.scope(st, input))
	}
	x.setVar(c.Name, value)
	x.rep.Log(execution.LogDebug, n.ID, fmt.Sprintf("variable %s = %v", c.Name, value))
	return outcome{output: input}, nil
}

func (x *run) withTimeout(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	switch {
	case timeoutMs > 0:
		return context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	case x.r.cfg.DefaultTimeout > 0:
		return context.WithTimeout(ctx, x.r.cfg.DefaultTimeout)
	}
	return context.WithCancel(ctx)
}

// resolveValue interpolates ${...} placeholders inside strings, maps and
// slices. A string that is exactly one placeholder resolves to the raw
// value rather than its text.
func resolveValue(v any, scope map[string]any) any {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if refs := expr.References(trimmed); len(refs) == 1 && strings.HasPrefix(trimmed, "${") &&
			strings.HasSuffix(trimmed, "}") && strings.Count(trimmed, "${") == 1 {
			return expr.Resolve(strings.TrimSpace(trimmed[2:len(trimmed)-1]), scope)
		}
		return expr.Interpolate(val, scope)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveValue(item, scope)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, scope)
		}
		return out
	}
	return v
}
