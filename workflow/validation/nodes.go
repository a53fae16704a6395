package validation

import (
	"strings"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/expr"
)

// checkNodes dispatches on the config variant of every node, then checks
// edge-level config (conditions and error edges).
func (v *validator) checkNodes() {
	for _, n := range v.idx.Nodes() {
		if !n.Type.Valid() {
			v.errorf(n.ID, "", CodeUnknownNodeType, "node %s has unknown type %q", n.ID, n.Type)
			continue
		}
		cfg := n.Config
		if cfg == nil {
			cfg = workflow.DefaultConfig(n.Type)
		}
		if cfg.NodeType() != n.Type {
			v.errorf(n.ID, "", CodeConfigTypeMismatch,
				"node %s of type %s carries a %s config", n.ID, n.Type, cfg.NodeType())
			continue
		}
		for _, field := range n.UnknownFields {
			v.errorf(n.ID, "", CodeUnknownConfigField, "node %s: unknown config field %q for type %s", n.ID, field, n.Type)
		}

		switch c := cfg.(type) {
		case *workflow.StartConfig:
		case *workflow.ModelConfig:
			v.checkModel(n, c)
		case *workflow.ToolConfig:
			v.checkTool(n, c)
		case *workflow.MemoryConfig:
			v.checkMemory(n, c)
		case *workflow.RetrievalConfig:
			v.checkRetrieval(n, c)
		case *workflow.ConditionalConfig:
			v.checkConditional(n, c)
		case *workflow.LoopConfig:
			v.checkLoop(n, c)
		case *workflow.VariableConfig:
			v.checkVariableNode(n, c)
		case *workflow.ErrorHandlerConfig:
			v.checkErrorHandler(n, c)
		case *workflow.DelayConfig:
			v.nonNegative(n, "durationMs", c.DurationMs)
		case *workflow.UnknownConfig:
			v.errorf(n.ID, "", CodeUnknownNodeType, "node %s has unknown type %q", n.ID, n.Type)
		}
	}

	for _, e := range v.def.Edges {
		if e == nil {
			continue
		}
		if e.Condition != "" {
			if err := expr.Check(e.Condition); err != nil {
				v.errorf("", e.ID, CodeInvalidExpression, "edge %s: invalid condition %q: %v", e.ID, e.Condition, err)
			}
		}
		if e.IsErrorEdge() {
			if target, ok := v.idx.Node(e.Target); ok && target.Type != workflow.NodeTypeErrorHandler {
				v.errorf(e.Source, e.ID, CodeInvalidErrorEdge,
					"error edge %s must target an errorHandler node, %s is a %s node", e.ID, target.ID, target.Type)
			}
		}
	}
}

func (v *validator) required(n *workflow.Node, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.errorf(n.ID, "", CodeMissingField, "%s node %s: %s is required", n.Type, n.ID, field)
		return false
	}
	return true
}

func (v *validator) nonNegative(n *workflow.Node, field string, value int) {
	if value < 0 {
		v.errorf(n.ID, "", CodeOutOfRange, "%s node %s: %s must be >= 0 (got %d)", n.Type, n.ID, field, value)
	}
}

func (v *validator) expression(n *workflow.Node, field, src string) {
	if err := expr.Check(src); err != nil {
		v.errorf(n.ID, "", CodeInvalidExpression, "%s node %s: invalid %s %q: %v", n.Type, n.ID, field, src, err)
	}
}

func (v *validator) checkModel(n *workflow.Node, c *workflow.ModelConfig) {
	v.required(n, "model", c.Model)
	switch {
	case c.Temperature == nil:
		v.errorf(n.ID, "", CodeMissingField, "model node %s: temperature is required", n.ID)
	case *c.Temperature < 0 || *c.Temperature > 2:
		v.errorf(n.ID, "", CodeOutOfRange, "model node %s: temperature must be between 0 and 2 (got %g)", n.ID, *c.Temperature)
	}
	switch {
	case c.MaxTokens == 0:
		v.errorf(n.ID, "", CodeMissingField, "model node %s: maxTokens is required", n.ID)
	case c.MaxTokens < 0:
		v.errorf(n.ID, "", CodeOutOfRange, "model node %s: maxTokens must be > 0 (got %d)", n.ID, c.MaxTokens)
	}
}

func (v *validator) checkTool(n *workflow.Node, c *workflow.ToolConfig) {
	v.required(n, "toolName", c.ToolName)
	v.nonNegative(n, "timeoutMs", c.TimeoutMs)
}

func (v *validator) checkMemory(n *workflow.Node, c *workflow.MemoryConfig) {
	v.required(n, "key", c.Key)
	switch c.Operation {
	case "", workflow.MemoryRead, workflow.MemoryWrite:
	default:
		v.errorf(n.ID, "", CodeInvalidValue, "memory node %s: operation must be read or write (got %q)", n.ID, c.Operation)
	}
}

func (v *validator) checkRetrieval(n *workflow.Node, c *workflow.RetrievalConfig) {
	v.required(n, "query", c.Query)
	v.nonNegative(n, "topK", c.TopK)
	v.nonNegative(n, "timeoutMs", c.TimeoutMs)
}

// checkConditional requires at least two branches with distinct keys that
// cover both outcomes of the predicate. Error edges are not branches.
func (v *validator) checkConditional(n *workflow.Node, c *workflow.ConditionalConfig) {
	if v.required(n, "predicate", c.Predicate) {
		v.expression(n, "predicate", c.Predicate)
	}

	var branches []*workflow.Edge
	for _, e := range v.def.Outgoing(n.ID) {
		if !e.IsErrorEdge() {
			branches = append(branches, e)
		}
	}
	if len(branches) < 2 {
		v.errorf(n.ID, "", CodeConditionalBranches,
			"conditional node %s needs at least 2 outgoing branches (got %d)", n.ID, len(branches))
		return
	}

	keys := make(map[string]string)
	handles := make(map[string]bool)
	for _, e := range branches {
		key := e.BranchKey()
		if key == "" {
			v.errorf(n.ID, e.ID, CodeBranchKeyMissing,
				"conditional node %s: branch edge %s has neither a handle nor a condition", n.ID, e.ID)
			continue
		}
		if prev, dup := keys[key]; dup {
			v.errorf(n.ID, e.ID, CodeDuplicateBranch,
				"conditional node %s: edges %s and %s share branch %q", n.ID, prev, e.ID, key)
			continue
		}
		keys[key] = e.ID
		if e.SourceHandle != "" {
			handles[e.SourceHandle] = true
		}
	}

	switch {
	case handles[workflow.HandleDefault]:
	case handles[workflow.HandleTrue] && handles[workflow.HandleFalse]:
	case handles[workflow.HandleTrue]:
		v.errorf(n.ID, "", CodeUncoveredBranch, "conditional node %s has no %q branch", n.ID, workflow.HandleFalse)
	case handles[workflow.HandleFalse]:
		v.errorf(n.ID, "", CodeUncoveredBranch, "conditional node %s has no %q branch", n.ID, workflow.HandleTrue)
	default:
		v.warnf(n.ID, "", CodeBranchCoverage,
			"conditional node %s routes only by edge conditions; add a %q branch to guarantee coverage", n.ID, workflow.HandleDefault)
	}
}

func (v *validator) checkLoop(n *workflow.Node, c *workflow.LoopConfig) {
	v.nonNegative(n, "maxIterations", c.MaxIterations)
	if !c.Bounded() {
		v.errorf(n.ID, "", CodeMissingField, "loop node %s: a condition or maxIterations is required", n.ID)
	}
	if strings.TrimSpace(c.Condition) != "" {
		v.expression(n, "condition", c.Condition)
	}
	for _, e := range v.def.Outgoing(n.ID) {
		if e.SourceHandle == workflow.HandleBody {
			return
		}
	}
	v.warnf(n.ID, "", CodeLoopWithoutBody, "loop node %s has no %q edge", n.ID, workflow.HandleBody)
}

func (v *validator) checkVariableNode(n *workflow.Node, c *workflow.VariableConfig) {
	v.required(n, "name", c.Name)
	if strings.TrimSpace(c.Expression) != "" {
		v.expression(n, "expression", c.Expression)
	}
}

func (v *validator) checkErrorHandler(n *workflow.Node, c *workflow.ErrorHandlerConfig) {
	v.nonNegative(n, "maxRetries", c.MaxRetries)
	v.nonNegative(n, "retryDelayMs", c.RetryDelayMs)
}
