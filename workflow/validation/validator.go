package validation

import (
	"fmt"
	"strings"

	"github.com/BaSui01/flowstudio/workflow"
)

// Issue codes.
const (
	CodeMissingStart        = "MISSING_START"
	CodeAmbiguousStart      = "AMBIGUOUS_START"
	CodeDuplicateNodeID     = "DUPLICATE_NODE_ID"
	CodeDuplicateEdgeID     = "DUPLICATE_EDGE_ID"
	CodeDuplicateEdge       = "DUPLICATE_EDGE"
	CodeDanglingEdgeSource  = "DANGLING_EDGE_SOURCE"
	CodeDanglingEdgeTarget  = "DANGLING_EDGE_TARGET"
	CodeUnreachableNode     = "UNREACHABLE_NODE"
	CodeNoTerminationPath   = "NO_TERMINATION_PATH"
	CodeCycleDetected       = "CYCLE_DETECTED"
	CodeBoundedLoop         = "BOUNDED_LOOP"
	CodeUnknownNodeType     = "UNKNOWN_NODE_TYPE"
	CodeConfigTypeMismatch  = "CONFIG_TYPE_MISMATCH"
	CodeMissingField        = "MISSING_FIELD"
	CodeUnknownConfigField  = "UNKNOWN_CONFIG_FIELD"
	CodeOutOfRange          = "OUT_OF_RANGE"
	CodeInvalidValue        = "INVALID_VALUE"
	CodeInvalidExpression   = "INVALID_EXPRESSION"
	CodeConditionalBranches = "CONDITIONAL_BRANCHES"
	CodeBranchKeyMissing    = "CONDITIONAL_BRANCH_KEY"
	CodeDuplicateBranch     = "CONDITIONAL_DUPLICATE_BRANCH"
	CodeUncoveredBranch     = "CONDITIONAL_UNCOVERED"
	CodeBranchCoverage      = "CONDITIONAL_COVERAGE"
	CodeLoopWithoutBody     = "LOOP_WITHOUT_BODY"
	CodeInvalidErrorEdge    = "INVALID_ERROR_EDGE"
	CodeUndeclaredVariable  = "UNDECLARED_VARIABLE"
)

// Builtins are identifiers every expression may use without declaring them.
var Builtins = map[string]bool{
	"input":     true,
	"output":    true,
	"iteration": true,
	"error":     true,
}

// Issue is a single validation finding.
type Issue struct {
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Result is the outcome of validating a definition.
type Result struct {
	IsValid  bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// HasCode reports whether any error or warning carries code.
func (r Result) HasCode(code string) bool {
	for _, list := range [][]Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			if i.Code == code {
				return true
			}
		}
	}
	return false
}

// Summary joins error messages into one line.
func (r Result) Summary() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

type validator struct {
	def    *workflow.Definition
	idx    *workflow.Index
	result Result
}

// Validate checks a definition exhaustively and deterministically. It never
// mutates def; warnings never make a definition invalid.
func Validate(def *workflow.Definition) Result {
	if def == nil {
		def = &workflow.Definition{}
	}
	v := &validator{
		def:    def,
		idx:    workflow.NewIndex(def),
		result: Result{Errors: []Issue{}, Warnings: []Issue{}},
	}

	start := v.checkStart()
	v.checkEdges()
	if start != nil {
		reachable := v.checkReachability(start)
		v.checkTermination(reachable)
	}
	v.checkCycles()
	v.checkNodes()
	v.checkVariables()

	v.result.IsValid = len(v.result.Errors) == 0
	return v.result
}

func (v *validator) errorf(nodeID, edgeID, code, format string, args ...any) {
	v.result.Errors = append(v.result.Errors, Issue{
		NodeID: nodeID, EdgeID: edgeID, Code: code, Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) warnf(nodeID, edgeID, code, format string, args ...any) {
	v.result.Warnings = append(v.result.Warnings, Issue{
		NodeID: nodeID, EdgeID: edgeID, Code: code, Message: fmt.Sprintf(format, args...),
	})
}

// checkStart requires exactly one start node and returns the first one found.
func (v *validator) checkStart() *workflow.Node {
	starts := v.idx.Starts()
	if len(starts) == 0 {
		v.errorf("", "", CodeMissingStart, "workflow has no start node (no entry point)")
		return nil
	}
	for _, extra := range starts[1:] {
		v.errorf(extra.ID, "", CodeAmbiguousStart,
			"start node %s is ambiguous: %s is already the entry point", extra.ID, starts[0].ID)
	}
	return starts[0]
}

// checkEdges reports duplicate ids, dangling endpoints and repeated routes.
func (v *validator) checkEdges() {
	seenNodes := make(map[string]bool)
	for _, n := range v.idx.Nodes() {
		if seenNodes[n.ID] {
			v.errorf(n.ID, "", CodeDuplicateNodeID, "node id %s is used more than once", n.ID)
		}
		seenNodes[n.ID] = true
	}

	seenEdges := make(map[string]bool)
	var routes []*workflow.Edge
	for _, e := range v.def.Edges {
		if e == nil {
			continue
		}
		if seenEdges[e.ID] {
			v.errorf("", e.ID, CodeDuplicateEdgeID, "edge id %s is used more than once", e.ID)
		}
		seenEdges[e.ID] = true

		if _, ok := v.idx.Node(e.Source); !ok {
			v.errorf("", e.ID, CodeDanglingEdgeSource, "edge %s references missing source node %q", e.ID, e.Source)
		}
		if _, ok := v.idx.Node(e.Target); !ok {
			v.errorf("", e.ID, CodeDanglingEdgeTarget, "edge %s references missing target node %q", e.ID, e.Target)
		}

		for _, prev := range routes {
			if prev.SameRoute(e) {
				v.errorf("", e.ID, CodeDuplicateEdge,
					"edge %s duplicates edge %s between %s and %s", e.ID, prev.ID, e.Source, e.Target)
				break
			}
		}
		routes = append(routes, e)
	}
}

func (v *validator) checkReachability(start *workflow.Node) map[string]bool {
	reachable := v.idx.Reachable(start.ID)
	for _, n := range v.idx.Nodes() {
		if !reachable[n.ID] && n.Type != workflow.NodeTypeStart {
			v.warnf(n.ID, "", CodeUnreachableNode, "node %s is unreachable from start node %s", n.ID, start.ID)
		}
	}
	return reachable
}

func (v *validator) checkTermination(reachable map[string]bool) {
	for _, n := range v.idx.Nodes() {
		if !reachable[n.ID] {
			continue
		}
		if v.idx.OutDegree(n.ID) == 0 || n.Type == workflow.NodeTypeErrorHandler {
			return
		}
	}
	v.warnf("", "", CodeNoTerminationPath, "every reachable node has an outgoing edge; the workflow has no termination path")
}

// checkCycles classifies each cyclic component: it is a bounded loop only when
// every member is a bounded loop node.
func (v *validator) checkCycles() {
	for _, component := range v.idx.Components() {
		culprit := ""
		for _, id := range component {
			if !v.boundedLoop(id) {
				culprit = id
				break
			}
		}

		anchor := culprit
		if anchor == "" {
			anchor = component[0]
		}
		c, ok := v.idx.CycleThrough(anchor, component)
		if !ok {
			continue
		}
		path := strings.Join(append(append([]string(nil), c.Nodes...), c.Nodes[0]), " -> ")
		if culprit == "" {
			v.warnf(anchor, c.BackEdge.ID, CodeBoundedLoop, "bounded loop: %s", path)
		} else {
			v.errorf(anchor, c.BackEdge.ID, CodeCycleDetected, "cycle detected: %s", path)
		}
	}
}

// boundedLoop reports whether id is a loop node with an iteration bound.
func (v *validator) boundedLoop(id string) bool {
	n, _ := v.idx.Node(id)
	if n == nil || n.Type != workflow.NodeTypeLoop {
		return false
	}
	cfg, ok := n.Config.(*workflow.LoopConfig)
	return ok && cfg.Bounded()
}
