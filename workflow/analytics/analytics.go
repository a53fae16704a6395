package analytics

import (
	"github.com/BaSui01/flowstudio/workflow"
)

// DefaultMaxPaths caps path enumeration unless overridden with WithMaxPaths.
const DefaultMaxPaths = 1000

// Level classifies a complexity score for display.
type Level string

const (
	LevelSimple   Level = "simple"
	LevelModerate Level = "moderate"
	LevelComplex  Level = "complex"
)

// Classify maps a complexity score to its display level.
func Classify(score int) Level {
	switch {
	case score <= 3:
		return LevelSimple
	case score <= 6:
		return LevelModerate
	default:
		return LevelComplex
	}
}

// Report holds advisory metrics derived from a definition.
type Report struct {
	ComplexityScore         int                       `json:"complexityScore"`
	ComplexityLevel         Level                     `json:"complexityLevel"`
	TotalNodes              int                       `json:"totalNodes"`
	TotalEdges              int                       `json:"totalEdges"`
	NodeTypeDistribution    map[workflow.NodeType]int `json:"nodeTypeDistribution"`
	ExecutionPaths          [][]string                `json:"executionPaths"`
	PathsTruncated          bool                      `json:"pathsTruncated,omitempty"`
	PotentialBottlenecks    []Bottleneck              `json:"potentialBottlenecks"`
	OptimizationSuggestions []Suggestion              `json:"optimizationSuggestions"`
}

// Option configures Analyze.
type Option func(*options)

type options struct {
	includeZeroCounts bool
	maxPaths          int
}

// WithZeroCounts lists every node type in the distribution, present or not.
func WithZeroCounts() Option {
	return func(o *options) { o.includeZeroCounts = true }
}

// WithMaxPaths caps the number of enumerated execution paths. Values below 1
// restore the default.
func WithMaxPaths(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = DefaultMaxPaths
		}
		o.maxPaths = n
	}
}

// Analyze computes the report for def. It is pure and never panics, degrading
// on invalid graphs instead: no paths without a unique start node, dangling
// edges ignored.
func Analyze(def *workflow.Definition, opts ...Option) Report {
	o := options{maxPaths: DefaultMaxPaths}
	for _, opt := range opts {
		opt(&o)
	}

	idx := workflow.NewIndex(def)
	nodes := idx.Nodes()

	edges := 0
	for _, e := range idx.Definition().Edges {
		if e != nil {
			edges++
		}
	}

	score := Complexity(idx)
	paths, truncated := enumeratePaths(idx, o.maxPaths)
	bottlenecks := findBottlenecks(idx)

	return Report{
		ComplexityScore:         score,
		ComplexityLevel:         Classify(score),
		TotalNodes:              len(nodes),
		TotalEdges:              edges,
		NodeTypeDistribution:    distribution(nodes, o.includeZeroCounts),
		ExecutionPaths:          paths,
		PathsTruncated:          truncated,
		PotentialBottlenecks:    bottlenecks,
		OptimizationSuggestions: suggest(idx, bottlenecks),
	}
}

// Complexity weighs one point per node, two more per conditional or loop node
// and one per resolved edge beyond a spanning tree.
func Complexity(idx *workflow.Index) int {
	nodes := idx.Nodes()
	score := len(nodes)
	for _, n := range nodes {
		if n.Type == workflow.NodeTypeConditional || n.Type == workflow.NodeTypeLoop {
			score += 2
		}
	}
	if extra := idx.ResolvedEdges() - max(len(nodes)-1, 0); extra > 0 {
		score += extra
	}
	return score
}

func distribution(nodes []*workflow.Node, includeZero bool) map[workflow.NodeType]int {
	dist := make(map[workflow.NodeType]int)
	if includeZero {
		for _, t := range workflow.AllNodeTypes() {
			dist[t] = 0
		}
	}
	for _, n := range nodes {
		dist[n.Type]++
	}
	return dist
}
