package analytics

import (
	"sort"

	"github.com/BaSui01/flowstudio/workflow"
)

// FanInThreshold is the in-degree at which a node counts as a convergence point.
const FanInThreshold = 3

// Bottleneck reasons.
const (
	ReasonFanIn          = "fan_in"
	ReasonMissingTimeout = "missing_timeout"
	ReasonModelInCycle   = "model_in_cycle"
)

// Bottleneck flags a node likely to dominate cost or latency.
type Bottleneck struct {
	NodeID      string `json:"nodeId"`
	Reason      string `json:"reason"`
	ImpactScore int    `json:"impactScore"`
}

// findBottlenecks returns one entry per node and reason, sorted by impact
// descending and then by node order.
func findBottlenecks(idx *workflow.Index) []Bottleneck {
	inCycle := idx.StronglyConnected()
	out := []Bottleneck{}

	for _, n := range idx.Nodes() {
		impact := idx.InDegree(n.ID) + idx.OutDegree(n.ID)
		flag := func(reason string) {
			out = append(out, Bottleneck{NodeID: n.ID, Reason: reason, ImpactScore: impact})
		}

		if idx.InDegree(n.ID) >= FanInThreshold {
			flag(ReasonFanIn)
		}
		if missingTimeout(n) {
			flag(ReasonMissingTimeout)
		}
		if n.Type == workflow.NodeTypeModel && inCycle[n.ID] {
			flag(ReasonModelInCycle)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ImpactScore > out[j].ImpactScore
	})
	return out
}

func missingTimeout(n *workflow.Node) bool {
	switch n.Type {
	case workflow.NodeTypeTool:
		c, ok := n.Config.(*workflow.ToolConfig)
		return !ok || c.TimeoutMs <= 0
	case workflow.NodeTypeRetrieval:
		c, ok := n.Config.(*workflow.RetrievalConfig)
		return !ok || c.TimeoutMs <= 0
	}
	return false
}
