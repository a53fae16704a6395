package analytics

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/validation"
)

// Suggestion types.
const (
	SuggestReduceFanIn       = "reduce_fan_in"
	SuggestAddTimeout        = "add_timeout"
	SuggestCacheModelCall    = "cache_model_call"
	SuggestMergeModelNodes   = "merge_model_nodes"
	SuggestRemoveUnusedVar   = "remove_unused_variable"
	SuggestRemoveUnreachable = "remove_unreachable_node"
)

// Suggestion is advisory text; nothing applies it automatically.
type Suggestion struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	NodeIDs []string `json:"nodeIds,omitempty"`
}

func suggest(idx *workflow.Index, bottlenecks []Bottleneck) []Suggestion {
	out := []Suggestion{}

	byReason := func(reason string) []Bottleneck {
		var matched []Bottleneck
		for _, n := range idx.Nodes() {
			for _, b := range bottlenecks {
				if b.NodeID == n.ID && b.Reason == reason {
					matched = append(matched, b)
					break
				}
			}
		}
		return matched
	}

	for _, b := range byReason(ReasonFanIn) {
		out = append(out, Suggestion{
			Type:    SuggestReduceFanIn,
			Message: fmt.Sprintf("node %s joins %d incoming edges; consider an aggregation step or splitting the work", b.NodeID, idx.InDegree(b.NodeID)),
			NodeIDs: []string{b.NodeID},
		})
	}
	for _, b := range byReason(ReasonMissingTimeout) {
		n, _ := idx.Node(b.NodeID)
		out = append(out, Suggestion{
			Type:    SuggestAddTimeout,
			Message: fmt.Sprintf("%s node %s has no timeout; set timeoutMs to bound a slow call", n.Type, b.NodeID),
			NodeIDs: []string{b.NodeID},
		})
	}
	for _, b := range byReason(ReasonModelInCycle) {
		out = append(out, Suggestion{
			Type:    SuggestCacheModelCall,
			Message: fmt.Sprintf("model node %s runs inside a cycle; cache its result or move it out of the loop", b.NodeID),
			NodeIDs: []string{b.NodeID},
		})
	}

	out = append(out, mergeableModels(idx)...)
	out = append(out, unusedVariables(idx)...)
	out = append(out, unreachableNodes(idx)...)
	return out
}

// mergeableModels pairs model nodes joined by a plain edge whose static
// configuration (model, temperature, token limit, system prompt) matches.
func mergeableModels(idx *workflow.Index) []Suggestion {
	var out []Suggestion
	seen := make(map[[2]string]bool)
	for _, n := range idx.Nodes() {
		a, ok := n.Config.(*workflow.ModelConfig)
		if !ok {
			continue
		}
		for _, e := range idx.Out(n.ID) {
			if e.IsErrorEdge() || e.Target == n.ID {
				continue
			}
			next, _ := idx.Node(e.Target)
			b, ok := next.Config.(*workflow.ModelConfig)
			if !ok || !sameStaticConfig(a, b) {
				continue
			}
			pair := [2]string{n.ID, next.ID}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			out = append(out, Suggestion{
				Type:    SuggestMergeModelNodes,
				Message: fmt.Sprintf("model nodes %s and %s run in sequence with identical settings; consider merging their prompts into one call", n.ID, next.ID),
				NodeIDs: []string{n.ID, next.ID},
			})
		}
	}
	return out
}

func sameStaticConfig(a, b *workflow.ModelConfig) bool {
	return a.Model == b.Model &&
		a.MaxTokens == b.MaxTokens &&
		a.SystemPrompt == b.SystemPrompt &&
		reflect.DeepEqual(a.Temperature, b.Temperature)
}

// unusedVariables reports declared variables nobody reads, and variable nodes
// writing an undeclared name nobody reads.
func unusedVariables(idx *workflow.Index) []Suggestion {
	read := make(map[string]bool)
	writers := make(map[string][]string)
	for _, n := range idx.Nodes() {
		for _, name := range validation.Reads(n) {
			read[name] = true
		}
		if c, ok := n.Config.(*workflow.VariableConfig); ok && c.Name != "" {
			writers[c.Name] = append(writers[c.Name], n.ID)
		}
	}
	for _, e := range idx.Definition().Edges {
		if e != nil && e.Condition != "" {
			for _, name := range validation.EdgeReferences(e) {
				read[name] = true
			}
		}
	}

	var out []Suggestion
	declared := idx.Definition().Variables
	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if read[name] {
			continue
		}
		out = append(out, Suggestion{
			Type:    SuggestRemoveUnusedVar,
			Message: fmt.Sprintf("variable %q is declared but never read", name),
			NodeIDs: writers[name],
		})
	}

	for _, n := range idx.Nodes() {
		c, ok := n.Config.(*workflow.VariableConfig)
		if !ok || c.Name == "" || read[c.Name] {
			continue
		}
		if _, isDeclared := declared[c.Name]; isDeclared {
			continue
		}
		out = append(out, Suggestion{
			Type:    SuggestRemoveUnusedVar,
			Message: fmt.Sprintf("variable node %s writes %q, which is never read", n.ID, c.Name),
			NodeIDs: []string{n.ID},
		})
	}
	return out
}

func unreachableNodes(idx *workflow.Index) []Suggestion {
	starts := idx.Starts()
	if len(starts) != 1 {
		return nil
	}
	reachable := idx.Reachable(starts[0].ID)
	var out []Suggestion
	for _, n := range idx.Nodes() {
		if reachable[n.ID] || n.Type == workflow.NodeTypeStart {
			continue
		}
		out = append(out, Suggestion{
			Type:    SuggestRemoveUnreachable,
			Message: fmt.Sprintf("node %s can never run; remove it or connect it to the flow", n.ID),
			NodeIDs: []string{n.ID},
		})
	}
	return out
}
