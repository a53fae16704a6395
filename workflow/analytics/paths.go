package analytics

import "github.com/BaSui01/flowstudio/workflow"

// enumeratePaths lists every simple path from the unique start node to a
// terminal node (no resolved outgoing edge). The visited set is local to the
// current path, so shared nodes appear on several paths but never twice on one.
func enumeratePaths(idx *workflow.Index, limit int) ([][]string, bool) {
	paths := [][]string{}
	starts := idx.Starts()
	if len(starts) != 1 {
		return paths, false
	}

	onPath := make(map[string]bool)
	var path []string
	truncated := false

	var walk func(id string) bool
	walk = func(id string) bool {
		onPath[id] = true
		path = append(path, id)
		defer func() {
			path = path[:len(path)-1]
			delete(onPath, id)
		}()

		if idx.OutDegree(id) == 0 {
			if len(paths) == limit {
				truncated = true
				return false
			}
			paths = append(paths, append([]string(nil), path...))
			return true
		}

		seen := make(map[string]bool)
		for _, e := range idx.Out(id) {
			if onPath[e.Target] || seen[e.Target] {
				continue
			}
			seen[e.Target] = true
			if !walk(e.Target) {
				return false
			}
		}
		return true
	}
	walk(starts[0].ID)
	return paths, truncated
}
