package workflow

import "sort"

// Index is a read-only adjacency view over a definition. Edges whose
// endpoints do not resolve are kept out of the adjacency lists and
// reported through Dangling.
type Index struct {
	def      *Definition
	byID     map[string]*Node
	out      map[string][]*Edge
	in       map[string][]*Edge
	dangling []*Edge
}

// NewIndex builds an index. The definition must not be mutated while the index is in use.
func NewIndex(def *Definition) *Index {
	idx := &Index{
		def:  def,
		byID: make(map[string]*Node),
		out:  make(map[string][]*Edge),
		in:   make(map[string][]*Edge),
	}
	if def == nil {
		idx.def = &Definition{}
		return idx
	}
	for _, n := range def.Nodes {
		if n == nil {
			continue
		}
		if _, dup := idx.byID[n.ID]; !dup {
			idx.byID[n.ID] = n
		}
	}
	for _, e := range def.Edges {
		if e == nil {
			continue
		}
		_, okSrc := idx.byID[e.Source]
		_, okDst := idx.byID[e.Target]
		if !okSrc || !okDst {
			idx.dangling = append(idx.dangling, e)
			continue
		}
		idx.out[e.Source] = append(idx.out[e.Source], e)
		idx.in[e.Target] = append(idx.in[e.Target], e)
	}
	return idx
}

// Definition returns the indexed definition.
func (x *Index) Definition() *Definition { return x.def }

// Nodes returns the nodes in definition order.
func (x *Index) Nodes() []*Node {
	out := make([]*Node, 0, len(x.def.Nodes))
	for _, n := range x.def.Nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Node returns the first node with the id.
func (x *Index) Node(id string) (*Node, bool) {
	n, ok := x.byID[id]
	return n, ok
}

// Out returns resolved outgoing edges in edge order.
func (x *Index) Out(id string) []*Edge { return x.out[id] }

// In returns resolved incoming edges in edge order.
func (x *Index) In(id string) []*Edge { return x.in[id] }

// OutDegree counts resolved outgoing edges.
func (x *Index) OutDegree(id string) int { return len(x.out[id]) }

// InDegree counts resolved incoming edges.
func (x *Index) InDegree(id string) int { return len(x.in[id]) }

// ResolvedEdges counts edges whose endpoints both exist.
func (x *Index) ResolvedEdges() int {
	n := 0
	for _, es := range x.out {
		n += len(es)
	}
	return n
}

// Dangling returns edges with a missing endpoint, in edge order.
func (x *Index) Dangling() []*Edge { return x.dangling }

// Starts returns the start nodes in definition order.
func (x *Index) Starts() []*Node {
	var starts []*Node
	for _, n := range x.Nodes() {
		if n.Type == NodeTypeStart {
			starts = append(starts, n)
		}
	}
	return starts
}

// Reachable returns the set of node ids reachable from root by breadth-first search.
func (x *Index) Reachable(root string) map[string]bool {
	seen := make(map[string]bool)
	if _, ok := x.byID[root]; !ok {
		return seen
	}
	queue := []string{root}
	seen[root] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range x.out[id] {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return seen
}

// Cycle is a concrete cycle inside a strongly connected component.
type Cycle struct {
	// Nodes lists cycle members starting at the node the cycle was traced through.
	Nodes []string
	// BackEdge closes the cycle.
	BackEdge *Edge
}

// Components returns the strongly connected components that contain a cycle
// (more than one member, or a single member with a self loop), computed with
// Tarjan's algorithm. Members follow node order and components are ordered by
// their first member.
func (x *Index) Components() [][]string {
	index := 0
	indices := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var found [][]string

	var strong func(id string)
	strong = func(id string) {
		indices[id] = index
		low[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		selfLoop := false
		for _, e := range x.out[id] {
			if e.Target == id {
				selfLoop = true
			}
			if _, seen := indices[e.Target]; !seen {
				strong(e.Target)
				low[id] = min(low[id], low[e.Target])
			} else if onStack[e.Target] {
				low[id] = min(low[id], indices[e.Target])
			}
		}

		if low[id] == indices[id] {
			var component []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == id {
					break
				}
			}
			if len(component) > 1 || selfLoop {
				found = append(found, component)
			}
		}
	}

	nodes := x.Nodes()
	for _, n := range nodes {
		if _, seen := indices[n.ID]; !seen {
			strong(n.ID)
		}
	}

	order := make(map[string]int, len(nodes))
	for i, n := range nodes {
		order[n.ID] = i
	}
	for _, c := range found {
		sort.Slice(c, func(i, j int) bool { return order[c[i]] < order[c[j]] })
	}
	sort.Slice(found, func(i, j int) bool { return order[found[i][0]] < order[found[j][0]] })
	return found
}

// CycleThrough returns the shortest cycle that starts and ends at id using
// only edges between members of component. ok is false when no such cycle exists.
func (x *Index) CycleThrough(id string, component []string) (Cycle, bool) {
	members := make(map[string]bool, len(component))
	for _, m := range component {
		members[m] = true
	}
	if !members[id] {
		return Cycle{}, false
	}

	via := make(map[string]*Edge)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range x.out[cur] {
			if !members[e.Target] {
				continue
			}
			if e.Target == id {
				path := []string{cur}
				for at := cur; at != id; {
					at = via[at].Source
					path = append(path, at)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return Cycle{Nodes: path, BackEdge: e}, true
			}
			if _, seen := via[e.Target]; !seen {
				via[e.Target] = e
				queue = append(queue, e.Target)
			}
		}
	}
	return Cycle{}, false
}

// StronglyConnected returns the set of node ids that lie on at least one cycle.
// Self loops count.
func (x *Index) StronglyConnected() map[string]bool {
	inCycle := make(map[string]bool)
	for _, c := range x.Components() {
		for _, id := range c {
			inCycle[id] = true
		}
	}
	return inCycle
}
