package runner

import (
	"sync"

	"github.com/BaSui01/flowstudio/workflow"
)

// region is the part of a graph one flow walks: the main region reachable
// from the start node, or the body of a loop. Body edges never belong to a
// region's flow; edges closing a cycle (found by DFS from the roots) and
// edges re-entering a root are ignored.
type region struct {
	roots   []string
	nodes   map[string]bool
	out     map[string][]*workflow.Edge
	pending map[string]int
}

// size is the number of nodes in the region.
func (r *region) size() int { return len(r.nodes) }

type plan struct {
	idx *workflow.Index

	mu     sync.Mutex
	bodies map[string]*region
}

func newPlan(def *workflow.Definition) *plan {
	return &plan{idx: workflow.NewIndex(def), bodies: make(map[string]*region)}
}

// flowEdges returns the edges of id a flow may follow.
func (p *plan) flowEdges(id string) []*workflow.Edge {
	var out []*workflow.Edge
	for _, e := range p.idx.Out(id) {
		if e.SourceHandle == workflow.HandleBody {
			continue
		}
		out = append(out, e)
	}
	return out
}

// region collects the nodes reachable from roots, skipping excluded nodes
// other than the roots themselves.
func (p *plan) region(roots []string, exclude map[string]bool) *region {
	r := &region{
		roots:   roots,
		nodes:   make(map[string]bool),
		out:     make(map[string][]*workflow.Edge),
		pending: make(map[string]int),
	}
	isRoot := make(map[string]bool, len(roots))
	queue := make([]string, 0, len(roots))
	for _, id := range roots {
		isRoot[id] = true
		if !r.nodes[id] {
			r.nodes[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range p.flowEdges(id) {
			if r.nodes[e.Target] || exclude[e.Target] {
				continue
			}
			r.nodes[e.Target] = true
			queue = append(queue, e.Target)
		}
	}

	back := p.backEdges(r, roots)
	for id := range r.nodes {
		for _, e := range p.flowEdges(id) {
			if !r.nodes[e.Target] || isRoot[e.Target] || back[e] {
				continue
			}
			r.out[id] = append(r.out[id], e)
			r.pending[e.Target]++
		}
	}
	return r
}

// backEdges finds edges pointing to a node on the current DFS path.
func (p *plan) backEdges(r *region, roots []string) map[*workflow.Edge]bool {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(r.nodes))
	back := make(map[*workflow.Edge]bool)

	type frame struct {
		id    string
		edges []*workflow.Edge
		next  int
	}
	for _, root := range roots {
		if color[root] != white {
			continue
		}
		color[root] = grey
		stack := []*frame{{id: root, edges: p.flowEdges(root)}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next == len(top.edges) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			e := top.edges[top.next]
			top.next++
			if !r.nodes[e.Target] {
				continue
			}
			switch color[e.Target] {
			case grey:
				back[e] = true
			case white:
				color[e.Target] = grey
				stack = append(stack, &frame{id: e.Target, edges: p.flowEdges(e.Target)})
			}
		}
	}
	return back
}

// body returns the region a loop iterates: everything reachable from its
// body edges that is not part of the enclosing region.
func (p *plan) body(loopID string, outer *region) *region {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.bodies[loopID]; ok {
		return r
	}

	var roots []string
	seen := make(map[string]bool)
	for _, e := range p.idx.Out(loopID) {
		if e.SourceHandle != workflow.HandleBody || e.Target == loopID || seen[e.Target] {
			continue
		}
		if _, ok := p.idx.Node(e.Target); !ok {
			continue
		}
		seen[e.Target] = true
		roots = append(roots, e.Target)
	}
	exclude := make(map[string]bool, len(outer.nodes)+1)
	for id := range outer.nodes {
		exclude[id] = true
	}
	exclude[loopID] = true

	r := p.region(roots, exclude)
	p.bodies[loopID] = r
	return r
}
