// Package graph provides dependency ordering for the linker.
//
// Nodes are component ids; an edge A→B means A imports one of B's
// exports, so B must be instantiated before A. Iteration order is
// insertion order, which keeps topological sorts deterministic.
package graph

// Graph is a directed dependency graph with deterministic ordering.
type Graph[T comparable] struct {
	nodes []T
	seen  map[T]bool
	edges map[T][]T
	has   map[T]map[T]bool
}

// New creates an empty graph.
func New[T comparable]() *Graph[T] {
	return &Graph[T]{
		seen:  make(map[T]bool),
		edges: make(map[T][]T),
		has:   make(map[T]map[T]bool),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph[T]) AddNode(n T) {
	if g.seen[n] {
		return
	}
	g.seen[n] = true
	g.nodes = append(g.nodes, n)
}

// AddEdge records that from depends on to. Both nodes are added
// implicitly; duplicate edges collapse.
func (g *Graph[T]) AddEdge(from, to T) {
	g.AddNode(from)
	g.AddNode(to)
	if g.has[from] == nil {
		g.has[from] = make(map[T]bool)
	}
	if g.has[from][to] {
		return
	}
	g.has[from][to] = true
	g.edges[from] = append(g.edges[from], to)
}

// Nodes returns all nodes in insertion order.
func (g *Graph[T]) Nodes() []T {
	out := make([]T, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// TopoSort returns a dependency order in which every node appears
// after all nodes it depends on. If the graph contains a cycle, order
// is nil and cycle holds one cyclic path, closed (first node repeated
// at the end).
func (g *Graph[T]) TopoSort() (order []T, cycle []T) {
	emitted := make(map[T]bool, len(g.nodes))
	order = make([]T, 0, len(g.nodes))

	for len(order) < len(g.nodes) {
		progress := false
		for _, n := range g.nodes {
			if emitted[n] {
				continue
			}
			ready := true
			for _, dep := range g.edges[n] {
				if !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				emitted[n] = true
				order = append(order, n)
				progress = true
			}
		}
		if !progress {
			return nil, g.findCycle(emitted)
		}
	}
	return order, nil
}

// findCycle locates one cycle among nodes that could not be emitted.
func (g *Graph[T]) findCycle(emitted map[T]bool) []T {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[T]int, len(g.nodes))
	var stack []T
	var cycle []T

	var visit func(n T) bool
	visit = func(n T) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, dep := range g.edges[n] {
			if emitted[dep] || color[dep] == black {
				continue
			}
			if color[dep] == gray {
				for i, s := range stack {
					if s == dep {
						cycle = append(append(cycle, stack[i:]...), dep)
						return true
					}
				}
			}
			if color[dep] == white && visit(dep) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for _, n := range g.nodes {
		if !emitted[n] && color[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}
