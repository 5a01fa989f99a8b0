package env

import "sync"

// depGraph records which variables wait on which during one resolve pass.
// Edges point from the waiting variable to its dependency.
type depGraph struct {
	mu        sync.Mutex
	adjacency map[string][]string
	edges     map[[2]string]bool
}

func newDepGraph() *depGraph {
	return &depGraph{
		adjacency: make(map[string][]string),
		edges:     make(map[[2]string]bool),
	}
}

// add records from -> to and reports whether the edge is new.
func (g *depGraph) add(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addLocked(from, to)
}

func (g *depGraph) addLocked(from, to string) bool {
	key := [2]string{from, to}
	if g.edges[key] {
		return false
	}
	g.edges[key] = true
	g.adjacency[from] = append(g.adjacency[from], to)
	return true
}

// link records from -> to for a wait discovered while resolving. If the new
// edge closes a loop back to from, waiting would never finish and the
// waiting variable is reported.
func (g *depGraph) link(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.addLocked(from, to) {
		return nil
	}
	if g.reachesLocked(to, from) {
		return circular(from)
	}
	return nil
}

func (g *depGraph) reachesLocked(start, target string) bool {
	visited := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if name == target {
			return true
		}
		if visited[name] {
			continue
		}
		visited[name] = true
		stack = append(stack, g.adjacency[name]...)
	}
	return false
}

// cyclic reports whether a cycle is reachable from start. Shared
// dependencies (A->B, A->C, B->D, C->D) are not cycles.
func (g *depGraph) cyclic(start string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	const (
		unvisited = iota
		onStack
		finished
	)
	state := make(map[string]int)

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case onStack:
			return true
		case finished:
			return false
		}
		state[name] = onStack
		for _, dep := range g.adjacency[name] {
			if visit(dep) {
				return true
			}
		}
		state[name] = finished
		return false
	}
	return visit(start)
}

// deps returns the recorded dependencies of name.
func (g *depGraph) deps(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.adjacency[name]...)
}
