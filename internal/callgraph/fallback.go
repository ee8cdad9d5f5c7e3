package callgraph

import "sort"

// fallbackGraph is a dependency-free adjacency-set backend used when the
// gonum backend is disabled by configuration.
type fallbackGraph struct {
	adj map[string]map[string]struct{}
}

func newFallbackGraph() *fallbackGraph {
	return &fallbackGraph{adj: map[string]map[string]struct{}{}}
}

func (fg *fallbackGraph) Backend() string { return BackendFallback }

func (fg *fallbackGraph) AddNode(name string) {
	if _, ok := fg.adj[name]; !ok {
		fg.adj[name] = map[string]struct{}{}
	}
}

func (fg *fallbackGraph) AddEdge(from, to string) {
	fg.AddNode(from)
	fg.AddNode(to)
	fg.adj[from][to] = struct{}{}
}

// Cycles runs a colored DFS, recording a closed cycle each time a gray node
// is revisited. Node iteration is sorted so traversal order is deterministic.
func (fg *fallbackGraph) Cycles() [][]string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(fg.adj))
	var cycles [][]string

	var visit func(node string, stack []string) []string
	visit = func(node string, stack []string) []string {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range fg.neighbors(node) {
			switch color[next] {
			case white:
				stack = visit(next, stack)
			case gray:
				for i, n := range stack {
					if n == next {
						cycle := append(append([]string{}, stack[i:]...), next)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		color[node] = black
		return stack[:len(stack)-1]
	}

	for _, node := range fg.nodes() {
		if color[node] == white {
			visit(node, nil)
		}
	}
	return canonicalCycles(cycles)
}

func (fg *fallbackGraph) HasPath(from, to string) bool {
	if _, ok := fg.adj[from]; !ok {
		return false
	}
	if _, ok := fg.adj[to]; !ok {
		return false
	}
	if from == to {
		return true
	}

	queue := []string{from}
	visited := map[string]struct{}{from: {}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == to {
			return true
		}
		for next := range fg.adj[node] {
			if _, seen := visited[next]; !seen {
				visited[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return false
}

func (fg *fallbackGraph) nodes() []string {
	nodes := make([]string, 0, len(fg.adj))
	for n := range fg.adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

func (fg *fallbackGraph) neighbors(node string) []string {
	out := make([]string, 0, len(fg.adj[node]))
	for n := range fg.adj[node] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
