package callgraph

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// gonumGraph is the primary backend. Self-loops are tracked separately
// because simple.DirectedGraph rejects them.
type gonumGraph struct {
	g         *simple.DirectedGraph
	ids       map[string]int64
	names     map[int64]string
	selfLoops map[string]struct{}
}

func newGonumGraph() *gonumGraph {
	return &gonumGraph{
		g:         simple.NewDirectedGraph(),
		ids:       map[string]int64{},
		names:     map[int64]string{},
		selfLoops: map[string]struct{}{},
	}
}

func (gg *gonumGraph) Backend() string { return BackendGonum }

func (gg *gonumGraph) AddNode(name string) { gg.node(name) }

func (gg *gonumGraph) node(name string) graph.Node {
	if id, ok := gg.ids[name]; ok {
		return gg.g.Node(id)
	}
	n := gg.g.NewNode()
	gg.g.AddNode(n)
	gg.ids[name] = n.ID()
	gg.names[n.ID()] = name
	return n
}

func (gg *gonumGraph) AddEdge(from, to string) {
	if from == to {
		gg.node(from)
		gg.selfLoops[from] = struct{}{}
		return
	}
	gg.g.SetEdge(gg.g.NewEdge(gg.node(from), gg.node(to)))
}

func (gg *gonumGraph) Cycles() [][]string {
	var cycles [][]string
	for _, c := range topo.DirectedCyclesIn(gg.g) {
		cycle := make([]string, len(c))
		for i, n := range c {
			cycle[i] = gg.names[n.ID()]
		}
		cycles = append(cycles, cycle)
	}
	for name := range gg.selfLoops {
		cycles = append(cycles, []string{name, name})
	}
	return canonicalCycles(cycles)
}

func (gg *gonumGraph) HasPath(from, to string) bool {
	fromID, okFrom := gg.ids[from]
	toID, okTo := gg.ids[to]
	if !okFrom || !okTo {
		return false
	}
	if fromID == toID {
		return true
	}
	bfs := traverse.BreadthFirst{}
	found := bfs.Walk(gg.g, gg.g.Node(fromID), func(n graph.Node, _ int) bool {
		return n.ID() == toID
	})
	return found != nil
}
