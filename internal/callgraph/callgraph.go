// Package callgraph builds directed call graphs and answers the two queries
// graph analysis needs: cycle enumeration and reachability. Two backends
// implement the same interface; both canonicalize cycles so their outputs are
// interchangeable byte for byte.
package callgraph

import "sort"

// Backend names.
const (
	BackendGonum    = "gonum"
	BackendFallback = "fallback"
)

// Graph is a directed call graph under construction.
type Graph interface {
	// Backend reports which implementation is in use.
	Backend() string
	// AddNode ensures a node exists.
	AddNode(name string)
	// AddEdge adds a directed call edge, creating nodes as needed.
	AddEdge(from, to string)
	// Cycles enumerates elementary cycles in canonical order. Each cycle is
	// closed: the first node is repeated at the end.
	Cycles() [][]string
	// HasPath reports whether target is reachable from source. A node always
	// reaches itself.
	HasPath(from, to string) bool
}

// New returns a graph for the named backend, defaulting to gonum for empty
// or unrecognized names.
func New(backend string) Graph {
	if backend == BackendFallback {
		return newFallbackGraph()
	}
	return newGonumGraph()
}

// canonicalCycles normalizes each cycle to closed form rotated to its
// lexicographically smallest node, then sorts the cycle list. Both backends
// run their raw cycles through this so results are comparable.
func canonicalCycles(cycles [][]string) [][]string {
	out := make([][]string, 0, len(cycles))
	for _, c := range cycles {
		if len(c) == 0 {
			continue
		}
		// Drop the closing repeat if present, rotate, re-close.
		if len(c) > 1 && c[0] == c[len(c)-1] {
			c = c[:len(c)-1]
		}
		min := 0
		for i := range c {
			if c[i] < c[min] {
				min = i
			}
		}
		rotated := make([]string, 0, len(c)+1)
		rotated = append(rotated, c[min:]...)
		rotated = append(rotated, c[:min]...)
		rotated = append(rotated, c[min])
		out = append(out, rotated)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return out
}
