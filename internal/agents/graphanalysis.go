package agents

import (
	"sort"
	"strings"

	"github.com/augur-audit/augur/internal/callgraph"
	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/tools"
)

// GraphAnalysis flags risky call-graph patterns in analyzer output: call
// cycles, privileged entry points, and external calls reachable from them.
type GraphAnalysis struct {
	// Backend selects the call-graph implementation.
	Backend string
	// RiskThreshold is the score at which escalation jumps to level 2.
	RiskThreshold int
}

var privilegedModifierKeywords = []string{"onlyowner", "owner", "admin", "onlyrole"}

// Analyze builds the call graph from analyzer hints and records the risk
// summary on the state. Cycles, entry points, and sensitive calls each add
// one point to the score.
func (a *GraphAnalysis) Analyze(st *state.State, payload *tools.SlitherJSON) *state.GraphAnalysisResult {
	g := a.buildGraph(payload)
	privileged := privilegedEntryPoints(payload)
	cycles := g.Cycles()
	sensitive := sensitiveExternalCalls(g, payload, privileged)

	score := 0
	if len(cycles) > 0 {
		score++
	}
	if len(privileged) > 0 {
		score++
	}
	if len(sensitive) > 0 {
		score++
	}

	if cycles == nil {
		cycles = [][]string{}
	}
	result := &state.GraphAnalysisResult{
		Backend:                g.Backend(),
		Score:                  score,
		Cycles:                 cycles,
		PrivilegedEntryPoints:  privileged,
		SensitiveExternalCalls: sensitive,
	}
	st.GraphAnalysis = result

	threshold := a.RiskThreshold
	if threshold <= 0 {
		threshold = 1
	}
	if score >= threshold && st.EscalationLevel < 2 {
		st.EscalationLevel = 2
	}
	return result
}

// buildGraph assembles edges from every hint the analyzer exposes: the
// explicit call graph, the flat caller/callee list, and per-function call
// lists.
func (a *GraphAnalysis) buildGraph(payload *tools.SlitherJSON) callgraph.Graph {
	g := callgraph.New(a.Backend)

	if payload.CallGraph != nil {
		for _, node := range payload.CallGraph.Nodes {
			g.AddNode(node)
		}
		for _, edge := range payload.CallGraph.Edges {
			if edge.From != "" && edge.To != "" {
				g.AddEdge(edge.From, edge.To)
			}
		}
	}
	for _, call := range payload.FunctionCalls {
		if call.Caller != "" && call.Callee != "" {
			g.AddEdge(call.Caller, call.Callee)
		}
	}
	for _, fn := range payload.Functions {
		for _, callee := range fn.Calls {
			if fn.Name != "" && callee != "" {
				g.AddEdge(fn.Name, callee)
			}
		}
	}
	return g
}

// privilegedEntryPoints returns public/external functions guarded by an
// owner/admin/role modifier, sorted.
func privilegedEntryPoints(payload *tools.SlitherJSON) []string {
	seen := map[string]struct{}{}
	for _, fn := range payload.Functions {
		if fn.Name == "" {
			continue
		}
		visibility := strings.ToLower(fn.Visibility)
		if visibility != "public" && visibility != "external" {
			continue
		}
		if hasPrivilegedModifier(fn.Modifiers) {
			seen[fn.Name] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func hasPrivilegedModifier(modifiers []string) bool {
	for _, modifier := range modifiers {
		lower := strings.ToLower(modifier)
		for _, keyword := range privilegedModifierKeywords {
			if strings.Contains(lower, keyword) {
				return true
			}
		}
	}
	return false
}

// sensitiveExternalCalls returns externally calling functions reachable from
// any privileged entry point, sorted.
func sensitiveExternalCalls(g callgraph.Graph, payload *tools.SlitherJSON, privileged []string) []string {
	callers := map[string]struct{}{}
	for _, fn := range payload.Functions {
		if len(fn.ExternalCalls) > 0 && fn.Name != "" {
			callers[fn.Name] = struct{}{}
		}
	}

	risky := map[string]struct{}{}
	for _, entry := range privileged {
		for target := range callers {
			if g.HasPath(entry, target) {
				risky[target] = struct{}{}
			}
		}
	}
	return sortedKeys(risky)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
