// Package report renders the audit report markdown from a state record.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/augur-audit/augur/internal/scoring"
	"github.com/augur-audit/augur/internal/state"
)

// Generator writes the audit report into the artifacts directory.
type Generator struct {
	ArtifactsDir string
}

// ReportPath returns where the report markdown lives.
func (g *Generator) ReportPath() string {
	return filepath.Join(g.ArtifactsDir, "report.md")
}

// Write renders the report for the given state and returns its path. The
// report is written even for failed runs; invariant errors get their own
// section so a failed run still leaves a readable trail.
func (g *Generator) Write(st *state.State) (string, error) {
	if err := os.MkdirAll(g.ArtifactsDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts directory: %w", err)
	}
	path := g.ReportPath()
	if err := os.WriteFile(path, []byte(g.Render(st)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Render produces the report markdown without touching disk.
func (g *Generator) Render(st *state.State) string {
	var signals map[string]int
	var evidence []state.EvidenceRef
	if st.StaticScan != nil {
		signals = st.StaticScan.Signals
		evidence = st.StaticScan.Evidence
	}

	lines := []string{"# Augur Audit Report", "", "## Findings"}
	if len(signals) > 0 {
		for _, key := range sortedSignalKeys(signals) {
			lines = append(lines, fmt.Sprintf("- %s: %d", key, signals[key]))
		}
	} else {
		lines = append(lines, "- No findings captured.")
	}

	lines = append(lines, "", "## Evidence")
	if len(evidence) > 0 {
		for _, item := range evidence {
			path := item.Path
			if path == "" {
				path = "unknown"
			}
			category := item.Category
			if category == "" {
				category = "unknown"
			}
			lines = append(lines, fmt.Sprintf("- %s at %s", category, path))
		}
	} else {
		lines = append(lines, "- No evidence captured.")
	}

	lines = append(lines, "", "## Recommendations")
	if recs := recommendations(signals); len(recs) > 0 {
		for _, rec := range recs {
			lines = append(lines, "- "+rec)
		}
	} else {
		lines = append(lines, "- No recommendations available.")
	}

	ranked := scoring.RankFindings(scoring.CollectFindings(st), scoring.DefaultWeights())
	lines = append(lines, "", "## Ranked Findings", scoring.FormatRankedFindings(ranked))

	lines = append(lines, "", "## Capabilities Executed / Skipped")
	executed, skipped := formatCapabilities(st.Capabilities)
	lines = append(lines, "- Executed: "+executed)
	lines = append(lines, "- Skipped: "+skipped)

	lines = append(lines, "", "## LLM Synthesis", "_This section is heuristic synthesis, not evidence._")
	lines = append(lines, synthesisLine(st.LLMSynthesis))

	if len(st.InvariantErrors) > 0 {
		lines = append(lines, "", "## Errors")
		for _, e := range st.InvariantErrors {
			lines = append(lines, "- "+e)
		}
	}

	return strings.Join(lines, "\n") + "\n"
}

// recommendations maps signal classes to remediation guidance.
func recommendations(signals map[string]int) []string {
	var recs []string
	if signals["reentrancy"] > 0 {
		recs = append(recs, "Review reentrancy guards and external call ordering.")
	}
	if signals["unchecked_return"] > 0 {
		recs = append(recs, "Handle return values from external calls.")
	}
	if signals["delegatecall"] > 0 {
		recs = append(recs, "Audit delegatecall usage for storage safety.")
	}
	return recs
}

// formatCapabilities renders each bucket as "name (reason)" joined by commas,
// sorted by name. Executed entries fall back to their status.
func formatCapabilities(caps *state.Capabilities) (executed, skipped string) {
	if caps == nil {
		return "None", "None"
	}

	executedNames := make([]string, 0, len(caps.Executed))
	for name := range caps.Executed {
		executedNames = append(executedNames, name)
	}
	sort.Strings(executedNames)
	executedParts := make([]string, 0, len(executedNames))
	for _, name := range executedNames {
		status := caps.Executed[name].Status
		if status == "" {
			status = "unknown"
		}
		executedParts = append(executedParts, fmt.Sprintf("%s (%s)", name, status))
	}

	skippedNames := make([]string, 0, len(caps.Skipped))
	for name := range caps.Skipped {
		skippedNames = append(skippedNames, name)
	}
	sort.Strings(skippedNames)
	skippedParts := make([]string, 0, len(skippedNames))
	for _, name := range skippedNames {
		reason := caps.Skipped[name].Reason
		if reason == "" {
			reason = "unknown"
		}
		skippedParts = append(skippedParts, fmt.Sprintf("%s (%s)", name, reason))
	}

	return joinOrNone(executedParts), joinOrNone(skippedParts)
}

func joinOrNone(parts []string) string {
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}

func synthesisLine(synthesis *state.SynthesisResult) string {
	switch {
	case synthesis != nil && synthesis.Summary != "":
		return synthesis.Summary
	case synthesis != nil && synthesis.Status == "error":
		errText := synthesis.Error
		if errText == "" {
			errText = "unknown error"
		}
		return "- LLM synthesis failed: " + errText
	default:
		return "- LLM synthesis unavailable."
	}
}

func sortedSignalKeys(signals map[string]int) []string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
