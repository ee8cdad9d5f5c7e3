package report

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augur-audit/augur/internal/state"
)

func fullState() *state.State {
	caps := state.NewCapabilities()
	caps.Executed["static_scan"] = state.ExecutedCapability{Status: "success"}
	caps.Skipped["fuzz_agent"] = state.SkippedCapability{Reason: "threshold_not_met", Evidence: "thresholds"}

	return &state.State{
		Status:       state.StatusCompleted,
		Capabilities: caps,
		StaticScan: &state.StaticScanResult{
			Signals: map[string]int{"reentrancy": 1, "unchecked_return": 0, "delegatecall": 2},
			Evidence: []state.EvidenceRef{
				{Category: "reentrancy", Path: "contracts/Vault.sol"},
				{Category: "dangerous_call"},
			},
			Findings: []state.Finding{{
				Category:      "reentrancy",
				Description:   "Reentrancy in withdraw",
				Severity:      "high",
				Confidence:    "high",
				SourceTool:    "slither",
				ArtifactPaths: []string{"artifacts/slither.json"},
			}},
		},
		LLMSynthesis: &state.SynthesisResult{Status: "success", Summary: "One reentrancy issue found."},
	}
}

func TestRenderFullReport(t *testing.T) {
	g := &Generator{ArtifactsDir: t.TempDir()}
	out := g.Render(fullState())

	assert.Contains(t, out, "# Augur Audit Report")
	assert.Contains(t, out, "- reentrancy: 1")
	assert.Contains(t, out, "- delegatecall: 2")
	assert.Contains(t, out, "- reentrancy at contracts/Vault.sol")
	assert.Contains(t, out, "- dangerous_call at unknown")
	assert.Contains(t, out, "- Review reentrancy guards and external call ordering.")
	assert.Contains(t, out, "- Audit delegatecall usage for storage safety.")
	assert.NotContains(t, out, "Handle return values from external calls.")
	assert.Contains(t, out, "## Ranked Findings")
	assert.Contains(t, out, "Reentrancy in withdraw")
	assert.Contains(t, out, "- Executed: static_scan (success)")
	assert.Contains(t, out, "- Skipped: fuzz_agent (threshold_not_met)")
	assert.Contains(t, out, "_This section is heuristic synthesis, not evidence._")
	assert.Contains(t, out, "One reentrancy issue found.")
	assert.NotContains(t, out, "## Errors")
}

func TestRenderEmptyState(t *testing.T) {
	g := &Generator{ArtifactsDir: t.TempDir()}
	out := g.Render(&state.State{})

	assert.Contains(t, out, "- No findings captured.")
	assert.Contains(t, out, "- No evidence captured.")
	assert.Contains(t, out, "- No recommendations available.")
	assert.Contains(t, out, "| - | 0 | - | - | - | - | No findings scored. |")
	assert.Contains(t, out, "- Executed: None")
	assert.Contains(t, out, "- Skipped: None")
	assert.Contains(t, out, "- LLM synthesis unavailable.")
}

func TestRenderSynthesisError(t *testing.T) {
	g := &Generator{ArtifactsDir: t.TempDir()}
	out := g.Render(&state.State{
		LLMSynthesis: &state.SynthesisResult{Status: "error", Error: "connection refused"},
	})
	assert.Contains(t, out, "- LLM synthesis failed: connection refused")

	out = g.Render(&state.State{
		LLMSynthesis: &state.SynthesisResult{Status: "error"},
	})
	assert.Contains(t, out, "- LLM synthesis failed: unknown error")
}

func TestRenderInvariantErrorsSection(t *testing.T) {
	g := &Generator{ArtifactsDir: t.TempDir()}
	out := g.Render(&state.State{
		Status:          state.StatusFailedInvariant,
		InvariantErrors: []string{"Budget spent decreased from previous value."},
	})

	assert.Contains(t, out, "## Errors")
	assert.Contains(t, out, "- Budget spent decreased from previous value.")
}

func TestWriteReportFile(t *testing.T) {
	dir := t.TempDir()
	g := &Generator{ArtifactsDir: dir}

	path, err := g.Write(fullState())
	require.NoError(t, err)
	assert.Equal(t, g.ReportPath(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, g.Render(fullState()), string(data))
}
