package agents

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augur-audit/augur/internal/callgraph"
	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/tools"
)

func missingBinary(string) (string, error) {
	return "", errors.New("executable file not found in $PATH")
}

type fakeCommander struct {
	result tools.ExecResult
	err    error
}

func (c fakeCommander) Run(context.Context, string, string, ...string) (tools.ExecResult, error) {
	return c.result, c.err
}

func writeSlitherJSON(t *testing.T, dir string, payload tools.SlitherJSON) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slither.json"), data, 0o644))
}

func existingSlither(t *testing.T, payload tools.SlitherJSON) *tools.SlitherRunner {
	t.Helper()
	dir := t.TempDir()
	writeSlitherJSON(t, dir, payload)
	return &tools.SlitherRunner{
		ArtifactsDir: dir,
		Cmd:          fakeCommander{},
		LookPath:     missingBinary,
		UseExisting:  true,
	}
}

func TestStaticScanExtractsSignalsAndEscalates(t *testing.T) {
	slither := existingSlither(t, tools.SlitherJSON{
		Results: tools.SlitherResults{Detectors: []tools.Detector{
			{
				Check:       "reentrancy-eth",
				Impact:      "high",
				Confidence:  "high",
				Description: "Reentrancy in withdraw()",
				Elements: []tools.DetectorElement{{
					SourceMapping: tools.SourceMapping{Filename: "Vault.sol", Lines: []int{10, 11}},
				}},
			},
			{Check: "unchecked-return-value", Description: "Return value ignored"},
			{Check: "low-level-calls", Description: "Low level call"},
			{Check: "naming-convention", Description: "Style nit"},
		}},
	})

	st := &state.State{}
	scan := &StaticScan{Slither: slither}
	payload, err := scan.Run(context.Background(), st, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, payload)

	require.NotNil(t, st.StaticScan)
	assert.Equal(t, map[string]int{
		"reentrancy":       1,
		"unchecked_return": 1,
		"delegatecall":     1,
	}, st.StaticScan.Signals)
	assert.Equal(t, 1, st.EscalationLevel)

	require.Len(t, st.StaticScan.Findings, 3)
	for _, f := range st.StaticScan.Findings {
		assert.Equal(t, "slither", f.SourceTool)
		assert.NotEmpty(t, f.ArtifactPaths)
		assert.NotEmpty(t, f.Confidence)
	}

	require.Len(t, st.StaticScan.Evidence, 1)
	assert.Equal(t, "reentrancy", st.StaticScan.Evidence[0].Category)
	assert.Equal(t, "Vault.sol", st.StaticScan.Evidence[0].Path)
	assert.Equal(t, []int{10, 11}, st.StaticScan.Evidence[0].Lines)
}

func TestStaticScanNoSignalsNoEscalation(t *testing.T) {
	slither := existingSlither(t, tools.SlitherJSON{
		Results: tools.SlitherResults{Detectors: []tools.Detector{
			{Check: "naming-convention", Description: "Style nit"},
		}},
	})

	st := &state.State{}
	scan := &StaticScan{Slither: slither}
	_, err := scan.Run(context.Background(), st, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, st.EscalationLevel)
	assert.Empty(t, st.StaticScan.Findings)
}

func TestStaticScanRecordsSkipEvidence(t *testing.T) {
	slither := &tools.SlitherRunner{
		ArtifactsDir: t.TempDir(),
		Cmd:          fakeCommander{},
		LookPath:     missingBinary,
	}

	st := &state.State{}
	scan := &StaticScan{Slither: slither}
	_, err := scan.Run(context.Background(), st, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, tools.StatusSkipped, st.StaticScan.Status)
	assert.Equal(t, "slither_unavailable", st.StaticScan.Reason)
	assert.Equal(t, "binary slither not found", st.StaticScan.SkipEvidence)
	assert.Equal(t, 0, st.EscalationLevel)
}

func TestStaticScanMergesLinterFindings(t *testing.T) {
	slither := existingSlither(t, tools.SlitherJSON{})

	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "A.sol"), []byte("// TODO: fix\n"), 0o644))
	linter := &tools.QuickLinter{ArtifactsDir: t.TempDir(), Name: "quick_linter"}

	st := &state.State{}
	scan := &StaticScan{Slither: slither, Linters: []*tools.QuickLinter{linter}}
	_, err := scan.Run(context.Background(), st, target)
	require.NoError(t, err)

	require.Len(t, st.StaticScan.Findings, 1)
	assert.Equal(t, "quick_linter", st.StaticScan.Findings[0].SourceTool)
	assert.Contains(t, st.StaticScan.ArtifactPaths, linter.LogPath())
}

func graphPayload() *tools.SlitherJSON {
	return &tools.SlitherJSON{
		FunctionCalls: []tools.FunctionCall{
			{Caller: "withdraw", Callee: "transfer"},
			{Caller: "transfer", Callee: "withdraw"},
		},
		Functions: []tools.FunctionInfo{
			{Name: "withdraw", Visibility: "external", Modifiers: []string{"onlyOwner"}},
			{Name: "transfer", Visibility: "internal", ExternalCalls: []string{"token.transfer"}},
		},
	}
}

func TestGraphAnalysisScoresAndEscalates(t *testing.T) {
	st := &state.State{EscalationLevel: 1}
	analysis := &GraphAnalysis{}
	result := analysis.Analyze(st, graphPayload())

	assert.Equal(t, 3, result.Score)
	assert.Equal(t, callgraph.BackendGonum, result.Backend)
	assert.Equal(t, []string{"withdraw"}, result.PrivilegedEntryPoints)
	assert.Equal(t, []string{"transfer"}, result.SensitiveExternalCalls)
	require.Len(t, result.Cycles, 1)
	assert.Equal(t, 2, st.EscalationLevel)
}

func TestGraphAnalysisEmptyPayload(t *testing.T) {
	st := &state.State{}
	analysis := &GraphAnalysis{}
	result := analysis.Analyze(st, &tools.SlitherJSON{})

	assert.Equal(t, 0, result.Score)
	assert.NotNil(t, result.Cycles)
	assert.Empty(t, result.Cycles)
	assert.Equal(t, 0, st.EscalationLevel)
}

func TestGraphAnalysisNeverLowersEscalation(t *testing.T) {
	st := &state.State{EscalationLevel: 3}
	analysis := &GraphAnalysis{}
	analysis.Analyze(st, graphPayload())
	assert.Equal(t, 3, st.EscalationLevel)
}

func intPtr(n int) *int { return &n }

func TestFuzzShouldRunGating(t *testing.T) {
	agent := &FuzzAgent{}

	ok, reason := agent.ShouldRun(&state.State{
		Budget:     &state.Budget{Spent: 5, Cap: intPtr(5)},
		StaticScan: &state.StaticScanResult{Signals: map[string]int{"reentrancy": 2}},
	})
	assert.False(t, ok)
	assert.Equal(t, ReasonBudgetExceeded, reason)

	ok, reason = agent.ShouldRun(&state.State{
		StaticScan: &state.StaticScanResult{Signals: map[string]int{"reentrancy": 1}},
	})
	assert.True(t, ok)
	assert.Equal(t, ReasonThresholdMet, reason)

	ok, reason = agent.ShouldRun(&state.State{
		GraphAnalysis: &state.GraphAnalysisResult{Score: 2},
	})
	assert.True(t, ok)
	assert.Equal(t, ReasonThresholdMet, reason)

	ok, reason = agent.ShouldRun(&state.State{})
	assert.False(t, ok)
	assert.Equal(t, ReasonThresholdNotMet, reason)
}

func TestFuzzRunRecordsFailures(t *testing.T) {
	runner := &tools.FoundryRunner{
		ArtifactsDir: t.TempDir(),
		Cmd: fakeCommander{
			result: tools.ExecResult{Stdout: "[FAIL. Counterexample: seed 0x1234] testWithdraw()\n"},
			err:    tools.ErrToolFailed,
		},
		LookPath: func(string) (string, error) { return "/usr/bin/forge", nil },
	}

	st := &state.State{}
	agent := &FuzzAgent{Runner: runner}
	result, err := agent.Run(context.Background(), st, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, tools.StatusFailed, result.Status)
	require.NotNil(t, st.Fuzz)
	assert.Equal(t, runner.LogPath(), st.Fuzz.LogPath)
	require.Len(t, st.FuzzFailures, 1)
	assert.Contains(t, st.FuzzFailures[0].Seed, "seed")
}

func TestFuzzRunSkippedLeavesFailuresEmpty(t *testing.T) {
	runner := &tools.FoundryRunner{
		ArtifactsDir: t.TempDir(),
		Cmd:          fakeCommander{},
		LookPath:     missingBinary,
	}

	st := &state.State{}
	agent := &FuzzAgent{Runner: runner}
	result, err := agent.Run(context.Background(), st, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, tools.StatusSkipped, result.Status)
	require.NotNil(t, st.Fuzz)
	assert.Empty(t, st.FuzzFailures)
}

func evidencedFinding(category, severity, confidence, description string) state.Finding {
	return state.Finding{
		Category:      category,
		Severity:      severity,
		Confidence:    confidence,
		Description:   description,
		SourceTool:    "slither",
		ArtifactPaths: []string{"artifacts/slither.json"},
	}
}

func TestProofAgentSkipsWithoutFindings(t *testing.T) {
	st := &state.State{}
	agent := &ProofAgent{ArtifactsDir: t.TempDir()}
	written, err := agent.Run(st)
	require.NoError(t, err)

	assert.Empty(t, written)
	require.NotNil(t, st.Proofs)
	assert.Equal(t, "skipped", st.Proofs.Status)
	assert.Equal(t, "no_findings", st.Proofs.Reason)
	assert.Empty(t, st.Proofs.Artifacts)
}

func TestProofAgentWritesTopThreeStubs(t *testing.T) {
	st := &state.State{Findings: []state.Finding{
		evidencedFinding("reentrancy", "high", "high", "Reentrancy in withdraw"),
		evidencedFinding("dangerous call/ext", "high", "medium", "Delegatecall to user input"),
		evidencedFinding("unchecked_return", "medium", "medium", "Return ignored"),
		evidencedFinding("style", "low", "low", "Naming nit"),
	}}
	dir := t.TempDir()
	agent := &ProofAgent{ArtifactsDir: dir}
	written, err := agent.Run(st)
	require.NoError(t, err)

	require.Len(t, written, 3)
	assert.Equal(t, filepath.Join(dir, "proofs", "invariant_1_reentrancy.sol"), written[0])
	assert.Equal(t, filepath.Join(dir, "proofs", "invariant_2_dangerous_call_ext.sol"), written[1])

	content, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "pragma solidity ^0.8.13;")
	assert.Contains(t, string(content), "Invariant derived from finding: Reentrancy in withdraw")
	assert.Contains(t, string(content), "function invariant_1_reentrancy() external view")

	require.NotNil(t, st.Proofs)
	assert.Equal(t, "generated", st.Proofs.Status)
	require.Len(t, st.Proofs.Entries, 3)
	assert.Equal(t, "slither", st.Proofs.Entries[0].SourceTool)
	assert.Equal(t, "reentrancy", st.Proofs.Entries[0].Category)
}

func TestRepairShouldRunGating(t *testing.T) {
	agent := &RepairAgent{}

	ok, reason, _ := agent.ShouldRun(&state.State{})
	assert.False(t, ok)
	assert.Equal(t, ReasonNoFindings, reason)

	eligible := evidencedFinding("reentrancy", "high", "high", "Reentrancy in withdraw")
	eligible.Repro = "forge test --match-test testWithdraw"

	ok, reason, _ = agent.ShouldRun(&state.State{
		Findings: []state.Finding{evidencedFinding("reentrancy", "high", "medium", "Unproven")},
		Budget:   &state.Budget{Spent: 0, Cap: intPtr(5)},
	})
	assert.False(t, ok)
	assert.Equal(t, ReasonInsufficientEvidence, reason)

	ok, reason, _ = agent.ShouldRun(&state.State{
		Findings: []state.Finding{evidencedFinding("reentrancy", "high", "high", "No repro")},
		Budget:   &state.Budget{Spent: 0, Cap: intPtr(5)},
	})
	assert.False(t, ok)
	assert.Equal(t, ReasonInsufficientEvidence, reason)

	ok, reason, _ = agent.ShouldRun(&state.State{
		Findings: []state.Finding{eligible},
	})
	assert.False(t, ok)
	assert.Equal(t, ReasonInsufficientBudget, reason)

	ok, reason, _ = agent.ShouldRun(&state.State{
		Findings: []state.Finding{eligible},
		Budget:   &state.Budget{Spent: 5, Cap: intPtr(5)},
	})
	assert.False(t, ok)
	assert.Equal(t, ReasonInsufficientBudget, reason)

	ok, reason, top := agent.ShouldRun(&state.State{
		Findings: []state.Finding{eligible},
		Budget:   &state.Budget{Spent: 0, Cap: intPtr(5)},
	})
	assert.True(t, ok)
	assert.Equal(t, ReasonEligible, reason)
	require.NotNil(t, top)
	assert.Equal(t, "Reentrancy in withdraw", top.Description)
}

func TestRepairRunWithoutVerifier(t *testing.T) {
	finding := evidencedFinding("reentrancy", "high", "high", "Reentrancy in withdraw")
	st := &state.State{Findings: []state.Finding{finding}}
	agent := &RepairAgent{ArtifactsDir: t.TempDir()}

	result, err := agent.Run(st, finding)
	require.NoError(t, err)

	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "no_verifier", result.Reason)
	assert.Same(t, result, st.Repair)

	patch, err := os.ReadFile(result.PatchPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(patch), "# Proposed patch for: Reentrancy in withdraw"))
}

func TestRepairRunVerifierResolves(t *testing.T) {
	finding := evidencedFinding("reentrancy", "high", "high", "Reentrancy in withdraw")
	st := &state.State{Findings: []state.Finding{finding}}
	resolved := true
	agent := &RepairAgent{
		ArtifactsDir: t.TempDir(),
		Verifier: func(f state.Finding, patchPath string) state.VerifierResult {
			assert.Equal(t, finding.Description, f.Description)
			assert.FileExists(t, patchPath)
			return state.VerifierResult{Status: "verified", Resolved: &resolved}
		},
	}

	result, err := agent.Run(st, finding)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Empty(t, result.Reason)
}

func TestRepairRunVerifierLowersScore(t *testing.T) {
	finding := evidencedFinding("reentrancy", "high", "high", "Reentrancy in withdraw")
	st := &state.State{Findings: []state.Finding{finding}}
	agent := &RepairAgent{
		ArtifactsDir: t.TempDir(),
		Verifier: func(state.Finding, string) state.VerifierResult {
			return state.VerifierResult{ScoreAfter: intPtr(0)}
		},
	}

	result, err := agent.Run(st, finding)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
}

func TestRepairRunVerificationFailed(t *testing.T) {
	finding := evidencedFinding("reentrancy", "high", "high", "Reentrancy in withdraw")
	st := &state.State{Findings: []state.Finding{finding}}
	agent := &RepairAgent{
		ArtifactsDir: t.TempDir(),
		Verifier: func(state.Finding, string) state.VerifierResult {
			return state.VerifierResult{ScoreAfter: intPtr(100)}
		},
	}

	result, err := agent.Run(st, finding)
	require.NoError(t, err)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "verification_failed", result.Reason)
	require.NotNil(t, result.VerifierResult)
}
