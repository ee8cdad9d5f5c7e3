package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/augur-audit/augur/internal/scoring"
	"github.com/augur-audit/augur/internal/state"
)

// Repair gating reasons.
const (
	ReasonNoFindings           = "no_findings"
	ReasonInsufficientEvidence = "insufficient_evidence"
	ReasonInsufficientBudget   = "insufficient_budget"
	ReasonEligible             = "eligible"
)

// Verifier judges a proposed patch against the finding it targets. The
// kernel injects the implementation; a nil verifier downgrades the stage.
type Verifier func(finding state.Finding, patchPath string) state.VerifierResult

// RepairAgent proposes a patch for the single top-scored finding and lets a
// verifier decide whether it resolved it.
type RepairAgent struct {
	ArtifactsDir string
	Verifier     Verifier
	MinBudget    int
}

// ShouldRun reports whether repair is warranted, the gating reason, and the
// candidate finding when eligible. Repair targets only the highest-scored
// finding, and only when the evidence is strong and budget remains.
func (a *RepairAgent) ShouldRun(st *state.State) (bool, string, *state.Finding) {
	scored := scoring.ScoreFindings(scoring.CollectFindings(st), scoring.DefaultWeights())
	if len(scored) == 0 {
		return false, ReasonNoFindings, nil
	}
	top := scored[0].Finding
	if strings.ToLower(top.Confidence) != "high" || !top.Reproducible() {
		return false, ReasonInsufficientEvidence, nil
	}

	remaining, capped := st.Budget.Remaining()
	if !capped {
		return false, ReasonInsufficientBudget, nil
	}
	minBudget := a.MinBudget
	if minBudget <= 0 {
		minBudget = 1
	}
	if remaining < minBudget {
		return false, ReasonInsufficientBudget, nil
	}
	return true, ReasonEligible, &top
}

// Run writes the patch proposal, invokes the verifier, and records the
// outcome on the state. Success means the verifier either lowered the score
// or marked the finding resolved.
func (a *RepairAgent) Run(st *state.State, finding state.Finding) (*state.RepairResult, error) {
	repairsDir := filepath.Join(a.ArtifactsDir, "repairs")
	if err := os.MkdirAll(repairsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repairs directory: %w", err)
	}

	patchPath := filepath.Join(repairsDir, "patch_1.diff")
	description := finding.Description
	if description == "" {
		description = "finding"
	}
	patch := "# Proposed patch for: " + description + "\n"
	if err := os.WriteFile(patchPath, []byte(patch), 0o644); err != nil {
		return nil, fmt.Errorf("write patch: %w", err)
	}

	result := &state.RepairResult{
		Status:      "failed",
		PatchPath:   patchPath,
		SourceTool:  finding.SourceTool,
		Confidence:  finding.Confidence,
		Description: finding.Description,
	}

	if a.Verifier == nil {
		result.Reason = "no_verifier"
		st.Repair = result
		return result, nil
	}

	scoreBefore := 0
	if scored := scoring.ScoreFindings(scoring.CollectFindings(st), scoring.DefaultWeights()); len(scored) > 0 {
		scoreBefore = scored[0].Score
	}

	verdict := a.Verifier(finding, patchPath)
	result.VerifierResult = &verdict

	resolved := verdict.Resolved != nil && *verdict.Resolved
	improved := verdict.ScoreAfter != nil && *verdict.ScoreAfter < scoreBefore
	if resolved || improved {
		result.Status = "success"
	} else {
		result.Reason = "verification_failed"
	}
	st.Repair = result
	return result, nil
}
