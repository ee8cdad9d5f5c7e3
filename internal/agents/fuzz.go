package agents

import (
	"context"

	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/tools"
)

// Fuzz gating reasons.
const (
	ReasonBudgetExceeded  = "budget_exceeded"
	ReasonThresholdMet    = "threshold_met"
	ReasonThresholdNotMet = "threshold_not_met"
)

// FuzzAgent runs the forge fuzz campaign when static or graph risk crosses
// its thresholds and the budget is not exhausted.
type FuzzAgent struct {
	Runner          *tools.FoundryRunner
	FuzzRuns        int
	StaticThreshold int
	GraphThreshold  int
}

// ShouldRun reports whether the campaign is warranted and why.
func (a *FuzzAgent) ShouldRun(st *state.State) (bool, string) {
	if b := st.Budget; b != nil && b.Cap != nil && *b.Cap > 0 && b.Spent >= *b.Cap {
		return false, ReasonBudgetExceeded
	}

	staticScore := 0
	if st.StaticScan != nil {
		staticScore = st.StaticScan.AggregateSignalScore()
	}
	graphScore := 0
	if st.GraphAnalysis != nil {
		graphScore = st.GraphAnalysis.Score
	}

	staticThreshold := a.StaticThreshold
	if staticThreshold <= 0 {
		staticThreshold = 1
	}
	graphThreshold := a.GraphThreshold
	if graphThreshold <= 0 {
		graphThreshold = 1
	}
	if staticScore >= staticThreshold || graphScore >= graphThreshold {
		return true, ReasonThresholdMet
	}
	return false, ReasonThresholdNotMet
}

// Run executes the campaign and records the log path plus any extracted
// failures on the state.
func (a *FuzzAgent) Run(ctx context.Context, st *state.State, targetPath string) (*tools.FuzzResult, error) {
	runs := a.FuzzRuns
	if runs <= 0 {
		runs = 256
	}
	result, err := a.Runner.Run(ctx, targetPath, runs)
	if err != nil {
		return nil, err
	}

	st.Fuzz = &state.FuzzRecord{LogPath: result.LogPath}
	if result.Status == tools.StatusFailed {
		st.FuzzFailures = result.Failures
	}
	return result, nil
}
