// Package invariant validates structural and monotonicity invariants over
// the state record. The kernel runs Validate after every stage mutation and
// treats any non-empty result as fatal for the run.
package invariant

import (
	"fmt"

	"github.com/augur-audit/augur/internal/state"
)

// Exact messages asserted by callers and tests.
const (
	MsgBudgetDecreased     = "Budget spent decreased from previous value."
	MsgBudgetExceedsCap    = "Budget spent exceeds budget cap."
	MsgEscalationDecreased = "Escalation level decreased without justification."
	MsgCapabilitiesMissing = "Capabilities section missing from state."
	MsgCapabilityBuckets   = "Capabilities missing executed/skipped lists."
)

// Validate runs every check family independently and returns all violations
// found, so a single call reports the complete picture. It is read-only with
// one deliberate exception: the budget and escalation baselines (last_spent,
// escalation_previous) are bookkeeping fields owned by this checker and are
// updated here. Business data is never touched.
func Validate(st *state.State) []string {
	var errs []string
	errs = append(errs, checkBudget(st)...)
	errs = append(errs, checkEscalation(st)...)
	errs = append(errs, checkFindings(st)...)
	errs = append(errs, checkCapabilities(st)...)
	return errs
}

// checkBudget enforces spent monotonicity and the cap, then records the
// current spent value as the baseline for the next check.
func checkBudget(st *state.State) []string {
	b := st.Budget
	if b == nil {
		return nil
	}

	var errs []string
	if b.LastSpent != nil && b.Spent < *b.LastSpent {
		errs = append(errs, MsgBudgetDecreased)
	}
	if b.Cap != nil && b.Spent > *b.Cap {
		errs = append(errs, MsgBudgetExceedsCap)
	}

	spent := b.Spent
	b.LastSpent = &spent
	return errs
}

// checkEscalation enforces that the level never decreases without an
// accompanying justification, then records the current level as baseline.
func checkEscalation(st *state.State) []string {
	var errs []string
	if st.EscalationPrevious != nil &&
		st.EscalationLevel < *st.EscalationPrevious &&
		st.EscalationReason == "" {
		errs = append(errs, MsgEscalationDecreased)
	}

	level := st.EscalationLevel
	st.EscalationPrevious = &level
	return errs
}

// checkFindings requires every finding, from any source list, to carry its
// provenance keys. Values may be unknown, but the keys must be present: a
// non-empty source tool, a non-nil artifact path list, and a non-empty
// confidence (use "unknown" when genuinely unknown).
func checkFindings(st *state.State) []string {
	var findings []state.Finding
	findings = append(findings, st.Findings...)
	if st.StaticScan != nil {
		findings = append(findings, st.StaticScan.Findings...)
	}

	var errs []string
	for i, f := range findings {
		if f.SourceTool == "" {
			errs = append(errs, missingField(i, "source_tool"))
		}
		if f.ArtifactPaths == nil {
			errs = append(errs, missingField(i, "artifact_paths"))
		}
		if f.Confidence == "" {
			errs = append(errs, missingField(i, "confidence"))
		}
	}
	return errs
}

// checkCapabilities requires the ledger to exist with both buckets once the
// kernel has started, and every skipped entry to carry a reason.
func checkCapabilities(st *state.State) []string {
	caps := st.Capabilities
	if caps == nil {
		return []string{MsgCapabilitiesMissing}
	}
	if caps.Executed == nil || caps.Skipped == nil {
		return []string{MsgCapabilityBuckets}
	}

	var errs []string
	for name, entry := range caps.Skipped {
		if entry.Reason == "" {
			errs = append(errs, fmt.Sprintf("Capabilities skipped entry %q missing reason.", name))
		}
	}
	return errs
}

func missingField(idx int, field string) string {
	return fmt.Sprintf("Finding %d missing provenance field: %s.", idx, field)
}
