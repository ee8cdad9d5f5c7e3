// Package agents implements the audit stages the kernel schedules: static
// scan, graph analysis, fuzzing, proof stubs, and repair. Agents mutate the
// in-memory state record; the kernel owns persistence and invariant checks
// between mutations.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/augur-audit/augur/internal/runner"
	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/tools"
)

// DefaultSignalThresholds gate escalation to level 1.
func DefaultSignalThresholds() map[string]int {
	return map[string]int{
		"reentrancy":       1,
		"unchecked_return": 1,
		"delegatecall":     1,
	}
}

// StaticScan runs the static analyzer plus quick linters and distills their
// output into signals, evidence, and findings.
type StaticScan struct {
	Slither    *tools.SlitherRunner
	Linters    []*tools.QuickLinter
	Pool       *runner.Runner
	Thresholds map[string]int
}

// Run executes the static tools and records the stage output on the state.
// The analyzer payload is returned for downstream graph analysis.
func (a *StaticScan) Run(ctx context.Context, st *state.State, targetPath string) (*tools.SlitherJSON, error) {
	var payload *tools.SlitherJSON

	jobs := []runner.Job{{
		Name: "slither",
		Run: func(ctx context.Context) (runner.Output, error) {
			p, err := a.Slither.Run(ctx, targetPath)
			if err != nil {
				return runner.Output{}, err
			}
			payload = p
			return runner.Output{Artifacts: []string{a.Slither.OutputPath(), a.Slither.LogPath()}}, nil
		},
	}}
	for _, linter := range a.Linters {
		linter := linter
		jobs = append(jobs, runner.Job{
			Name: linter.Name,
			Run: func(context.Context) (runner.Output, error) {
				findings, err := linter.Run(targetPath)
				if err != nil {
					return runner.Output{}, err
				}
				return runner.Output{Findings: findings, Artifacts: []string{linter.LogPath()}}, nil
			},
		})
	}

	pool := a.Pool
	if pool == nil {
		pool = &runner.Runner{}
	}
	results := pool.Run(ctx, jobs)
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("tool %s: %w", r.Name, r.Err)
		}
	}
	if payload == nil {
		return nil, fmt.Errorf("static analyzer returned no payload")
	}

	signals, evidence, findings := extractSignals(payload, a.Slither)
	merged := append(findings, runner.MergeFindings(results)...)
	runner.SortFindings(merged)

	st.StaticScan = &state.StaticScanResult{
		Status:        payload.Status,
		Reason:        payload.Reason,
		SkipEvidence:  payload.Evidence,
		Signals:       signals,
		Evidence:      evidence,
		Findings:      merged,
		AnalyzerJSON:  a.Slither.OutputPath(),
		AnalyzerLog:   a.Slither.LogPath(),
		ArtifactPaths: runner.MergeArtifacts(results),
	}

	if a.shouldEscalate(signals) && st.EscalationLevel < 1 {
		st.EscalationLevel = 1
	}
	return payload, nil
}

func (a *StaticScan) shouldEscalate(signals map[string]int) bool {
	thresholds := a.Thresholds
	if thresholds == nil {
		thresholds = DefaultSignalThresholds()
	}
	for key, threshold := range thresholds {
		if signals[key] >= threshold {
			return true
		}
	}
	return false
}

// extractSignals classifies analyzer detectors into the three signal
// classes. Detectors outside the classes are dropped: this stage counts
// known-risk signals, it does not detect vulnerabilities itself.
func extractSignals(payload *tools.SlitherJSON, slither *tools.SlitherRunner) (map[string]int, []state.EvidenceRef, []state.Finding) {
	counts := map[string]int{"reentrancy": 0, "unchecked_return": 0, "delegatecall": 0}
	var evidence []state.EvidenceRef
	var findings []state.Finding
	artifactPaths := []string{slither.OutputPath(), slither.LogPath()}

	for _, detector := range payload.Results.Detectors {
		check := strings.ToLower(detector.Check)
		var category string
		switch {
		case strings.Contains(check, "reentrancy"):
			counts["reentrancy"]++
			category = "reentrancy"
		case strings.Contains(check, "unchecked") && strings.Contains(check, "return"):
			counts["unchecked_return"]++
			category = "unchecked_return"
		case strings.Contains(check, "delegatecall"), strings.Contains(check, "low-level"), strings.Contains(check, "call"):
			counts["delegatecall"]++
			category = "dangerous_call"
		default:
			continue
		}

		confidence := detector.Confidence
		if confidence == "" {
			confidence = "unknown"
		}
		findings = append(findings, state.Finding{
			Category:      category,
			Check:         detector.Check,
			Description:   detector.Description,
			Impact:        detector.Impact,
			Confidence:    confidence,
			SourceTool:    "slither",
			ArtifactPaths: artifactPaths,
		})

		for _, element := range detector.Elements {
			evidence = append(evidence, state.EvidenceRef{
				Category:    category,
				Check:       detector.Check,
				Description: detector.Description,
				Path:        element.SourceMapping.Path(),
				Lines:       element.SourceMapping.Lines,
			})
		}
	}
	return counts, evidence, findings
}
