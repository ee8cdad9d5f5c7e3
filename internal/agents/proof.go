package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/augur-audit/augur/internal/scoring"
	"github.com/augur-audit/augur/internal/state"
)

// ProofAgent writes Foundry-style invariant stubs for the top-scored
// findings. Stubs are scaffolding for a human to encode the property; they
// assert nothing on their own.
type ProofAgent struct {
	ArtifactsDir string
	TopN         int
}

// Run generates invariant stub files and records proof metadata on the
// state. Returns the written paths.
func (a *ProofAgent) Run(st *state.State) ([]string, error) {
	scored := scoring.ScoreFindings(scoring.CollectFindings(st), scoring.DefaultWeights())
	if len(scored) == 0 {
		st.Proofs = &state.ProofsResult{Status: "skipped", Reason: "no_findings", Artifacts: []string{}}
		return nil, nil
	}

	proofsDir := filepath.Join(a.ArtifactsDir, "proofs")
	if err := os.MkdirAll(proofsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create proofs directory: %w", err)
	}

	topN := a.TopN
	if topN <= 0 {
		topN = 3
	}
	if topN > len(scored) {
		topN = len(scored)
	}

	var written []string
	var entries []state.ProofEntry
	for i, item := range scored[:topN] {
		f := item.Finding
		category := f.Category
		if category == "" {
			category = "finding"
		}
		slug := strings.ToLower(strings.NewReplacer(" ", "_", "/", "_").Replace(category))
		name := fmt.Sprintf("invariant_%d_%s", i+1, slug)
		path := filepath.Join(proofsDir, name+".sol")

		description := f.Description
		if description == "" {
			description = "invariant"
		}
		content := strings.Join([]string{
			"// SPDX-License-Identifier: UNLICENSED",
			"pragma solidity ^0.8.13;",
			"",
			"// Invariant derived from finding: " + description,
			"contract ProofInvariant {",
			"    function " + name + "() external view {",
			"        // TODO: encode property check.",
			"    }",
			"}",
			"",
		}, "\n")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write proof stub: %w", err)
		}

		written = append(written, path)
		entries = append(entries, state.ProofEntry{
			Path:        path,
			SourceTool:  orDefault(f.SourceTool, "unknown"),
			Category:    orDefault(f.Category, "unknown"),
			Description: description,
		})
	}

	st.Proofs = &state.ProofsResult{Status: "generated", Artifacts: written, Entries: entries}
	return written, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
