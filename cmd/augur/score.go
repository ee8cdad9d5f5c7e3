package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/augur-audit/augur/internal/scoring"
	"github.com/augur-audit/augur/internal/state"
)

var scoreCmd = &cobra.Command{
	Use:   "score <run-path>",
	Short: "Build the scoreboard for a prior run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runStatePath, runArtifactsDir := resolveRunPaths(args[0])
		store := state.NewStore(runStatePath)
		st, err := store.Load()
		if err != nil {
			return err
		}

		scorer := scoring.NewScorer()
		sb := scorer.BuildScoreboard(st, filepath.Dir(runArtifactsDir), nil)

		scoreDir := filepath.Join(runArtifactsDir, "score")
		if err := os.MkdirAll(scoreDir, 0o755); err != nil {
			return fmt.Errorf("create score directory: %w", err)
		}
		jsonPath := filepath.Join(scoreDir, "scoreboard.json")
		data, err := json.MarshalIndent(sb, "", "  ")
		if err != nil {
			return fmt.Errorf("encode scoreboard: %w", err)
		}
		if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write scoreboard json: %w", err)
		}
		mdPath := filepath.Join(scoreDir, "scoreboard.md")
		if err := os.WriteFile(mdPath, []byte(scorer.FormatScoreboardMarkdown(sb)+"\n"), 0o644); err != nil {
			return fmt.Errorf("write scoreboard markdown: %w", err)
		}

		topIDs := []string{}
		for i, entry := range sb.Entries {
			if i == 3 {
				break
			}
			topIDs = append(topIDs, entry.FindingID)
		}
		st.Scoreboard = &state.ScoreboardRecord{
			Summary: map[string]int{
				"total_findings":  sb.Summary.TotalFindings,
				"high_confidence": sb.Summary.HighConfidence,
			},
			TopFindingIDs: topIDs,
			ArtifactPaths: []string{jsonPath, mdPath},
		}
		if err := store.Save(st); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), jsonPath)
		fmt.Fprintln(cmd.OutOrStdout(), mdPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
