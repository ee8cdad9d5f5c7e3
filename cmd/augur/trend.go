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

var trendCmd = &cobra.Command{
	Use:   "trend <runs-root>",
	Short: "Track finding movement across runs",
	Long: `Trend scores every run directory under the root (in name order) against
its predecessor and reports new, resolved, and regressed findings per run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runsRoot := args[0]
		entries, err := os.ReadDir(runsRoot)
		if err != nil {
			return fmt.Errorf("read runs root: %w", err)
		}

		var runs []scoring.TrendRun
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			runDir := filepath.Join(runsRoot, entry.Name())
			runStatePath := filepath.Join(runDir, "state.json")
			if _, err := os.Stat(runStatePath); err != nil {
				continue
			}
			st, err := state.NewStore(runStatePath).Load()
			if err != nil {
				return err
			}
			runs = append(runs, scoring.TrendRun{Name: entry.Name(), Root: runDir, State: st})
		}

		report := scoring.NewScorer().BuildTrend(runs)

		trendDir := filepath.Join(runsRoot, "artifacts", "trend")
		if err := os.MkdirAll(trendDir, 0o755); err != nil {
			return fmt.Errorf("create trend directory: %w", err)
		}
		jsonPath := filepath.Join(trendDir, "trend.json")
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode trend report: %w", err)
		}
		if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write trend json: %w", err)
		}
		mdPath := filepath.Join(trendDir, "trend.md")
		if err := os.WriteFile(mdPath, []byte(scoring.FormatTrendMarkdown(report.Runs)+"\n"), 0o644); err != nil {
			return fmt.Errorf("write trend markdown: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), jsonPath)
		fmt.Fprintln(cmd.OutOrStdout(), mdPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trendCmd)
}
