package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/augur-audit/augur/internal/diffreview"
	"github.com/augur-audit/augur/internal/state"
)

var (
	diffTarget string
	diffRepo   string
)

var diffCmd = &cobra.Command{
	Use:   "diff <base-ref> <head-ref>",
	Short: "Differential review between two git refs",
	Long: `Diff compares the Solidity surface between two git refs and reports
resolved, regressed, and unchanged vulnerability classes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := state.NewStore(cfg.StatePath)
		reviewer := diffreview.New(store, cfg.ArtifactsDir, diffRepo)
		if _, err := reviewer.Run(cmd.Context(), args[0], args[1], diffTarget); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, filepath.Join(cfg.ArtifactsDir, "diff", "delta_report.json"))
		fmt.Fprintln(out, filepath.Join(cfg.ArtifactsDir, "diff", "delta_report.md"))
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffTarget, "target", "", "Target directory to diff (required)")
	diffCmd.Flags().StringVar(&diffRepo, "repo", ".", "Git repository root")
	_ = diffCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(diffCmd)
}
