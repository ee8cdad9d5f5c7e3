package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/workbench"
)

var workbenchCmd = &cobra.Command{
	Use:   "workbench <target-path>",
	Short: "Run standalone workbench tasks",
	Long: `Workbench runs the standalone analysis tasks (entry points and secure
contract classes) outside the audit loop and records each task's provenance.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := state.NewStore(cfg.StatePath)
		wb := workbench.New(store, cfg.ArtifactsDir)
		if err := wb.RunAll(cmd.Context(), args[0]); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, filepath.Join(cfg.ArtifactsDir, "workbench", "entrypoints.json"))
		fmt.Fprintln(out, filepath.Join(cfg.ArtifactsDir, "workbench", "secure_contracts.json"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workbenchCmd)
}
