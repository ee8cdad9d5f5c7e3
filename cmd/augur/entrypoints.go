package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/workbench"
)

var entrypointsCmd = &cobra.Command{
	Use:   "entrypoints <target-path>",
	Short: "Analyze state-changing entry points",
	Long: `Entrypoints enumerates public and external functions that can mutate
state, preferring analyzer output over the source heuristic when available.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := state.NewStore(cfg.StatePath)
		wb := workbench.New(store, cfg.ArtifactsDir)
		if _, err := wb.RunEntrypoints(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(cfg.ArtifactsDir, "workbench", "entrypoints.json"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(entrypointsCmd)
}
