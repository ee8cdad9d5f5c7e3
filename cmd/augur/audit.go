package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/augur-audit/augur/internal/kernel"
	"github.com/augur-audit/augur/internal/state"
)

var (
	auditOfflineFixtures bool
	auditParallel        bool
)

var auditCmd = &cobra.Command{
	Use:   "audit <target-path>",
	Short: "Run the full audit loop against a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if auditOfflineFixtures {
			cfg.OfflineFixtures = true
		}
		if auditParallel {
			cfg.Parallel = true
		}

		log := newLogger()
		defer log.Close()

		store := state.NewStore(cfg.StatePath)
		k := kernel.New(store, cfg, log)
		reportPath, err := k.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reportPath)
		return nil
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditOfflineFixtures, "offline-fixtures", false, "Use offline HTTP fixtures for enrichment/LLM adapters")
	auditCmd.Flags().BoolVar(&auditParallel, "parallel", false, "Run static-scan sub-jobs concurrently")
	rootCmd.AddCommand(auditCmd)
}
