package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/augur-audit/augur/internal/config"
	"github.com/augur-audit/augur/pkg/logging"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	artifactsDir string
	statePath    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "augur",
	Short: "Stage-gated security audit orchestrator for smart contract projects",
	Long: `augur drives external security tools through a stage-gated audit loop
and records every decision in a single auditable state file.

Core Commands:
  audit        Run the full audit loop against a target
  replay       Regenerate the report for a prior run
  score        Build the scoreboard for a prior run
  trend        Track finding movement across runs
  entrypoints  Analyze state-changing entry points
  workbench    Run standalone workbench tasks
  diff         Differential review between two git refs

Every stage either executes or records why it was skipped; no finding is
reported without provenance.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .augur.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&artifactsDir, "artifacts-dir", "", "Override the artifacts directory")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "Override the state file path")
}

// loadConfig resolves configuration with flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if artifactsDir != "" {
		cfg.ArtifactsDir = artifactsDir
	}
	if statePath != "" {
		cfg.StatePath = statePath
	}
	return cfg, nil
}

// newLogger builds the command logger honoring the verbose flag.
func newLogger() *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{Level: level, Service: "augur"})
}
