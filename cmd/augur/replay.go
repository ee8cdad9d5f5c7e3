package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/augur-audit/augur/internal/kernel"
	"github.com/augur-audit/augur/internal/report"
	"github.com/augur-audit/augur/internal/state"
)

var (
	replayRerunTools      bool
	replayOfflineFixtures bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <run-path>",
	Short: "Regenerate the report for a prior run",
	Long: `Replay regenerates the audit report from a saved state file without
touching any tools. With --rerun-tools the kernel re-executes against the
stored target path instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runStatePath, runArtifactsDir := resolveRunPaths(args[0])
		store := state.NewStore(runStatePath)
		st, err := store.Load()
		if err != nil {
			return err
		}

		if replayRerunTools {
			if st.TargetPath == "" {
				return fmt.Errorf("replay with --rerun-tools requires target_path in state")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.StatePath = runStatePath
			cfg.ArtifactsDir = runArtifactsDir
			if replayOfflineFixtures {
				cfg.OfflineFixtures = true
			}

			log := newLogger()
			defer log.Close()

			reportPath, err := kernel.New(store, cfg, log).Run(cmd.Context(), st.TargetPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reportPath)
			return nil
		}

		replayDir := filepath.Join(runArtifactsDir, "replay")
		gen := &report.Generator{ArtifactsDir: replayDir}
		reportPath, err := gen.Write(st)
		if err != nil {
			return err
		}

		caps := st.Capabilities
		if caps == nil {
			caps = state.NewCapabilities()
		}
		summary, err := json.MarshalIndent(map[string]any{
			"capabilities": caps,
			"source_state": runStatePath,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode replay summary: %w", err)
		}
		summaryPath := filepath.Join(replayDir, "replay_summary.json")
		if err := os.WriteFile(summaryPath, append(summary, '\n'), 0o644); err != nil {
			return fmt.Errorf("write replay summary: %w", err)
		}

		st.Replay = &state.ReplayRecord{ReportPath: reportPath, SummaryPath: summaryPath}
		if err := store.Save(st); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reportPath)
		return nil
	},
}

// resolveRunPaths maps a run directory or a state file path to the pair of
// state file and artifacts directory.
func resolveRunPaths(runPath string) (statePath, artifactsDir string) {
	if info, err := os.Stat(runPath); err == nil && info.IsDir() {
		return filepath.Join(runPath, "state.json"), filepath.Join(runPath, "artifacts")
	}
	return runPath, filepath.Join(filepath.Dir(runPath), "artifacts")
}

func init() {
	replayCmd.Flags().BoolVar(&replayRerunTools, "rerun-tools", false, "Re-run tools during replay")
	replayCmd.Flags().BoolVar(&replayOfflineFixtures, "offline-fixtures", false, "Use offline HTTP fixtures when rerunning tools")
	rootCmd.AddCommand(replayCmd)
}
