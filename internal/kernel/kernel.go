// Package kernel orchestrates the stage-gated audit loop. The kernel is the
// only writer of the state file during a run: agents mutate the in-memory
// record, the kernel persists it and re-checks invariants after every
// mutation. An invariant failure is terminal but still produces a report.
package kernel

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/augur-audit/augur/internal/agents"
	"github.com/augur-audit/augur/internal/config"
	"github.com/augur-audit/augur/internal/enrich"
	"github.com/augur-audit/augur/internal/invariant"
	"github.com/augur-audit/augur/internal/ledger"
	"github.com/augur-audit/augur/internal/llm"
	"github.com/augur-audit/augur/internal/report"
	"github.com/augur-audit/augur/internal/runner"
	"github.com/augur-audit/augur/internal/scoring"
	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/tools"
	"github.com/augur-audit/augur/pkg/logging"
)

// Kernel wires the stages together and drives them in order.
type Kernel struct {
	Store  *state.Store
	Config *config.Config
	Log    *logging.Logger

	Slither     *tools.SlitherRunner
	Linters     []*tools.QuickLinter
	FuzzRunner  *tools.FoundryRunner
	Enricher    *enrich.Booster
	Synthesizer *llm.Synthesis
	Verifier    agents.Verifier

	// Now is the clock used for capability timestamps.
	Now func() time.Time
}

// New builds a kernel with stage components derived from the config.
func New(store *state.Store, cfg *config.Config, log *logging.Logger) *Kernel {
	slither := tools.NewSlitherRunner(cfg.ArtifactsDir)
	slither.UseExisting = cfg.UseExistingStatic
	slither.Timeout = cfg.Timeouts.Static

	fuzz := tools.NewFoundryRunner(cfg.ArtifactsDir)
	fuzz.Timeout = cfg.Timeouts.Fuzz

	enricher := enrich.New(cfg.Enrich.Endpoint, cfg.Enrich.APIKey, cfg.ArtifactsDir)
	enricher.OfflineFixtures = cfg.OfflineFixtures
	enricher.FixturesDir = cfg.FixturesDir
	enricher.HTTPClient.Timeout = cfg.Timeouts.HTTP

	synthesizer := &llm.Synthesis{
		ArtifactsDir:    cfg.ArtifactsDir,
		OfflineFixtures: cfg.OfflineFixtures,
		FixturesDir:     cfg.FixturesDir,
	}
	if cfg.LLM.BaseURL != "" {
		synthesizer.Client = llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)
	}

	return &Kernel{
		Store:       store,
		Config:      cfg,
		Log:         log,
		Slither:     slither,
		Linters:     []*tools.QuickLinter{tools.NewQuickLinter(cfg.ArtifactsDir)},
		FuzzRunner:  fuzz,
		Enricher:    enricher,
		Synthesizer: synthesizer,
		Now:         time.Now,
	}
}

// Run executes the audit loop against the target path and returns the report
// path. A run that trips an invariant ends with status failed_invariant and
// still returns the (error-annotated) report.
func (k *Kernel) Run(ctx context.Context, targetPath string) (string, error) {
	if err := k.Store.EnsureExists(); err != nil {
		return "", err
	}
	st, err := k.Store.Load()
	if err != nil {
		return "", err
	}

	switch st.Status {
	case "", state.StatusInitialized, state.StatusMissing:
		st.Status = state.StatusRunning
	}
	led := ledger.New(st)
	if st.Budget == nil {
		st.Budget = &state.Budget{Spent: 0, Cap: k.Config.Budget.Cap}
	}
	st.TargetPath = targetPath
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	for _, name := range st.AgentQueue {
		now := k.now()
		led.Executed(name, "queued", now, now, []string{})
		k.Log.Info("replayed queued agent", "agent", name)
		if path, done, err := k.checkpoint(st); done || err != nil {
			return path, err
		}
	}

	payload, err := k.runStaticScan(ctx, st, led, targetPath)
	if err != nil {
		return "", err
	}
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	if err := k.runGraphAnalysis(st, led, payload); err != nil {
		return "", err
	}
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	if err := k.runEnrichment(ctx, st, led); err != nil {
		return "", err
	}
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	if err := k.runFuzz(ctx, st, led, targetPath); err != nil {
		return "", err
	}
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	if err := k.runProofs(st, led); err != nil {
		return "", err
	}
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	if err := k.runRepair(st, led); err != nil {
		return "", err
	}
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	if err := k.runSynthesis(ctx, st, led); err != nil {
		return "", err
	}
	if path, done, err := k.checkpoint(st); done || err != nil {
		return path, err
	}

	st.Status = state.StatusCompleted
	if err := k.Store.Save(st); err != nil {
		return "", err
	}
	k.Log.Info("audit completed", "target", targetPath)
	return k.writeReport(st)
}

// checkpoint persists the state and re-validates the invariants. On a
// violation it marks the run failed, writes the report, and reports done.
func (k *Kernel) checkpoint(st *state.State) (reportPath string, done bool, err error) {
	if errs := invariant.Validate(st); len(errs) > 0 {
		st.Status = state.StatusFailedInvariant
		st.InvariantErrors = errs
		if err := k.Store.Save(st); err != nil {
			return "", true, err
		}
		k.Log.Error("invariant check failed", "errors", errs)
		path, err := k.writeReport(st)
		return path, true, err
	}
	if err := k.Store.Save(st); err != nil {
		return "", true, err
	}
	return "", false, nil
}

func (k *Kernel) runStaticScan(ctx context.Context, st *state.State, led *ledger.Ledger, targetPath string) (*tools.SlitherJSON, error) {
	if st.StaticScan != nil {
		led.Skipped("static_scan", "already_present", "state_contains_static_scan")
		return nil, nil
	}

	scan := &agents.StaticScan{
		Slither: k.Slither,
		Linters: k.Linters,
		Pool: &runner.Runner{
			Parallel:   k.Config.Parallel,
			MaxWorkers: k.Config.MaxWorkers,
		},
		Thresholds: k.Config.Thresholds.Signals,
	}
	started := k.now()
	payload, err := scan.Run(ctx, st, targetPath)
	if err != nil {
		return nil, fmt.Errorf("static scan: %w", err)
	}
	finished := k.now()

	if st.StaticScan.Status == tools.StatusSkipped || st.StaticScan.Status == tools.StatusFailed {
		reason := st.StaticScan.Reason
		if reason == "" {
			reason = "slither_unavailable"
		}
		evidence := st.StaticScan.SkipEvidence
		if evidence == "" {
			evidence = "slither_unavailable"
		}
		led.Skipped("static_scan", reason, evidence)
		return nil, nil
	}
	led.Executed("static_scan", st.StaticScan.Status, started, finished, st.StaticScan.ArtifactPaths)
	return payload, nil
}

func (k *Kernel) runGraphAnalysis(st *state.State, led *ledger.Ledger, payload *tools.SlitherJSON) error {
	if st.GraphAnalysis != nil {
		return nil
	}

	jsonPath := k.Slither.OutputPath()
	if payload == nil {
		if _, err := os.Stat(jsonPath); err != nil {
			led.Skipped("graph_analysis", "slither_json_missing", "slither_json_missing")
			return nil
		}
		loaded, err := tools.LoadSlitherJSON(jsonPath)
		if err != nil {
			return fmt.Errorf("graph analysis: %w", err)
		}
		payload = loaded
	}

	started := k.now()
	analysis := &agents.GraphAnalysis{
		Backend:       k.Config.GraphBackend,
		RiskThreshold: k.Config.Thresholds.GraphRisk,
	}
	analysis.Analyze(st, payload)
	led.Executed("graph_analysis", "success", started, k.now(), []string{jsonPath})
	return nil
}

func (k *Kernel) runEnrichment(ctx context.Context, st *state.State, led *ledger.Ledger) error {
	if st.EscalationLevel < 2 {
		led.Skipped("solodit", "escalation_level", "escalation_level")
		st.Solodit = &state.EnrichmentResult{Status: "skipped", Reason: "escalation_level"}
		return nil
	}
	if k.Enricher == nil || !k.Enricher.Available() {
		led.Skipped("solodit", "solodit_unavailable", "solodit_not_configured")
		st.Solodit = &state.EnrichmentResult{Status: "skipped", Reason: "solodit_unavailable"}
		return nil
	}

	started := k.now()
	result, err := k.Enricher.Enrich(ctx, st)
	if err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}
	if result.Status != "success" {
		evidence := result.Reason
		if evidence == "" {
			evidence = "solodit_error"
		}
		led.Skipped("solodit", "solodit_error", evidence)
	} else {
		led.Executed("solodit", "success", started, k.now(), result.ArtifactPaths)
	}
	st.Solodit = result
	return nil
}

func (k *Kernel) runFuzz(ctx context.Context, st *state.State, led *ledger.Ledger, targetPath string) error {
	agent := &agents.FuzzAgent{
		Runner:          k.FuzzRunner,
		FuzzRuns:        k.Config.Fuzz.Runs,
		StaticThreshold: k.Config.Thresholds.FuzzStatic,
		GraphThreshold:  k.Config.Thresholds.FuzzGraph,
	}
	ok, reason := agent.ShouldRun(st)
	if !ok {
		led.Skipped("fuzz_agent", reason, "thresholds")
		return nil
	}

	started := k.now()
	result, err := agent.Run(ctx, st, targetPath)
	if err != nil {
		return fmt.Errorf("fuzz: %w", err)
	}
	if result.Status == tools.StatusSkipped || result.Status == tools.StatusFailed {
		fuzzReason := result.Reason
		if fuzzReason == "" {
			fuzzReason = "foundry_unavailable"
		}
		evidence := result.Evidence
		if evidence == "" {
			evidence = "foundry_unavailable"
		}
		led.Skipped("fuzz_agent", fuzzReason, evidence)
		return nil
	}
	led.Executed("fuzz_agent", result.Status, started, k.now(), []string{result.LogPath})
	return nil
}

func (k *Kernel) runProofs(st *state.State, led *ledger.Ledger) error {
	agent := &agents.ProofAgent{ArtifactsDir: k.Config.ArtifactsDir}
	started := k.now()
	written, err := agent.Run(st)
	if err != nil {
		return fmt.Errorf("proofs: %w", err)
	}
	if st.Proofs != nil && st.Proofs.Status == "skipped" {
		led.Skipped("proof_agent", st.Proofs.Reason, st.Proofs.Reason)
		return nil
	}
	led.Executed("proof_agent", "success", started, k.now(), written)
	return nil
}

func (k *Kernel) runRepair(st *state.State, led *ledger.Ledger) error {
	agent := &agents.RepairAgent{
		ArtifactsDir: k.Config.ArtifactsDir,
		Verifier:     k.Verifier,
		MinBudget:    k.Config.Budget.RepairMin,
	}
	ok, reason, finding := agent.ShouldRun(st)
	if !ok {
		led.Skipped("repair_agent", reason, "gating")
		st.Repair = &state.RepairResult{Status: "skipped", Reason: reason}
		return nil
	}

	started := k.now()
	result, err := agent.Run(st, *finding)
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	led.Executed("repair_agent", result.Status, started, k.now(), []string{result.PatchPath})
	return nil
}

func (k *Kernel) runSynthesis(ctx context.Context, st *state.State, led *ledger.Ledger) error {
	if len(scoring.CollectFindings(st)) == 0 {
		led.Skipped("llm_synthesis", "no_findings", "no_findings")
		st.LLMSynthesis = &state.SynthesisResult{Status: "skipped", Reason: "no_findings"}
		return nil
	}
	if remaining, capped := st.Budget.Remaining(); !capped || remaining < k.Config.Budget.LLMMin {
		led.Skipped("llm_synthesis", "insufficient_budget", "budget")
		st.LLMSynthesis = &state.SynthesisResult{Status: "skipped", Reason: "insufficient_budget"}
		return nil
	}
	if k.Synthesizer == nil || !k.Synthesizer.Available() {
		led.Skipped("llm_synthesis", "llm_unavailable", "llm_not_configured")
		st.LLMSynthesis = &state.SynthesisResult{Status: "skipped", Reason: "llm_unavailable"}
		return nil
	}

	started := k.now()
	result, err := k.Synthesizer.Summarize(ctx, st)
	if err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	if result.Status != "success" || result.Summary == "" {
		led.Skipped("llm_synthesis", "llm_error", "llm_failed")
	} else {
		led.Executed("llm_synthesis", "success", started, k.now(), result.ArtifactPaths)
	}
	st.LLMSynthesis = result
	return nil
}

func (k *Kernel) writeReport(st *state.State) (string, error) {
	gen := &report.Generator{ArtifactsDir: k.Config.ArtifactsDir}
	return gen.Write(st)
}

func (k *Kernel) now() time.Time {
	if k.Now == nil {
		return time.Now()
	}
	return k.Now()
}
