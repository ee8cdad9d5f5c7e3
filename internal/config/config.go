// Package config provides configuration management for augur.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (AUGUR_*)
// 3. Project config (.augur.yaml in cwd)
// 4. Defaults
//
// Components never read environment variables at call sites; everything is
// resolved here once and the resulting Config is passed down by reference.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for tunables.
const (
	DefaultStatePath    = "state.json"
	DefaultArtifactsDir = "artifacts"
	DefaultFuzzRuns     = 256

	DefaultLLMMinBudget    = 1
	DefaultRepairMinBudget = 1

	DefaultStaticTimeout = 5 * time.Minute
	DefaultFuzzTimeout   = 10 * time.Minute
	DefaultHTTPTimeout   = 30 * time.Second
)

// Config holds all augur configuration.
type Config struct {
	// StatePath is the location of the run's state file.
	StatePath string `yaml:"state_path" json:"state_path"`

	// ArtifactsDir is the root for all emitted artifacts.
	ArtifactsDir string `yaml:"artifacts_dir" json:"artifacts_dir"`

	// Parallel enables the concurrent runner pool for static-scan sub-jobs.
	Parallel bool `yaml:"parallel" json:"parallel"`

	// MaxWorkers bounds the runner pool. 0 means one worker per job.
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`

	// OfflineFixtures switches HTTP-backed stages to pre-recorded responses.
	OfflineFixtures bool `yaml:"offline_fixtures" json:"offline_fixtures"`

	// FixturesDir is where offline fixtures live (default: tests/fixtures).
	FixturesDir string `yaml:"fixtures_dir" json:"fixtures_dir"`

	// UseExistingStatic reuses an existing static-analyzer JSON artifact
	// instead of re-running the tool.
	UseExistingStatic bool `yaml:"use_existing_static" json:"use_existing_static"`

	// GraphBackend selects the call-graph implementation ("gonum" or
	// "fallback"). Defaults to gonum.
	GraphBackend string `yaml:"graph_backend" json:"graph_backend"`

	Budget     BudgetConfig     `yaml:"budget" json:"budget"`
	Thresholds ThresholdsConfig `yaml:"thresholds" json:"thresholds"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts" json:"timeouts"`
	Fuzz       FuzzConfig       `yaml:"fuzz" json:"fuzz"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Enrich     EnrichConfig     `yaml:"enrich" json:"enrich"`
}

// BudgetConfig holds budget gating settings.
type BudgetConfig struct {
	// Cap is the total budget cap for a run. Nil means uncapped, which
	// disables budget-gated stages (fuzz, repair, synthesis).
	Cap *int `yaml:"cap" json:"cap"`

	// LLMMin is the minimum remaining budget for LLM synthesis.
	LLMMin int `yaml:"llm_min" json:"llm_min"`

	// RepairMin is the minimum remaining budget for the repair stage.
	RepairMin int `yaml:"repair_min" json:"repair_min"`
}

// ThresholdsConfig holds stage gating thresholds.
type ThresholdsConfig struct {
	// Signals maps static-scan signal names to escalation thresholds.
	Signals map[string]int `yaml:"signals" json:"signals"`

	// GraphRisk is the composite graph score that raises escalation to 2.
	GraphRisk int `yaml:"graph_risk" json:"graph_risk"`

	// FuzzStatic is the aggregate static signal score that unlocks fuzzing.
	FuzzStatic int `yaml:"fuzz_static" json:"fuzz_static"`

	// FuzzGraph is the graph risk score that unlocks fuzzing.
	FuzzGraph int `yaml:"fuzz_graph" json:"fuzz_graph"`
}

// TimeoutsConfig holds external-call timeouts.
type TimeoutsConfig struct {
	Static time.Duration `yaml:"static" json:"static"`
	Fuzz   time.Duration `yaml:"fuzz" json:"fuzz"`
	HTTP   time.Duration `yaml:"http" json:"http"`
}

// FuzzConfig holds fuzz-stage settings.
type FuzzConfig struct {
	// Runs is passed to the fuzz runner as the iteration count.
	Runs int `yaml:"runs" json:"runs"`
}

// LLMConfig holds the synthesis backend settings.
type LLMConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint. Empty disables the
	// online backend.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the chat model name.
	Model string `yaml:"model" json:"model"`

	// APIKey authenticates requests; optional for local endpoints.
	APIKey string `yaml:"api_key" json:"-"`
}

// EnrichConfig holds the heuristic enrichment service settings.
type EnrichConfig struct {
	// Endpoint is the enrichment service URL. Empty disables the online
	// client.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey authenticates requests; optional.
	APIKey string `yaml:"api_key" json:"-"`
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		StatePath:    DefaultStatePath,
		ArtifactsDir: DefaultArtifactsDir,
		GraphBackend: "gonum",
		Budget: BudgetConfig{
			LLMMin:    DefaultLLMMinBudget,
			RepairMin: DefaultRepairMinBudget,
		},
		Thresholds: ThresholdsConfig{
			Signals: map[string]int{
				"reentrancy":       1,
				"unchecked_return": 1,
				"delegatecall":     1,
			},
			GraphRisk:  1,
			FuzzStatic: 1,
			FuzzGraph:  1,
		},
		Timeouts: TimeoutsConfig{
			Static: DefaultStaticTimeout,
			Fuzz:   DefaultFuzzTimeout,
			HTTP:   DefaultHTTPTimeout,
		},
		Fuzz: FuzzConfig{Runs: DefaultFuzzRuns},
	}
}

// Load builds a Config from defaults, an optional yaml file, and AUGUR_*
// environment variables. path may be empty, in which case .augur.yaml is
// used when present.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		if _, err := os.Stat(".augur.yaml"); err == nil {
			path = ".augur.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

// applyEnv overlays AUGUR_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("AUGUR_STATE_PATH"); v != "" {
		c.StatePath = v
	}
	if v := os.Getenv("AUGUR_ARTIFACTS_DIR"); v != "" {
		c.ArtifactsDir = v
	}
	if v := os.Getenv("AUGUR_PARALLEL"); v != "" {
		c.Parallel = v == "1" || v == "true"
	}
	if v := os.Getenv("AUGUR_OFFLINE_FIXTURES"); v != "" {
		c.OfflineFixtures = v == "1" || v == "true"
	}
	if v := os.Getenv("AUGUR_USE_EXISTING_STATIC"); v != "" {
		c.UseExistingStatic = v == "1" || v == "true"
	}
	if v := os.Getenv("AUGUR_BUDGET_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.Cap = &n
		}
	}
	if v := os.Getenv("AUGUR_LLM_MIN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.LLMMin = n
		}
	}
	if v := os.Getenv("AUGUR_REPAIR_MIN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.RepairMin = n
		}
	}
	if v := os.Getenv("AUGUR_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("AUGUR_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AUGUR_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("AUGUR_ENRICH_ENDPOINT"); v != "" {
		c.Enrich.Endpoint = v
	}
	if v := os.Getenv("AUGUR_ENRICH_API_KEY"); v != "" {
		c.Enrich.APIKey = v
	}
	if v := os.Getenv("AUGUR_GRAPH_BACKEND"); v != "" {
		c.GraphBackend = v
	}
}

// normalize fills zero values that a partial yaml file may have cleared.
func (c *Config) normalize() {
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = DefaultArtifactsDir
	}
	if c.GraphBackend == "" {
		c.GraphBackend = "gonum"
	}
	if c.Fuzz.Runs <= 0 {
		c.Fuzz.Runs = DefaultFuzzRuns
	}
	if c.Timeouts.Static <= 0 {
		c.Timeouts.Static = DefaultStaticTimeout
	}
	if c.Timeouts.Fuzz <= 0 {
		c.Timeouts.Fuzz = DefaultFuzzTimeout
	}
	if c.Timeouts.HTTP <= 0 {
		c.Timeouts.HTTP = DefaultHTTPTimeout
	}
	if c.Budget.LLMMin <= 0 {
		c.Budget.LLMMin = DefaultLLMMinBudget
	}
	if c.Budget.RepairMin <= 0 {
		c.Budget.RepairMin = DefaultRepairMinBudget
	}
	if len(c.Thresholds.Signals) == 0 {
		c.Thresholds.Signals = Defaults().Thresholds.Signals
	}
	if c.Thresholds.GraphRisk <= 0 {
		c.Thresholds.GraphRisk = 1
	}
	if c.Thresholds.FuzzStatic <= 0 {
		c.Thresholds.FuzzStatic = 1
	}
	if c.Thresholds.FuzzGraph <= 0 {
		c.Thresholds.FuzzGraph = 1
	}
}
