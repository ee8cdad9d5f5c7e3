// Package state defines the persistent state record for one audit run and
// the file store that owns it. The state file is the single system of record:
// every stage loads it, mutates its own section, and saves it back before the
// next stage starts.
package state

import (
	"strconv"
	"strings"
)

// Status is the lifecycle state of a run.
type Status string

// Run lifecycle values. Completed and FailedInvariant are terminal.
const (
	StatusInitialized     Status = "initialized"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusFailedInvariant Status = "failed_invariant"

	// StatusMissing is returned by Load when no state file exists yet.
	StatusMissing Status = "missing"
)

// Severity and confidence levels used across findings.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
	LevelUnknown  = "unknown"
)

// State is the single mutable record for one audit run. Stage-output fields
// are pointers so "stage has not run" is distinguishable from "stage ran and
// produced an empty result". Every default the pipeline relies on is explicit
// in this schema, not improvised at call sites.
type State struct {
	Status     Status `json:"status"`
	TargetPath string `json:"target_path,omitempty"`

	Budget *Budget `json:"budget,omitempty"`

	// EscalationLevel unlocks downstream stages; [0,3].
	EscalationLevel int `json:"escalation_level"`

	// EscalationPrevious is the invariant checker's baseline bookkeeping.
	EscalationPrevious *int `json:"escalation_previous,omitempty"`

	// EscalationReason justifies a decrease in escalation level.
	EscalationReason string `json:"escalation_reason,omitempty"`

	Capabilities *Capabilities `json:"capabilities,omitempty"`

	// AgentQueue holds externally queued agent names replayed at run start.
	AgentQueue []string `json:"agent_queue,omitempty"`

	StaticScan    *StaticScanResult    `json:"static_scan,omitempty"`
	GraphAnalysis *GraphAnalysisResult `json:"graph_analysis,omitempty"`
	Solodit       *EnrichmentResult    `json:"solodit,omitempty"`
	Fuzz          *FuzzRecord          `json:"fuzz,omitempty"`
	FuzzFailures  []FuzzFailure        `json:"fuzz_failures,omitempty"`
	Proofs        *ProofsResult        `json:"proofs,omitempty"`
	Repair        *RepairResult        `json:"repair,omitempty"`
	LLMSynthesis  *SynthesisResult     `json:"llm_synthesis,omitempty"`

	// Findings holds findings recorded outside any stage section.
	Findings []Finding `json:"findings,omitempty"`

	// InvariantErrors is populated only when Status is failed_invariant.
	InvariantErrors []string `json:"invariant_errors,omitempty"`

	Workbench  *WorkbenchRecord  `json:"workbench,omitempty"`
	DiffReview *DiffReviewRecord `json:"diff_review,omitempty"`
	Scoreboard *ScoreboardRecord `json:"scoreboard,omitempty"`
	Replay     *ReplayRecord     `json:"replay,omitempty"`
}

// Budget tracks spend against an optional cap. Spent is monotonically
// non-decreasing; LastSpent is the invariant checker's baseline.
type Budget struct {
	Spent     int  `json:"spent"`
	Cap       *int `json:"cap"`
	LastSpent *int `json:"last_spent,omitempty"`
}

// Remaining returns cap minus spent and whether a cap is set at all.
func (b *Budget) Remaining() (int, bool) {
	if b == nil || b.Cap == nil {
		return 0, false
	}
	return *b.Cap - b.Spent, true
}

// Capabilities records, per stage, whether it executed or was skipped.
// The canonical representation is map-of-name-to-detail; ledger.ListView
// adapts it for consumers expecting the list-of-entries shape.
type Capabilities struct {
	Executed map[string]ExecutedCapability `json:"executed"`
	Skipped  map[string]SkippedCapability  `json:"skipped"`
}

// NewCapabilities returns an empty ledger with both buckets allocated.
// Both maps existing is itself an invariant once the kernel has started.
func NewCapabilities() *Capabilities {
	return &Capabilities{
		Executed: map[string]ExecutedCapability{},
		Skipped:  map[string]SkippedCapability{},
	}
}

// ExecutedCapability is the disposition of a stage that ran.
type ExecutedCapability struct {
	ID            string   `json:"id,omitempty"`
	Status        string   `json:"status"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    string   `json:"finished_at"`
	ArtifactPaths []string `json:"artifact_paths"`
}

// SkippedCapability is the disposition of a stage that did not run.
type SkippedCapability struct {
	ID       string `json:"id,omitempty"`
	Reason   string `json:"reason"`
	Evidence string `json:"evidence"`
}

// Finding is one candidate issue. Findings are immutable once recorded; they
// are scored and ranked downstream, never edited. A finding counts as
// evidenced only when SourceTool is set and ArtifactPaths is non-nil;
// Confidence must always be present, with "unknown" as the explicit default.
type Finding struct {
	Category    string `json:"category"`
	Check       string `json:"check,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Impact      string `json:"impact,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Confidence  string `json:"confidence"`

	// SourceTool is the provenance tag; required for evidence.
	SourceTool string `json:"source_tool"`

	// ArtifactPaths substantiate the finding; required for evidence.
	ArtifactPaths []string `json:"artifact_paths"`

	Path  string `json:"path,omitempty"`
	Lines []int  `json:"lines,omitempty"`

	// Any non-empty reproducibility field marks the finding reproducible.
	Repro      string `json:"repro,omitempty"`
	ReproSteps string `json:"repro_steps,omitempty"`
	ReproPath  string `json:"repro_path,omitempty"`
}

// Reproducible reports whether any reproducibility field is set.
func (f Finding) Reproducible() bool {
	return f.Repro != "" || f.ReproSteps != "" || f.ReproPath != ""
}

// DisplayTitle returns the best available short label for the finding.
func (f Finding) DisplayTitle() string {
	for _, s := range []string{f.Title, f.Description, f.Check, f.Category} {
		if s != "" {
			return s
		}
	}
	return "finding"
}

// Location returns "path:lines" when the finding has a source location,
// otherwise the first artifact path, otherwise the empty string.
func (f Finding) Location() string {
	if f.Path != "" {
		return f.Path + ":" + joinLines(f.Lines)
	}
	if len(f.ArtifactPaths) > 0 {
		return f.ArtifactPaths[0]
	}
	return ""
}

// EvidenceRef points at a source location substantiating a signal.
type EvidenceRef struct {
	Category    string `json:"category"`
	Check       string `json:"check,omitempty"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path,omitempty"`
	Lines       []int  `json:"lines,omitempty"`
}

// StaticScanResult is the static-analysis stage output.
type StaticScanResult struct {
	Status       string `json:"status,omitempty"`
	Reason       string `json:"reason,omitempty"`
	SkipEvidence string `json:"skip_evidence,omitempty"`

	// Signals counts detector hits per vulnerability class.
	Signals map[string]int `json:"signals,omitempty"`

	Evidence []EvidenceRef `json:"evidence,omitempty"`
	Findings []Finding     `json:"findings,omitempty"`

	// AnalyzerJSON and AnalyzerLog locate the raw tool artifacts.
	AnalyzerJSON string `json:"analyzer_json,omitempty"`
	AnalyzerLog  string `json:"analyzer_log,omitempty"`

	ArtifactPaths []string `json:"artifact_paths,omitempty"`
}

// AggregateSignalScore sums all signal counts; used by fuzz gating.
func (r *StaticScanResult) AggregateSignalScore() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, n := range r.Signals {
		total += n
	}
	return total
}

// GraphAnalysisResult is the call-graph stage output.
type GraphAnalysisResult struct {
	Backend string `json:"graph_backend"`

	// Score is the composite risk score (cycles + privileged entry points +
	// sensitive external calls, one point each).
	Score int `json:"score"`

	Cycles                 [][]string `json:"cycles"`
	PrivilegedEntryPoints  []string   `json:"privileged_entry_points"`
	SensitiveExternalCalls []string   `json:"sensitive_external_calls"`
}

// PatternMatch is one heuristic enrichment hit. Never treated as proof.
type PatternMatch struct {
	Category      string `json:"category"`
	Count         int    `json:"count"`
	EvidenceCount int    `json:"evidence_count"`
	Label         string `json:"label"`
	Source        string `json:"source"`
	Status        string `json:"status"`
	Confidence    string `json:"confidence"`
	Disclaimer    string `json:"disclaimer"`
}

// EnrichmentResult is the external heuristic enrichment stage output.
type EnrichmentResult struct {
	Source         string         `json:"source,omitempty"`
	Status         string         `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	Disclaimer     string         `json:"disclaimer,omitempty"`
	PatternMatches []PatternMatch `json:"pattern_matches,omitempty"`
	ArtifactPaths  []string       `json:"artifact_paths,omitempty"`
}

// FuzzRecord is the fuzz stage output.
type FuzzRecord struct {
	LogPath string `json:"log_path,omitempty"`
}

// FuzzFailure is one failing fuzz test extracted from runner output.
type FuzzFailure struct {
	Test    string `json:"test"`
	Snippet string `json:"snippet"`
	Seed    string `json:"seed,omitempty"`
}

// ProofEntry describes one generated invariant stub.
type ProofEntry struct {
	Path        string `json:"path"`
	SourceTool  string `json:"source_tool"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// ProofsResult is the proof-stub stage output.
type ProofsResult struct {
	Status    string       `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Artifacts []string     `json:"artifacts"`
	Entries   []ProofEntry `json:"entries,omitempty"`
}

// VerifierResult is the externally supplied repair verifier's verdict.
type VerifierResult struct {
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Resolved   *bool  `json:"resolved,omitempty"`
	ScoreAfter *int   `json:"score_after,omitempty"`
}

// RepairResult is the repair stage output.
type RepairResult struct {
	Status         string          `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	PatchPath      string          `json:"patch_path,omitempty"`
	SourceTool     string          `json:"source_tool,omitempty"`
	Confidence     string          `json:"confidence,omitempty"`
	Description    string          `json:"description,omitempty"`
	VerifierResult *VerifierResult `json:"verifier_result,omitempty"`
}

// SynthesisResult is the LLM synthesis stage output. Summaries are heuristic
// synthesis, never evidence.
type SynthesisResult struct {
	Status        string   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Error         string   `json:"error,omitempty"`
	ArtifactPaths []string `json:"artifact_paths,omitempty"`
}

// WorkbenchTask records provenance for one workbench analysis.
type WorkbenchTask struct {
	SourceTool    string   `json:"source_tool"`
	Confidence    string   `json:"confidence"`
	ArtifactPaths []string `json:"artifact_paths"`
	ExecutedAt    string   `json:"executed_at"`
}

// WorkbenchRecord holds workbench task provenance.
type WorkbenchRecord struct {
	Entrypoints     *WorkbenchTask `json:"entrypoints,omitempty"`
	SecureContracts *WorkbenchTask `json:"secure_contracts,omitempty"`
}

// DeltaSummary counts vulnerability-class transitions between two refs.
type DeltaSummary struct {
	Resolved  int `json:"resolved"`
	Regressed int `json:"regressed"`
	Unchanged int `json:"unchanged"`
}

// DiffReviewRecord is the differential review output stored in state.
type DiffReviewRecord struct {
	BaseRef       string       `json:"base_ref"`
	HeadRef       string       `json:"head_ref"`
	ChangedFiles  []string     `json:"changed_files"`
	Summary       DeltaSummary `json:"summary"`
	ArtifactPaths []string     `json:"artifact_paths"`
	ExecutedAt    string       `json:"executed_at"`
}

// ScoreboardRecord summarizes a persisted scoreboard.
type ScoreboardRecord struct {
	Summary       map[string]int `json:"summary"`
	TopFindingIDs []string       `json:"top_finding_ids"`
	ArtifactPaths []string       `json:"artifact_paths"`
}

// ReplayRecord points at artifacts produced by a replay.
type ReplayRecord struct {
	ReportPath  string `json:"report_path"`
	SummaryPath string `json:"summary_path"`
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, n := range lines {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
