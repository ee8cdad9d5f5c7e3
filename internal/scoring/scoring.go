// Package scoring ranks findings, builds run scoreboards, and tracks trends
// across runs. All outputs are deterministic: entries are sorted by stable
// composite keys and finding ids are content hashes, so scoring the same
// state twice produces identical bytes.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/augur-audit/augur/internal/state"
)

// Weights configure how findings are scored.
type Weights struct {
	Severity                 map[string]int
	Confidence               map[string]int
	Evidence                 int
	Repro                    int
	MissingEvidencePenalty   int
	SkippedCapabilityPenalty int
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Severity:                 map[string]int{"critical": 5, "high": 4, "medium": 2, "low": 1},
		Confidence:               map[string]int{"high": 3, "medium": 2, "low": 1},
		Evidence:                 2,
		Repro:                    1,
		MissingEvidencePenalty:   1,
		SkippedCapabilityPenalty: 1,
	}
}

// CollectFindings gathers findings from the state record in a stable order:
// the merged findings list first, then static-scan findings.
func CollectFindings(st *state.State) []state.Finding {
	var findings []state.Finding
	findings = append(findings, st.Findings...)
	if st.StaticScan != nil {
		findings = append(findings, st.StaticScan.Findings...)
	}
	return findings
}

// Ranked is one scored finding in the report's ranked table.
type Ranked struct {
	Score       int    `json:"score"`
	Severity    string `json:"severity"`
	Confidence  string `json:"confidence"`
	SourceTool  string `json:"source_tool"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// ScoredFinding pairs a finding with its quick score for ranking.
type ScoredFinding struct {
	Score   int
	Finding state.Finding
}

// ScoreFindings computes quick scores and returns findings ranked by score
// descending, then severity and confidence weight descending, then tool,
// category, and description ascending. Proof and repair gating both consume
// this order.
func ScoreFindings(findings []state.Finding, w Weights) []ScoredFinding {
	scored := make([]ScoredFinding, 0, len(findings))
	for _, f := range findings {
		severity := normalizeLevel(coalesce(f.Severity, f.Impact))
		confidence := normalizeLevel(f.Confidence)

		score := w.Severity[severity] + w.Confidence[confidence]
		if f.SourceTool != "" && len(f.ArtifactPaths) > 0 {
			score += w.Evidence
		}
		if f.Reproducible() {
			score += w.Repro
		}
		scored = append(scored, ScoredFinding{Score: score, Finding: f})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		sa := w.Severity[normalizeLevel(coalesce(a.Finding.Severity, a.Finding.Impact))]
		sb := w.Severity[normalizeLevel(coalesce(b.Finding.Severity, b.Finding.Impact))]
		if sa != sb {
			return sa > sb
		}
		ca := w.Confidence[normalizeLevel(a.Finding.Confidence)]
		cb := w.Confidence[normalizeLevel(b.Finding.Confidence)]
		if ca != cb {
			return ca > cb
		}
		if a.Finding.SourceTool != b.Finding.SourceTool {
			return a.Finding.SourceTool < b.Finding.SourceTool
		}
		if a.Finding.Category != b.Finding.Category {
			return a.Finding.Category < b.Finding.Category
		}
		return a.Finding.Description < b.Finding.Description
	})
	return scored
}

// RankFindings scores findings for the report's ranked table.
func RankFindings(findings []state.Finding, w Weights) []Ranked {
	scored := ScoreFindings(findings, w)
	ranked := make([]Ranked, 0, len(scored))
	for _, s := range scored {
		f := s.Finding
		ranked = append(ranked, Ranked{
			Score:       s.Score,
			Severity:    orUnknown(normalizeLevel(coalesce(f.Severity, f.Impact))),
			Confidence:  orUnknown(normalizeLevel(f.Confidence)),
			SourceTool:  orUnknown(f.SourceTool),
			Category:    orUnknown(f.Category),
			Description: f.Description,
		})
	}
	return ranked
}

// FormatRankedFindings renders the ranked table as Markdown.
func FormatRankedFindings(ranked []Ranked) string {
	rows := []string{
		"| Rank | Score | Severity | Confidence | Tool | Category | Description |",
		"| --- | --- | --- | --- | --- | --- | --- |",
	}
	for i, r := range ranked {
		rows = append(rows, fmt.Sprintf("| %d | %d | %s | %s | %s | %s | %s |",
			i+1, r.Score, r.Severity, r.Confidence, r.SourceTool, r.Category, truncate(r.Description)))
	}
	if len(rows) == 2 {
		rows = append(rows, "| - | 0 | - | - | - | - | No findings scored. |")
	}
	return strings.Join(rows, "\n")
}

// Scoreboard statuses relative to the previous run.
const (
	StatusNew       = "new"
	StatusUnchanged = "unchanged"
	StatusRegressed = "regressed"
	StatusUnknown   = "unknown"
)

// Entry is one finding's row in the scoreboard.
type Entry struct {
	FindingID        string   `json:"finding_id"`
	Title            string   `json:"title"`
	Category         string   `json:"category"`
	Severity         string   `json:"severity"`
	Confidence       string   `json:"confidence"`
	EvidenceStrength string   `json:"evidence_strength"`
	EvidencePoints   int      `json:"evidence_points"`
	Reproducible     bool     `json:"reproducible"`
	Status           string   `json:"status"`
	ScoreTotal       int      `json:"score_total"`
	SourceTool       string   `json:"source_tool"`
	ArtifactPaths    []string `json:"artifact_paths"`
}

// Summary aggregates a scoreboard.
type Summary struct {
	TotalFindings  int `json:"total_findings"`
	HighConfidence int `json:"high_confidence"`
}

// Scoreboard is the full scoreboard payload for one run.
type Scoreboard struct {
	Summary      Summary             `json:"summary"`
	Capabilities *state.Capabilities `json:"capabilities"`
	Entries      []Entry             `json:"entries"`
}

// Scorer builds scoreboards and trend reports.
type Scorer struct {
	Weights Weights
	// EvidenceCapabilities are the capabilities whose skip weakens every
	// finding's evidence.
	EvidenceCapabilities []string
}

// NewScorer returns a scorer with default weights and capability list.
func NewScorer() *Scorer {
	return &Scorer{
		Weights:              DefaultWeights(),
		EvidenceCapabilities: []string{"static_scan", "graph_analysis", "fuzz_agent", "proof_agent"},
	}
}

// BuildScoreboard scores every finding in the state record. Artifact paths
// are resolved against runRoot when relative. previousScores maps finding id
// to the previous run's entry; nil means no baseline, which marks every entry
// status unknown.
func (s *Scorer) BuildScoreboard(st *state.State, runRoot string, previousScores map[string]Entry) Scoreboard {
	findings := CollectFindings(st)
	caps := st.Capabilities
	if caps == nil {
		caps = state.NewCapabilities()
	}

	skippedAny := false
	for _, name := range s.EvidenceCapabilities {
		if _, ok := caps.Skipped[name]; ok {
			skippedAny = true
			break
		}
	}

	entries := make([]Entry, 0, len(findings))
	for _, f := range findings {
		entries = append(entries, s.scoreFinding(f, runRoot, skippedAny, previousScores))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ScoreTotal != entries[j].ScoreTotal {
			return entries[i].ScoreTotal > entries[j].ScoreTotal
		}
		return entries[i].FindingID < entries[j].FindingID
	})

	summary := Summary{TotalFindings: len(entries)}
	for _, e := range entries {
		if e.Confidence == "high" {
			summary.HighConfidence++
		}
	}
	return Scoreboard{Summary: summary, Capabilities: caps, Entries: entries}
}

func (s *Scorer) scoreFinding(f state.Finding, runRoot string, skippedAny bool, previousScores map[string]Entry) Entry {
	title := f.DisplayTitle()
	category := orUnknown(f.Category)
	severity := normalizeLevel(coalesce(f.Severity, f.Impact))
	if severity == "" {
		severity = heuristicSeverity(category)
	}
	confidence := normalizeLevel(f.Confidence)
	if confidence == "" {
		confidence = "unknown"
	}

	evidencePoints, evidenceStrength := s.evidenceStrength(f, runRoot, skippedAny)
	reproducible := f.Reproducible()
	scoreTotal := s.Weights.Severity[severity] + s.Weights.Confidence[confidence] + evidencePoints
	if reproducible {
		scoreTotal += s.Weights.Repro
	}

	id := FindingID(f)
	status := StatusUnknown
	if previousScores != nil {
		if prev, ok := previousScores[id]; !ok {
			status = StatusNew
		} else if scoreTotal > prev.ScoreTotal {
			status = StatusRegressed
		} else {
			status = StatusUnchanged
		}
	}

	artifacts := f.ArtifactPaths
	if artifacts == nil {
		artifacts = []string{}
	}
	return Entry{
		FindingID:        id,
		Title:            title,
		Category:         category,
		Severity:         severity,
		Confidence:       confidence,
		EvidenceStrength: evidenceStrength,
		EvidencePoints:   evidencePoints,
		Reproducible:     reproducible,
		Status:           status,
		ScoreTotal:       scoreTotal,
		SourceTool:       orUnknown(f.SourceTool),
		ArtifactPaths:    artifacts,
	}
}

// evidenceStrength computes evidence points and the bucketed strength label.
// Provenance plus at least one resolvable artifact earns the evidence weight;
// missing either costs the penalty; reproducibility adds one; any skipped
// evidence capability costs one more.
func (s *Scorer) evidenceStrength(f state.Finding, runRoot string, skippedAny bool) (int, string) {
	points := 0
	hasProvenance := f.SourceTool != ""
	artifactsValid := anyArtifactResolvable(f.ArtifactPaths, runRoot)
	if hasProvenance && artifactsValid {
		points += s.Weights.Evidence
	}
	if !hasProvenance || !artifactsValid {
		points -= s.Weights.MissingEvidencePenalty
	}
	if f.Reproducible() {
		points += s.Weights.Repro
	}
	if skippedAny {
		points -= s.Weights.SkippedCapabilityPenalty
	}

	switch {
	case points >= 3:
		return points, "high"
	case points >= 1:
		return points, "medium"
	default:
		return points, "low"
	}
}

func anyArtifactResolvable(paths []string, runRoot string) bool {
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(runRoot, p)
		}
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// FindingID derives a stable 12-hex-character id from the finding's title,
// category, and location. The same finding scores to the same id across runs.
func FindingID(f state.Finding) string {
	raw := f.DisplayTitle() + "|" + orUnknown(f.Category) + "|" + f.Location()
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:12]
}

// FormatScoreboardMarkdown renders a scoreboard to deterministic Markdown.
func (s *Scorer) FormatScoreboardMarkdown(sb Scoreboard) string {
	lines := []string{
		"# Augur Scoreboard",
		"",
		"## Capabilities Executed / Skipped",
		"- Executed: " + orNone(formatExecuted(sb.Capabilities)),
		"- Skipped: " + orNone(formatSkipped(sb.Capabilities)),
		"",
		"## Findings",
		"| Rank | Score | Status | Severity | Confidence | Evidence | Reproducible | Category | Title | Finding ID |",
		"| --- | --- | --- | --- | --- | --- | --- | --- | --- | --- |",
	}

	if len(sb.Entries) == 0 {
		lines = append(lines, "| - | 0 | unknown | - | - | low | false | - | No findings | - |")
		return strings.Join(lines, "\n")
	}

	for i, e := range sb.Entries {
		lines = append(lines, fmt.Sprintf("| %d | %d | %s | %s | %s | %s | %t | %s | %s | %s |",
			i+1, e.ScoreTotal, e.Status, e.Severity, e.Confidence, e.EvidenceStrength,
			e.Reproducible, e.Category, truncate(e.Title), e.FindingID))
	}
	return strings.Join(lines, "\n")
}

func formatExecuted(caps *state.Capabilities) string {
	if caps == nil {
		return ""
	}
	names := make([]string, 0, len(caps.Executed))
	for name := range caps.Executed {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func formatSkipped(caps *state.Capabilities) string {
	if caps == nil {
		return ""
	}
	names := make([]string, 0, len(caps.Skipped))
	for name := range caps.Skipped {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		reason := caps.Skipped[name].Reason
		if reason == "" {
			reason = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, reason))
	}
	return strings.Join(parts, ", ")
}

func heuristicSeverity(category string) string {
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "reentrancy"), strings.Contains(lower, "dangerous"):
		return "high"
	case strings.Contains(lower, "unchecked"), strings.Contains(lower, "fuzz"):
		return "medium"
	default:
		return "low"
	}
}

func normalizeLevel(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func orNone(v string) string {
	if v == "" {
		return "None"
	}
	return v
}

func truncate(text string) string {
	const limit = 80
	if len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}
