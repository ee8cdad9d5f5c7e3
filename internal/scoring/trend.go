package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/augur-audit/augur/internal/state"
)

// TrendRun is one run fed into trend analysis, in chronological order.
type TrendRun struct {
	Name  string
	Root  string
	State *state.State
}

// TrendSummary counts finding movement between consecutive runs.
type TrendSummary struct {
	New       int `json:"new"`
	Resolved  int `json:"resolved"`
	Regressed int `json:"regressed"`
}

// TrendFinding identifies one regressed finding.
type TrendFinding struct {
	FindingID  string `json:"finding_id"`
	Title      string `json:"title"`
	ScoreTotal int    `json:"score_total"`
}

// TrendEntry summarizes one run against its predecessor.
type TrendEntry struct {
	Run          string         `json:"run"`
	Summary      TrendSummary   `json:"summary"`
	Budget       *state.Budget  `json:"budget"`
	TopRegressed []TrendFinding `json:"top_regressed"`
}

// TrendReport is the cross-run trend payload.
type TrendReport struct {
	Runs []TrendEntry `json:"runs"`
}

// BuildTrend scores each run against the previous one and summarizes finding
// movement. New counts ids absent from the previous run, resolved counts
// previous ids no longer present, and regressed counts findings whose score
// increased. The top three regressed findings per run are listed by score
// descending then id.
func (s *Scorer) BuildTrend(runs []TrendRun) TrendReport {
	report := TrendReport{Runs: []TrendEntry{}}
	previousScores := map[string]Entry(nil)
	previousIDs := map[string]struct{}{}

	for _, run := range runs {
		sb := s.BuildScoreboard(run.State, run.Root, previousScores)

		currentIDs := make(map[string]struct{}, len(sb.Entries))
		var regressed []TrendFinding
		summary := TrendSummary{}
		for _, e := range sb.Entries {
			currentIDs[e.FindingID] = struct{}{}
			if _, seen := previousIDs[e.FindingID]; !seen {
				summary.New++
			}
			if e.Status == StatusRegressed {
				summary.Regressed++
				regressed = append(regressed, TrendFinding{
					FindingID:  e.FindingID,
					Title:      e.Title,
					ScoreTotal: e.ScoreTotal,
				})
			}
		}
		for id := range previousIDs {
			if _, still := currentIDs[id]; !still {
				summary.Resolved++
			}
		}

		sort.Slice(regressed, func(i, j int) bool {
			if regressed[i].ScoreTotal != regressed[j].ScoreTotal {
				return regressed[i].ScoreTotal > regressed[j].ScoreTotal
			}
			return regressed[i].FindingID < regressed[j].FindingID
		})
		if len(regressed) > 3 {
			regressed = regressed[:3]
		}
		if regressed == nil {
			regressed = []TrendFinding{}
		}

		report.Runs = append(report.Runs, TrendEntry{
			Run:          run.Name,
			Summary:      summary,
			Budget:       run.State.Budget,
			TopRegressed: regressed,
		})

		previousScores = make(map[string]Entry, len(sb.Entries))
		for _, e := range sb.Entries {
			previousScores[e.FindingID] = e
		}
		previousIDs = currentIDs
	}
	return report
}

// FormatTrendMarkdown renders the trend report to deterministic Markdown.
func FormatTrendMarkdown(entries []TrendEntry) string {
	lines := []string{"# Augur Trend Report", "", "## Findings Over Time"}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- %s: new=%d resolved=%d regressed=%d",
			e.Run, e.Summary.New, e.Summary.Resolved, e.Summary.Regressed))
	}
	if len(entries) == 0 {
		lines = append(lines, "- No runs found.")
	}

	lines = append(lines, "", "## Top Regressed Findings")
	for _, e := range entries {
		if len(e.TopRegressed) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s:", e.Run))
		for _, f := range e.TopRegressed {
			lines = append(lines, fmt.Sprintf("  - %s: %s (score %d)", f.FindingID, f.Title, f.ScoreTotal))
		}
	}
	return strings.Join(lines, "\n")
}
