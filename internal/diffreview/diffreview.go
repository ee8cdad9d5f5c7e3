// Package diffreview generates a deterministic security delta report between
// two git refs: which vulnerability classes were resolved, which regressed,
// and which persist across the change.
package diffreview

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/tools"
)

var functionPattern = regexp.MustCompile(`function\s+(\w+)\s*\(`)

// Entrypoint is one state-changing public/external function.
type Entrypoint struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Lines []int  `json:"lines"`
}

// Capability labels how one analysis in the review was produced.
type Capability struct {
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	Confidence string `json:"confidence"`
}

// Delta lists vulnerability classes by transition between the refs.
type Delta struct {
	Resolved  []string `json:"resolved"`
	Regressed []string `json:"regressed"`
	Unchanged []string `json:"unchanged"`
}

// Report is the delta report persisted to artifacts.
type Report struct {
	BaseRef      string             `json:"base_ref"`
	HeadRef      string             `json:"head_ref"`
	ChangedFiles []string           `json:"changed_files"`
	Summary      state.DeltaSummary `json:"summary"`
	Capabilities struct {
		Entrypoints Capability `json:"entrypoints"`
		StaticScan  Capability `json:"static_scan"`
	} `json:"capabilities"`
	Delta Delta `json:"delta"`
}

// Reviewer runs the differential review. Git commands go through the shared
// commander so tests can stub them.
type Reviewer struct {
	Store        *state.Store
	ArtifactsDir string
	RepoPath     string
	Cmd          tools.Commander
	Now          func() time.Time
}

// New wires a reviewer against the host git.
func New(store *state.Store, artifactsDir, repoPath string) *Reviewer {
	return &Reviewer{
		Store:        store,
		ArtifactsDir: artifactsDir,
		RepoPath:     repoPath,
		Cmd:          tools.SystemCommander{},
		Now:          time.Now,
	}
}

// Run produces the delta report and records it in state.
func (r *Reviewer) Run(ctx context.Context, baseRef, headRef, targetPath string) (*Report, error) {
	diffDir := filepath.Join(r.ArtifactsDir, "diff")
	if err := os.MkdirAll(diffDir, 0o755); err != nil {
		return nil, fmt.Errorf("create diff artifacts directory: %w", err)
	}

	changed, err := r.changedSolidityFiles(ctx, baseRef, headRef, targetPath)
	if err != nil {
		return nil, err
	}
	changedJSONPath := filepath.Join(diffDir, "changed_files.json")
	if err := writeJSON(changedJSONPath, map[string]any{"files": changed}); err != nil {
		return nil, err
	}
	changedLogPath := filepath.Join(diffDir, "changed_files.log")
	log := fmt.Sprintf("Changed Solidity files: %d\n", len(changed))
	if err := os.WriteFile(changedLogPath, []byte(log), 0o644); err != nil {
		return nil, fmt.Errorf("write changed files log: %w", err)
	}

	entrypointsCap, entrypointArtifacts, err := r.entrypointsForRef(ctx, baseRef, changed, diffDir)
	if err != nil {
		return nil, err
	}

	baseClasses, headClasses, staticCap, err := r.classesForRefs(ctx, baseRef, headRef, targetPath)
	if err != nil {
		return nil, err
	}
	delta := deltaClasses(baseClasses, headClasses)

	rep := &Report{
		BaseRef:      baseRef,
		HeadRef:      headRef,
		ChangedFiles: changed,
		Summary: state.DeltaSummary{
			Resolved:  len(delta.Resolved),
			Regressed: len(delta.Regressed),
			Unchanged: len(delta.Unchanged),
		},
		Delta: delta,
	}
	rep.Capabilities.Entrypoints = entrypointsCap
	rep.Capabilities.StaticScan = staticCap

	reportJSONPath := filepath.Join(diffDir, "delta_report.json")
	if err := writeJSON(reportJSONPath, rep); err != nil {
		return nil, err
	}
	reportMDPath := filepath.Join(diffDir, "delta_report.md")
	if err := os.WriteFile(reportMDPath, []byte(renderMarkdown(rep)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write delta report markdown: %w", err)
	}

	st, err := r.Store.Load()
	if err != nil {
		return nil, err
	}
	st.DiffReview = &state.DiffReviewRecord{
		BaseRef:      baseRef,
		HeadRef:      headRef,
		ChangedFiles: changed,
		Summary:      rep.Summary,
		ArtifactPaths: append([]string{
			changedJSONPath,
			reportJSONPath,
			reportMDPath,
		}, entrypointArtifacts...),
		ExecutedAt: r.Now().UTC().Format(time.RFC3339),
	}
	if err := r.Store.Save(st); err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *Reviewer) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.Cmd.Run(ctx, r.RepoPath, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return res.Stdout, nil
}

func (r *Reviewer) changedSolidityFiles(ctx context.Context, baseRef, headRef, targetPath string) ([]string, error) {
	out, err := r.git(ctx, "diff", "--name-only", baseRef, headRef, "--", targetPath)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasSuffix(line, ".sol") {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// entrypointsForRef extracts entry points from the changed files as they
// existed at the ref, writing the entrypoints artifacts.
func (r *Reviewer) entrypointsForRef(ctx context.Context, ref string, files []string, diffDir string) (Capability, []string, error) {
	entrypoints := []Entrypoint{}
	for _, path := range files {
		content, err := r.git(ctx, "show", ref+":"+path)
		if err != nil {
			continue
		}
		entrypoints = append(entrypoints, entrypointsFromSource(content, path)...)
	}
	sort.Slice(entrypoints, func(i, j int) bool { return entrypoints[i].Name < entrypoints[j].Name })

	outputPath := filepath.Join(diffDir, "entrypoints.json")
	logPath := filepath.Join(diffDir, "entrypoints.log")
	if err := writeJSON(outputPath, map[string]any{"entrypoints": entrypoints}); err != nil {
		return Capability{}, nil, err
	}
	log := fmt.Sprintf("Entry points: %d\n", len(entrypoints))
	if err := os.WriteFile(logPath, []byte(log), 0o644); err != nil {
		return Capability{}, nil, fmt.Errorf("write entrypoints log: %w", err)
	}

	capability := Capability{Status: "executed", Reason: "heuristic", Confidence: "medium"}
	return capability, []string{outputPath, logPath}, nil
}

// entrypointsFromSource picks state-changing public/external functions with a
// line-level regex. View and pure functions are excluded.
func entrypointsFromSource(content, path string) []Entrypoint {
	var entrypoints []Entrypoint
	for i, line := range strings.Split(content, "\n") {
		match := functionPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "public") && !strings.Contains(lower, "external") {
			continue
		}
		if strings.Contains(lower, "view") || strings.Contains(lower, "pure") {
			continue
		}
		entrypoints = append(entrypoints, Entrypoint{Name: match[1], Path: path, Lines: []int{i + 1}})
	}
	return entrypoints
}

// classesForRefs derives the vulnerability-class sets at both refs. When the
// static analyzer JSON is on disk its detectors drive both sides with high
// confidence; otherwise the unified diff hunks are scanned for risky markers
// with low confidence.
func (r *Reviewer) classesForRefs(ctx context.Context, baseRef, headRef, targetPath string) (base, head map[string]struct{}, capability Capability, err error) {
	slitherPath := filepath.Join(r.ArtifactsDir, "slither.json")
	if _, statErr := os.Stat(slitherPath); statErr == nil {
		payload, loadErr := tools.LoadSlitherJSON(slitherPath)
		if loadErr != nil {
			return nil, nil, Capability{}, loadErr
		}
		classes := classesFromDetectors(payload)
		return classes, classes, Capability{Status: "executed", Reason: "slither_json", Confidence: "high"}, nil
	}

	out, gitErr := r.git(ctx, "diff", baseRef, headRef, "--", targetPath)
	if gitErr != nil {
		return nil, nil, Capability{}, gitErr
	}
	base, head, parseErr := classesFromHunks(out)
	if parseErr != nil {
		return nil, nil, Capability{}, parseErr
	}
	return base, head, Capability{Status: "skipped", Reason: "slither_unavailable", Confidence: "low"}, nil
}

func classesFromDetectors(payload *tools.SlitherJSON) map[string]struct{} {
	classes := map[string]struct{}{}
	for _, detector := range payload.Results.Detectors {
		check := strings.ToLower(detector.Check)
		switch {
		case strings.Contains(check, "reentrancy"):
			classes["reentrancy"] = struct{}{}
		case strings.Contains(check, "unchecked") && strings.Contains(check, "return"):
			classes["unchecked_return"] = struct{}{}
		case strings.Contains(check, "delegatecall"), strings.Contains(check, "low-level"), strings.Contains(check, "call"):
			classes["dangerous_call"] = struct{}{}
		}
	}
	return classes
}

// classesFromHunks assigns risky markers to each side of the diff: removed
// and context lines describe the base ref, added and context lines the head
// ref. Only markers visible in changed hunks are seen; that is the price of
// running without the analyzer.
func classesFromHunks(unified string) (base, head map[string]struct{}, err error) {
	base = map[string]struct{}{}
	head = map[string]struct{}{}
	if strings.TrimSpace(unified) == "" {
		return base, head, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(unified)).ReadAllFiles()
	if err != nil {
		return nil, nil, fmt.Errorf("parse diff: %w", err)
	}
	for _, fd := range fileDiffs {
		if !strings.HasSuffix(fd.NewName, ".sol") && !strings.HasSuffix(fd.OrigName, ".sol") {
			continue
		}
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				if line == "" {
					continue
				}
				risky := strings.Contains(line, "call(") || strings.Contains(line, "delegatecall")
				if !risky {
					continue
				}
				switch line[0] {
				case '+':
					head["dangerous_call"] = struct{}{}
				case '-':
					base["dangerous_call"] = struct{}{}
				default:
					base["dangerous_call"] = struct{}{}
					head["dangerous_call"] = struct{}{}
				}
			}
		}
	}
	return base, head, nil
}

func deltaClasses(base, head map[string]struct{}) Delta {
	d := Delta{Resolved: []string{}, Regressed: []string{}, Unchanged: []string{}}
	for class := range base {
		if _, ok := head[class]; ok {
			d.Unchanged = append(d.Unchanged, class)
		} else {
			d.Resolved = append(d.Resolved, class)
		}
	}
	for class := range head {
		if _, ok := base[class]; !ok {
			d.Regressed = append(d.Regressed, class)
		}
	}
	sort.Strings(d.Resolved)
	sort.Strings(d.Regressed)
	sort.Strings(d.Unchanged)
	return d
}

func renderMarkdown(rep *Report) string {
	lines := []string{
		"# Augur Differential Review",
		"",
		fmt.Sprintf("Base: `%s`", rep.BaseRef),
		fmt.Sprintf("Head: `%s`", rep.HeadRef),
		"",
		"## Changed Solidity Files",
	}
	if len(rep.ChangedFiles) == 0 {
		lines = append(lines, "- None")
	} else {
		for _, path := range rep.ChangedFiles {
			lines = append(lines, "- "+path)
		}
	}

	lines = append(lines, "", "## Delta Summary")
	lines = append(lines, fmt.Sprintf("- Resolved: %d", rep.Summary.Resolved))
	lines = append(lines, fmt.Sprintf("- Regressed: %d", rep.Summary.Regressed))
	lines = append(lines, fmt.Sprintf("- Unchanged: %d", rep.Summary.Unchanged))

	lines = append(lines, "", "## Findings Delta")
	lines = append(lines, "- Regressed: "+joinOrNone(rep.Delta.Regressed))
	lines = append(lines, "- Resolved: "+joinOrNone(rep.Delta.Resolved))
	lines = append(lines, "- Unchanged: "+joinOrNone(rep.Delta.Unchanged))

	lines = append(lines, "", "## Capabilities")
	lines = append(lines, formatCapability("entrypoints", rep.Capabilities.Entrypoints))
	lines = append(lines, formatCapability("static_scan", rep.Capabilities.StaticScan))
	return strings.Join(lines, "\n")
}

func formatCapability(name string, c Capability) string {
	return fmt.Sprintf("- %s: %s (%s), confidence=%s", name, c.Status, c.Reason, c.Confidence)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
