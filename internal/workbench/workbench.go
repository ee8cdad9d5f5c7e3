// Package workbench runs standalone analysis tasks outside the kernel loop:
// entry-point discovery and vulnerability-class normalization. Tasks prefer
// analyzer output and degrade to source heuristics, recording provenance and
// confidence either way.
package workbench

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

	"github.com/bmatcuk/doublestar/v4"

	"github.com/augur-audit/augur/internal/state"
	"github.com/augur-audit/augur/internal/tools"
)

var functionPattern = regexp.MustCompile(`function\s+(\w+)\s*\(`)

// EvidenceLocation points an entry point or class at source.
type EvidenceLocation struct {
	Path  string `json:"path"`
	Lines []int  `json:"lines"`
}

// Entrypoint is one state-changing public/external function.
type Entrypoint struct {
	Name       string             `json:"name"`
	Visibility string             `json:"visibility"`
	Evidence   []EvidenceLocation `json:"evidence"`
}

// ClassEvidence is one detector hit backing a vulnerability class.
type ClassEvidence struct {
	Check       string `json:"check"`
	Description string `json:"description"`
}

// VulnerabilityClass groups detector hits under a normalized class name.
type VulnerabilityClass struct {
	Class    string          `json:"class"`
	Evidence []ClassEvidence `json:"evidence"`
}

// Workbench executes the tasks against a target.
type Workbench struct {
	Store        *state.Store
	ArtifactsDir string
	Slither      *tools.SlitherRunner
	Now          func() time.Time
}

// New wires a workbench whose analyzer reuses any existing output before
// attempting a fresh run.
func New(store *state.Store, artifactsDir string) *Workbench {
	slither := tools.NewSlitherRunner(artifactsDir)
	slither.UseExisting = true
	return &Workbench{
		Store:        store,
		ArtifactsDir: artifactsDir,
		Slither:      slither,
		Now:          time.Now,
	}
}

// RunEntrypoints analyzes entry points and persists output plus provenance.
func (w *Workbench) RunEntrypoints(ctx context.Context, targetPath string) ([]Entrypoint, error) {
	dir, err := w.workbenchDir()
	if err != nil {
		return nil, err
	}
	outputPath := filepath.Join(dir, "entrypoints.json")
	logPath := filepath.Join(dir, "entrypoints.log")
	execLogPath := filepath.Join(dir, "slither_exec.log")

	payload, sourceTool, confidence := w.analyzerPayload(ctx, targetPath, execLogPath)

	var entrypoints []Entrypoint
	if payload != nil {
		entrypoints = entrypointsFromAnalyzer(payload)
	} else {
		entrypoints, err = heuristicEntrypoints(targetPath)
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(entrypoints, func(i, j int) bool { return entrypoints[i].Name < entrypoints[j].Name })
	if entrypoints == nil {
		entrypoints = []Entrypoint{}
	}

	if err := writeJSON(outputPath, map[string]any{"entrypoints": entrypoints}); err != nil {
		return nil, err
	}
	log := fmt.Sprintf("Entry points: %d\n", len(entrypoints))
	if err := os.WriteFile(logPath, []byte(log), 0o644); err != nil {
		return nil, fmt.Errorf("write entrypoints log: %w", err)
	}

	task := &state.WorkbenchTask{
		SourceTool:    sourceTool,
		Confidence:    confidence,
		ArtifactPaths: []string{outputPath, logPath, execLogPath},
		ExecutedAt:    w.Now().UTC().Format(time.RFC3339),
	}
	if err := w.recordTask(func(rec *state.WorkbenchRecord) { rec.Entrypoints = task }); err != nil {
		return nil, err
	}
	return entrypoints, nil
}

// RunSecureContracts normalizes detector hits into vulnerability classes.
func (w *Workbench) RunSecureContracts(ctx context.Context, targetPath string) ([]VulnerabilityClass, error) {
	dir, err := w.workbenchDir()
	if err != nil {
		return nil, err
	}
	outputPath := filepath.Join(dir, "secure_contracts.json")
	logPath := filepath.Join(dir, "secure_contracts.log")
	execLogPath := filepath.Join(dir, "slither_exec.log")

	payload, sourceTool, confidence := w.analyzerPayload(ctx, targetPath, execLogPath)
	classes := normalizeClasses(payload)

	if err := writeJSON(outputPath, map[string]any{"vulnerability_classes": classes}); err != nil {
		return nil, err
	}
	log := fmt.Sprintf("Classes: %d\n", len(classes))
	if err := os.WriteFile(logPath, []byte(log), 0o644); err != nil {
		return nil, fmt.Errorf("write secure contracts log: %w", err)
	}

	task := &state.WorkbenchTask{
		SourceTool:    sourceTool,
		Confidence:    confidence,
		ArtifactPaths: []string{outputPath, logPath, execLogPath},
		ExecutedAt:    w.Now().UTC().Format(time.RFC3339),
	}
	if err := w.recordTask(func(rec *state.WorkbenchRecord) { rec.SecureContracts = task }); err != nil {
		return nil, err
	}
	return classes, nil
}

// RunAll executes both tasks in order.
func (w *Workbench) RunAll(ctx context.Context, targetPath string) error {
	if _, err := w.RunEntrypoints(ctx, targetPath); err != nil {
		return err
	}
	_, err := w.RunSecureContracts(ctx, targetPath)
	return err
}

func (w *Workbench) workbenchDir() (string, error) {
	dir := filepath.Join(w.ArtifactsDir, "workbench")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workbench directory: %w", err)
	}
	return dir, nil
}

// analyzerPayload returns the analyzer output when it exists or can be
// produced, else nil; the provenance labels describe which path was taken.
func (w *Workbench) analyzerPayload(ctx context.Context, targetPath, execLogPath string) (*tools.SlitherJSON, string, string) {
	jsonPath := w.Slither.OutputPath()
	if _, err := os.Stat(jsonPath); err == nil {
		payload, err := tools.LoadSlitherJSON(jsonPath)
		if err == nil {
			_ = os.WriteFile(execLogPath, []byte("Using existing Slither JSON.\n"), 0o644)
			return payload, "slither", "high"
		}
	}

	payload, err := w.Slither.Run(ctx, targetPath)
	if err == nil && payload.Status == tools.StatusSuccess {
		_ = os.WriteFile(execLogPath, []byte("Slither executed.\n"), 0o644)
		return payload, "slither", "high"
	}
	reason := "slither unavailable"
	if payload != nil && payload.Evidence != "" {
		reason = payload.Evidence
	}
	_ = os.WriteFile(execLogPath, []byte("Slither unavailable: "+reason+"\n"), 0o644)
	return nil, "heuristic", "low"
}

func (w *Workbench) recordTask(apply func(*state.WorkbenchRecord)) error {
	st, err := w.Store.Load()
	if err != nil {
		return err
	}
	if st.Workbench == nil {
		st.Workbench = &state.WorkbenchRecord{}
	}
	apply(st.Workbench)
	return w.Store.Save(st)
}

// entrypointsFromAnalyzer keeps public/external functions that can change
// state, with their source evidence.
func entrypointsFromAnalyzer(payload *tools.SlitherJSON) []Entrypoint {
	var entrypoints []Entrypoint
	for _, fn := range payload.Functions {
		visibility := strings.ToLower(fn.Visibility)
		if visibility != "public" && visibility != "external" {
			continue
		}
		mutability := strings.ToLower(fn.StateMutability)
		if mutability == "view" || mutability == "pure" {
			continue
		}
		evidence := []EvidenceLocation{}
		for _, element := range fn.Elements {
			evidence = append(evidence, EvidenceLocation{
				Path:  element.SourceMapping.Path(),
				Lines: element.SourceMapping.Lines,
			})
		}
		entrypoints = append(entrypoints, Entrypoint{
			Name:       fn.Name,
			Visibility: visibility,
			Evidence:   evidence,
		})
	}
	return entrypoints
}

// heuristicEntrypoints scans Solidity sources line by line when no analyzer
// output is available.
func heuristicEntrypoints(targetPath string) ([]Entrypoint, error) {
	info, err := os.Stat(targetPath)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(targetPath), "**/*.sol")
	if err != nil {
		return nil, fmt.Errorf("glob solidity files: %w", err)
	}
	sort.Strings(matches)

	var entrypoints []Entrypoint
	for _, m := range matches {
		path := filepath.Join(targetPath, m)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read solidity file: %w", err)
		}
		for i, line := range strings.Split(string(data), "\n") {
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
			entrypoints = append(entrypoints, Entrypoint{
				Name:       match[1],
				Visibility: "public/external",
				Evidence:   []EvidenceLocation{{Path: path, Lines: []int{i + 1}}},
			})
		}
	}
	return entrypoints, nil
}

// normalizeClasses folds detector hits into sorted vulnerability classes.
func normalizeClasses(payload *tools.SlitherJSON) []VulnerabilityClass {
	if payload == nil {
		return []VulnerabilityClass{}
	}
	grouped := map[string][]ClassEvidence{}
	for _, detector := range payload.Results.Detectors {
		check := strings.ToLower(detector.Check)
		var key string
		switch {
		case strings.Contains(check, "reentrancy"):
			key = "reentrancy"
		case strings.Contains(check, "unchecked") && strings.Contains(check, "return"):
			key = "unchecked_return"
		case strings.Contains(check, "delegatecall"), strings.Contains(check, "low-level"), strings.Contains(check, "call"):
			key = "dangerous_call"
		default:
			continue
		}
		grouped[key] = append(grouped[key], ClassEvidence{
			Check:       detector.Check,
			Description: detector.Description,
		})
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	classes := make([]VulnerabilityClass, 0, len(keys))
	for _, k := range keys {
		classes = append(classes, VulnerabilityClass{Class: k, Evidence: grouped[k]})
	}
	return classes
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
