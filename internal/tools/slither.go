package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SlitherJSON is the subset of slither output the audit consumes: detector
// results for signal extraction plus call-graph hints for graph analysis.
type SlitherJSON struct {
	Status        string          `json:"status,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Evidence      string          `json:"evidence,omitempty"`
	ExecutionMode string          `json:"execution_mode,omitempty"`
	ArtifactPaths []string        `json:"artifact_paths,omitempty"`
	Results       SlitherResults  `json:"results"`
	CallGraph     *CallGraphHints `json:"call_graph,omitempty"`
	FunctionCalls []FunctionCall  `json:"function_calls,omitempty"`
	Functions     []FunctionInfo  `json:"functions,omitempty"`
}

// SlitherResults holds detector output.
type SlitherResults struct {
	Detectors []Detector `json:"detectors"`
}

// Detector is one slither detector hit.
type Detector struct {
	Check       string            `json:"check"`
	Impact      string            `json:"impact,omitempty"`
	Confidence  string            `json:"confidence,omitempty"`
	Description string            `json:"description,omitempty"`
	Elements    []DetectorElement `json:"elements,omitempty"`
}

// DetectorElement locates a detector hit in source.
type DetectorElement struct {
	SourceMapping SourceMapping `json:"source_mapping"`
}

// SourceMapping is slither's source location payload.
type SourceMapping struct {
	Filename         string `json:"filename,omitempty"`
	FilenameAbsolute string `json:"filename_absolute,omitempty"`
	Lines            []int  `json:"lines,omitempty"`
}

// Path returns the best available file path for the mapping.
func (m SourceMapping) Path() string {
	if m.FilenameAbsolute != "" {
		return m.FilenameAbsolute
	}
	return m.Filename
}

// CallGraphHints is an explicit node/edge list in slither output.
type CallGraphHints struct {
	Nodes []string   `json:"nodes,omitempty"`
	Edges []CallEdge `json:"edges,omitempty"`
}

// CallEdge is one directed call edge.
type CallEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FunctionCall is a caller/callee pair from slither's flat call list.
type FunctionCall struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

// FunctionInfo describes one function for graph and workbench analysis.
type FunctionInfo struct {
	Name            string            `json:"name"`
	Visibility      string            `json:"visibility,omitempty"`
	StateMutability string            `json:"state_mutability,omitempty"`
	Modifiers       []string          `json:"modifiers,omitempty"`
	Calls           []string          `json:"calls,omitempty"`
	ExternalCalls   []string          `json:"external_calls,omitempty"`
	Elements        []DetectorElement `json:"elements,omitempty"`
}

// SlitherRunner invokes slither and returns its parsed JSON. Unavailability
// and failures come back as statuses on the payload, never as errors, so the
// kernel can record a skip with evidence.
type SlitherRunner struct {
	ArtifactsDir string
	Cmd          Commander
	Compose      *Compose
	LookPath     LookPathFunc
	// UseExisting reuses an artifacts/slither.json left by a previous run.
	UseExisting bool
	Timeout     time.Duration
}

// NewSlitherRunner wires a runner against the host system.
func NewSlitherRunner(artifactsDir string) *SlitherRunner {
	cmd := SystemCommander{}
	return &SlitherRunner{
		ArtifactsDir: artifactsDir,
		Cmd:          cmd,
		Compose:      NewCompose(cmd, ""),
		Timeout:      5 * time.Minute,
	}
}

// OutputPath returns where the slither JSON artifact lives.
func (r *SlitherRunner) OutputPath() string {
	return filepath.Join(r.ArtifactsDir, "slither.json")
}

// LogPath returns where the slither execution log lives.
func (r *SlitherRunner) LogPath() string {
	return filepath.Join(r.ArtifactsDir, "slither.log")
}

// Run executes slither against the target and returns the parsed payload.
func (r *SlitherRunner) Run(ctx context.Context, targetPath string) (*SlitherJSON, error) {
	if err := os.MkdirAll(r.ArtifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}
	outputPath := r.OutputPath()
	logPath := r.LogPath()
	artifactPaths := []string{outputPath, logPath}

	if r.UseExisting {
		if payload, err := r.loadExisting(outputPath, logPath, artifactPaths); payload != nil || err != nil {
			return payload, err
		}
	}

	mode, cmdline, evidence := r.resolveExecution(ctx, targetPath, outputPath)
	if cmdline == nil {
		if err := writeToolLog(logPath, "", evidence); err != nil {
			return nil, err
		}
		return &SlitherJSON{
			Status:        StatusSkipped,
			Reason:        "slither_unavailable",
			Evidence:      evidence,
			ArtifactPaths: artifactPaths,
		}, nil
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	res, err := r.Cmd.Run(runCtx, "", cmdline[0], cmdline[1:]...)
	if err != nil {
		if logErr := writeToolLog(logPath, res.Stdout, res.Stderr); logErr != nil {
			return nil, logErr
		}
		return r.classifyFailure(err, res, cmdline[0], artifactPaths), nil
	}

	if err := writeToolLog(logPath, res.Stdout, res.Stderr); err != nil {
		return nil, err
	}

	if _, err := os.Stat(outputPath); err != nil {
		return &SlitherJSON{
			Status:        StatusFailed,
			Reason:        "slither_no_output",
			ArtifactPaths: artifactPaths,
		}, nil
	}

	payload, err := readSlitherJSON(outputPath)
	if err != nil {
		return nil, err
	}
	if payload.Status == "" {
		payload.Status = StatusSuccess
	}
	if payload.ArtifactPaths == nil {
		payload.ArtifactPaths = artifactPaths
	}
	if payload.ExecutionMode == "" {
		payload.ExecutionMode = mode
	}
	return payload, nil
}

func (r *SlitherRunner) loadExisting(outputPath, logPath string, artifactPaths []string) (*SlitherJSON, error) {
	if _, err := os.Stat(outputPath); err != nil {
		return nil, nil
	}
	if err := writeToolLog(logPath, "Using existing slither JSON output.", ""); err != nil {
		return nil, err
	}
	payload, err := readSlitherJSON(outputPath)
	if err != nil {
		return nil, err
	}
	if payload.Status == "" {
		payload.Status = StatusSuccess
	}
	if payload.ArtifactPaths == nil {
		payload.ArtifactPaths = artifactPaths
	}
	return payload, nil
}

func (r *SlitherRunner) classifyFailure(err error, res ExecResult, binary string, artifactPaths []string) *SlitherJSON {
	switch {
	case errors.Is(err, ErrToolTimeout):
		return &SlitherJSON{
			Status:        StatusFailed,
			Reason:        "slither_timeout",
			ArtifactPaths: artifactPaths,
		}
	case errors.Is(err, ErrToolNotFound):
		evidence := "binary slither not found"
		if binary == "docker" {
			evidence = "docker compose not installed"
		}
		return &SlitherJSON{
			Status:        StatusSkipped,
			Reason:        "slither_unavailable",
			Evidence:      evidence,
			ArtifactPaths: artifactPaths,
		}
	default:
		stderr := res.Stderr
		if stderr == "" {
			stderr = "(no stderr)"
		}
		return &SlitherJSON{
			Status:        StatusFailed,
			Reason:        "slither_failed: " + stderr,
			ArtifactPaths: artifactPaths,
		}
	}
}

// resolveExecution picks docker compose exec when the slither service is
// defined and running, else a local binary, else nothing plus evidence.
func (r *SlitherRunner) resolveExecution(ctx context.Context, targetPath, outputPath string) (mode string, cmdline []string, evidence string) {
	if r.Compose != nil && r.Compose.Available(ctx) {
		if !r.Compose.ServiceDefined(ctx, "slither") {
			return "", nil, "service slither not defined"
		}
		if !r.Compose.ServiceRunning(ctx, "slither") {
			return "", nil, "service slither not running"
		}
		return ModeDocker, []string{
			"docker", "compose", "exec", "-T", "slither",
			"slither", containerTargetPath(targetPath),
			"--json", filepath.Join("artifacts", "slither.json"),
		}, ""
	}

	look := r.LookPath
	if look == nil {
		look = defaultLookPath
	}
	if _, err := look("slither"); err == nil {
		return ModeLocal, []string{"slither", targetPath, "--json", outputPath}, ""
	}
	return "", nil, "binary slither not found"
}

// containerTargetPath maps a host path into the repo-relative path the
// compose service sees.
func containerTargetPath(targetPath string) string {
	abs, err := filepath.Abs(targetPath)
	if err != nil {
		return targetPath
	}
	cwd, err := os.Getwd()
	if err != nil {
		return targetPath
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return targetPath
	}
	return filepath.ToSlash(rel)
}

// LoadSlitherJSON reads a previously produced analyzer payload from disk.
func LoadSlitherJSON(path string) (*SlitherJSON, error) {
	return readSlitherJSON(path)
}

func readSlitherJSON(path string) (*SlitherJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slither output: %w", err)
	}
	var payload SlitherJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode slither output: %w", err)
	}
	return &payload, nil
}
