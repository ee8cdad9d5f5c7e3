package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/augur-audit/augur/internal/state"
)

// FuzzResult is the outcome of a forge fuzz campaign.
type FuzzResult struct {
	Status        string              `json:"status"`
	Reason        string              `json:"reason,omitempty"`
	Evidence      string              `json:"evidence,omitempty"`
	ExecutionMode string              `json:"execution_mode,omitempty"`
	LogPath       string              `json:"log_path"`
	Failures      []state.FuzzFailure `json:"failures"`
	ArtifactPaths []string            `json:"artifact_paths"`
}

// FoundryRunner invokes forge test with configurable fuzz runs.
type FoundryRunner struct {
	ArtifactsDir string
	Cmd          Commander
	Compose      *Compose
	LookPath     LookPathFunc
	Timeout      time.Duration
}

// NewFoundryRunner wires a runner against the host system.
func NewFoundryRunner(artifactsDir string) *FoundryRunner {
	cmd := SystemCommander{}
	return &FoundryRunner{
		ArtifactsDir: artifactsDir,
		Cmd:          cmd,
		Compose:      NewCompose(cmd, ""),
		Timeout:      10 * time.Minute,
	}
}

// LogPath returns where the fuzz log artifact lives.
func (r *FoundryRunner) LogPath() string {
	return filepath.Join(r.ArtifactsDir, "foundry_fuzz.log")
}

// Run executes the fuzz campaign. Tool unavailability and test failures are
// statuses on the result; an error means the run itself could not proceed.
func (r *FoundryRunner) Run(ctx context.Context, targetPath string, fuzzRuns int) (*FuzzResult, error) {
	if err := os.MkdirAll(r.ArtifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}
	logPath := r.LogPath()
	artifactPaths := []string{logPath}

	mode, cmdline, dir, evidence := r.resolveExecution(ctx, targetPath, fuzzRuns)
	if cmdline == nil {
		if err := writeToolLog(logPath, "", evidence); err != nil {
			return nil, err
		}
		return &FuzzResult{
			Status:        StatusSkipped,
			Reason:        "foundry_unavailable",
			Evidence:      evidence,
			LogPath:       logPath,
			Failures:      []state.FuzzFailure{},
			ArtifactPaths: artifactPaths,
		}, nil
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	res, err := r.Cmd.Run(runCtx, dir, cmdline[0], cmdline[1:]...)
	if logErr := writeToolLog(logPath, res.Stdout, res.Stderr); logErr != nil {
		return nil, logErr
	}
	if err != nil {
		return r.classifyFailure(err, res, cmdline[0], logPath, artifactPaths), nil
	}

	return &FuzzResult{
		Status:        StatusSuccess,
		ExecutionMode: mode,
		LogPath:       logPath,
		Failures:      []state.FuzzFailure{},
		ArtifactPaths: artifactPaths,
	}, nil
}

func (r *FoundryRunner) classifyFailure(err error, res ExecResult, binary, logPath string, artifactPaths []string) *FuzzResult {
	switch {
	case errors.Is(err, ErrToolTimeout):
		return &FuzzResult{
			Status:        StatusFailed,
			Reason:        "foundry_timeout",
			LogPath:       logPath,
			Failures:      []state.FuzzFailure{},
			ArtifactPaths: artifactPaths,
		}
	case errors.Is(err, ErrToolNotFound):
		evidence := "binary forge not found"
		if binary == "docker" {
			evidence = "docker compose not installed"
		}
		return &FuzzResult{
			Status:        StatusSkipped,
			Reason:        "foundry_unavailable",
			Evidence:      evidence,
			LogPath:       logPath,
			Failures:      []state.FuzzFailure{},
			ArtifactPaths: artifactPaths,
		}
	default:
		return &FuzzResult{
			Status:        StatusFailed,
			Reason:        "foundry_failed",
			LogPath:       logPath,
			Failures:      ExtractFailures(res.Stdout + "\n" + res.Stderr),
			ArtifactPaths: artifactPaths,
		}
	}
}

func (r *FoundryRunner) resolveExecution(ctx context.Context, targetPath string, fuzzRuns int) (mode string, cmdline []string, dir, evidence string) {
	if r.Compose != nil && r.Compose.Available(ctx) {
		if !r.Compose.ServiceDefined(ctx, "foundry") {
			return "", nil, "", "service foundry not defined"
		}
		if !r.Compose.ServiceRunning(ctx, "foundry") {
			return "", nil, "", "service foundry not running"
		}
		return ModeDocker, []string{
			"docker", "compose", "exec", "-T", "foundry",
			"forge", "test", "--fuzz-runs", strconv.Itoa(fuzzRuns),
		}, "", ""
	}

	look := r.LookPath
	if look == nil {
		look = defaultLookPath
	}
	if _, err := look("forge"); err == nil {
		return ModeLocal, []string{"forge", "test", "--fuzz-runs", strconv.Itoa(fuzzRuns)}, targetPath, ""
	}
	return "", nil, "", "binary forge not found"
}

// ExtractFailures pulls minimal failure summaries out of forge output: one
// entry per line mentioning a failure, carrying the seed when the line names
// one.
func ExtractFailures(output string) []state.FuzzFailure {
	var failures []state.FuzzFailure
	for _, line := range strings.Split(output, "\n") {
		normalized := strings.TrimSpace(line)
		if normalized == "" {
			continue
		}
		if !strings.Contains(normalized, "FAIL") && !strings.Contains(normalized, "Fail") {
			continue
		}
		failure := state.FuzzFailure{Test: normalized, Snippet: normalized}
		if strings.Contains(strings.ToLower(normalized), "seed") {
			failure.Seed = normalized
		}
		failures = append(failures, failure)
	}
	if failures == nil {
		failures = []state.FuzzFailure{}
	}
	return failures
}
