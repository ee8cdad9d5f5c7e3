// Package tools wraps the external programs the audit shells out to: slither,
// forge, docker compose, and a dependency-free quick linter. Each runner
// resolves an execution mode (docker compose service, local binary, or skip
// with evidence), captures stdout/stderr to an artifact log, and reports
// unavailability as data rather than an error.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Execution statuses shared by all runners.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Execution modes.
const (
	ModeDocker = "docker"
	ModeLocal  = "local"
)

// ExecResult captures a command's output streams.
type ExecResult struct {
	Stdout string
	Stderr string
}

// Commander runs external commands. Injectable so runner tests never shell
// out.
type Commander interface {
	Run(ctx context.Context, dir, name string, args ...string) (ExecResult, error)
}

// SystemCommander executes commands on the host, classifying failures into
// the package's sentinel errors.
type SystemCommander struct{}

func (SystemCommander) Run(ctx context.Context, dir, name string, args ...string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %s", ErrToolTimeout, name)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, fmt.Errorf("%w: %s: exit %d", ErrToolFailed, name, exitErr.ExitCode())
	}
	return res, fmt.Errorf("run %s: %w", name, err)
}

// writeToolLog writes the combined stdout/stderr artifact log.
func writeToolLog(path, stdout, stderr string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	content := strings.Join([]string{
		"### stdout",
		strings.TrimSpace(stdout),
		"",
		"### stderr",
		strings.TrimSpace(stderr),
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write tool log: %w", err)
	}
	return nil
}

// LookPathFunc reports where a binary lives, exec.LookPath-shaped so tests
// can fake binary presence.
type LookPathFunc func(name string) (string, error)

func defaultLookPath(name string) (string, error) { return exec.LookPath(name) }
