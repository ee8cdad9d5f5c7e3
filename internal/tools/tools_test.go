package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommander scripts command outcomes keyed by the joined command line.
type fakeCommander struct {
	results map[string]ExecResult
	errs    map[string]error
	calls   []string
}

func (f *fakeCommander) Run(_ context.Context, _ string, name string, args ...string) (ExecResult, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	for prefix, err := range f.errs {
		if strings.HasPrefix(key, prefix) {
			return f.results[prefix], err
		}
	}
	for prefix, res := range f.results {
		if strings.HasPrefix(key, prefix) {
			return res, nil
		}
	}
	return ExecResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

func missingBinary(string) (string, error) { return "", errors.New("not found") }
func presentBinary(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func composeLess(dir string) *Compose {
	return NewCompose(&fakeCommander{}, dir)
}

func TestComposeUnavailableWithoutFile(t *testing.T) {
	c := composeLess(t.TempDir())
	assert.False(t, c.Available(context.Background()))
}

func TestComposeServiceProbes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	cmd := &fakeCommander{results: map[string]ExecResult{
		"docker compose version":         {},
		"docker compose config":          {Stdout: "slither\nfoundry\n"},
		"docker compose ps --services":   {Stdout: "slither\n"},
	}}
	c := NewCompose(cmd, dir)

	ctx := context.Background()
	assert.True(t, c.Available(ctx))
	assert.True(t, c.ServiceDefined(ctx, "slither"))
	assert.True(t, c.ServiceDefined(ctx, "foundry"))
	assert.False(t, c.ServiceDefined(ctx, "mythril"))
	assert.True(t, c.ServiceRunning(ctx, "slither"))
	assert.False(t, c.ServiceRunning(ctx, "foundry"))
}

func TestSlitherSkipsWhenUnavailable(t *testing.T) {
	dir := t.TempDir()
	r := &SlitherRunner{
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		Cmd:          &fakeCommander{},
		Compose:      composeLess(dir),
		LookPath:     missingBinary,
	}

	payload, err := r.Run(context.Background(), "contracts/")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, payload.Status)
	assert.Equal(t, "slither_unavailable", payload.Reason)
	assert.Equal(t, "binary slither not found", payload.Evidence)

	log, err := os.ReadFile(r.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(log), "binary slither not found")
}

func TestSlitherLocalRunParsesOutput(t *testing.T) {
	dir := t.TempDir()
	artifacts := filepath.Join(dir, "artifacts")
	require.NoError(t, os.MkdirAll(artifacts, 0o755))

	outputJSON := `{"results":{"detectors":[{"check":"reentrancy-eth","impact":"High","confidence":"High","description":"reentrancy in withdraw()"}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(artifacts, "slither.json"), []byte(outputJSON), 0o644))

	r := &SlitherRunner{
		ArtifactsDir: artifacts,
		Cmd: &fakeCommander{results: map[string]ExecResult{
			"slither": {Stdout: "done"},
		}},
		Compose:  composeLess(dir),
		LookPath: presentBinary,
	}

	payload, err := r.Run(context.Background(), "contracts/")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, payload.Status)
	assert.Equal(t, ModeLocal, payload.ExecutionMode)
	require.Len(t, payload.Results.Detectors, 1)
	assert.Equal(t, "reentrancy-eth", payload.Results.Detectors[0].Check)
	assert.Equal(t, []string{r.OutputPath(), r.LogPath()}, payload.ArtifactPaths)
}

func TestSlitherFailureCapturesStderr(t *testing.T) {
	dir := t.TempDir()
	r := &SlitherRunner{
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		Cmd: &fakeCommander{
			results: map[string]ExecResult{"slither": {Stderr: "compilation failed"}},
			errs:    map[string]error{"slither": fmt.Errorf("%w: slither: exit 1", ErrToolFailed)},
		},
		Compose:  composeLess(dir),
		LookPath: presentBinary,
	}

	payload, err := r.Run(context.Background(), "contracts/")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, payload.Status)
	assert.Equal(t, "slither_failed: compilation failed", payload.Reason)
}

func TestSlitherReusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	artifacts := filepath.Join(dir, "artifacts")
	require.NoError(t, os.MkdirAll(artifacts, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(artifacts, "slither.json"),
		[]byte(`{"results":{"detectors":[]}}`), 0o644))

	cmd := &fakeCommander{}
	r := &SlitherRunner{
		ArtifactsDir: artifacts,
		Cmd:          cmd,
		Compose:      composeLess(dir),
		LookPath:     missingBinary,
		UseExisting:  true,
	}

	payload, err := r.Run(context.Background(), "contracts/")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, payload.Status)
	assert.Empty(t, cmd.calls, "offline reuse must not invoke any command")
}

func TestSlitherNoOutputIsFailure(t *testing.T) {
	dir := t.TempDir()
	r := &SlitherRunner{
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		Cmd: &fakeCommander{results: map[string]ExecResult{
			"slither": {Stdout: "ran but wrote nothing"},
		}},
		Compose:  composeLess(dir),
		LookPath: presentBinary,
	}

	payload, err := r.Run(context.Background(), "contracts/")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, payload.Status)
	assert.Equal(t, "slither_no_output", payload.Reason)
}

func TestFoundrySkipsWhenUnavailable(t *testing.T) {
	dir := t.TempDir()
	r := &FoundryRunner{
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		Cmd:          &fakeCommander{},
		Compose:      composeLess(dir),
		LookPath:     missingBinary,
	}

	res, err := r.Run(context.Background(), dir, 256)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "foundry_unavailable", res.Reason)
	assert.Equal(t, "binary forge not found", res.Evidence)
	assert.Empty(t, res.Failures)
}

func TestFoundryFailureExtractsFailures(t *testing.T) {
	dir := t.TempDir()
	stdout := strings.Join([]string{
		"Running 2 tests",
		"[PASS] testDeposit()",
		"[FAIL. Reason: assertion failed; counterexample: calldata=0x1 seed: 42] testWithdraw()",
	}, "\n")
	r := &FoundryRunner{
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		Cmd: &fakeCommander{
			results: map[string]ExecResult{"forge": {Stdout: stdout}},
			errs:    map[string]error{"forge": fmt.Errorf("%w: forge: exit 1", ErrToolFailed)},
		},
		Compose:  composeLess(dir),
		LookPath: presentBinary,
	}

	res, err := r.Run(context.Background(), dir, 64)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "foundry_failed", res.Reason)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Test, "testWithdraw")
	assert.NotEmpty(t, res.Failures[0].Seed, "seed-bearing line is preserved")
}

func TestFoundrySuccess(t *testing.T) {
	dir := t.TempDir()
	r := &FoundryRunner{
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		Cmd: &fakeCommander{results: map[string]ExecResult{
			"forge": {Stdout: "All tests passed"},
		}},
		Compose:  composeLess(dir),
		LookPath: presentBinary,
	}

	res, err := r.Run(context.Background(), dir, 256)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, ModeLocal, res.ExecutionMode)
	assert.Equal(t, []string{r.LogPath()}, res.ArtifactPaths)

	log, err := os.ReadFile(r.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(log), "All tests passed")
}

func TestExtractFailuresEmptyOutput(t *testing.T) {
	assert.Empty(t, ExtractFailures("everything ok\n"))
	assert.NotNil(t, ExtractFailures(""))
}

func TestQuickLinterFindsMarkers(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "contracts")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "Vault.sol"),
		[]byte("contract Vault {\n  // TODO: add reentrancy guard\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "lib", "Math.sol"),
		[]byte("// FIXME: overflow\nlibrary Math {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "README.md"),
		[]byte("TODO: not solidity\n"), 0o644))

	l := NewQuickLinter(filepath.Join(dir, "artifacts"))
	findings, err := l.Run(target)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	// Deterministic path order.
	assert.Contains(t, findings[0].Path, "Vault.sol")
	assert.Equal(t, []int{2}, findings[0].Lines)
	assert.Contains(t, findings[1].Path, "Math.sol")
	assert.Equal(t, "quick_linter", findings[0].SourceTool)
	assert.Equal(t, "heuristic", findings[0].Confidence)

	log, err := os.ReadFile(l.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(log), "Findings: 2")
}

func TestQuickLinterMissingTarget(t *testing.T) {
	l := NewQuickLinter(t.TempDir())
	findings, err := l.Run(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestQuickLinterSingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "One.sol")
	require.NoError(t, os.WriteFile(file, []byte("// TODO: x\n"), 0o644))

	l := NewQuickLinter(filepath.Join(dir, "artifacts"))
	findings, err := l.Run(file)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, file, findings[0].Path)
}
