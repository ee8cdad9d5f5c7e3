package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augur-audit/augur/internal/state"
)

func auditState() *state.State {
	return &state.State{
		Status: state.StatusRunning,
		Findings: []state.Finding{{
			Category: "reentrancy", Description: "state after call",
			SourceTool: "slither", ArtifactPaths: []string{}, Confidence: "high",
		}},
	}
}

func TestAvailability(t *testing.T) {
	assert.False(t, (&Synthesis{}).Available())
	assert.True(t, (&Synthesis{OfflineFixtures: true}).Available())
	assert.True(t, (&Synthesis{Client: NewClient("http://localhost:9", "m", "")}).Available())
}

func TestUnavailableWithoutClient(t *testing.T) {
	s := &Synthesis{ArtifactsDir: t.TempDir()}
	result, err := s.Summarize(context.Background(), auditState())
	require.NoError(t, err)
	assert.Equal(t, "unavailable", result.Status)
}

func TestSummarizeAgainstCompatibleEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Two reentrancy findings dominate the risk."}}]}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	s := &Synthesis{
		Client:       NewClient(server.URL, "vllm-model", "test-key"),
		ArtifactsDir: dir,
	}

	result, err := s.Summarize(context.Background(), auditState())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "Two reentrancy findings dominate the risk.", result.Summary)

	require.Len(t, result.ArtifactPaths, 2)
	assert.FileExists(t, filepath.Join(dir, "llm", "llm_request.json"))
	assert.FileExists(t, filepath.Join(dir, "llm", "llm_response.json"))

	request, err := os.ReadFile(filepath.Join(dir, "llm", "llm_request.json"))
	require.NoError(t, err)
	assert.Contains(t, string(request), "vllm-model")
	assert.Contains(t, string(request), "Summarize the audit findings.")
}

func TestEndpointErrorProducesErrorArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dir := t.TempDir()
	s := &Synthesis{
		Client:       NewClient(server.URL, "vllm-model", ""),
		ArtifactsDir: dir,
	}

	result, err := s.Summarize(context.Background(), auditState())
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.NotEmpty(t, result.Error)
	assert.FileExists(t, filepath.Join(dir, "llm", "llm_error.json"))
}

func TestOfflineFixture(t *testing.T) {
	fixtures := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "summary.json"),
		[]byte(`{"choices":[{"message":{"role":"assistant","content":"Fixture summary."}}]}`), 0o644))

	dir := t.TempDir()
	s := &Synthesis{
		ArtifactsDir:    dir,
		OfflineFixtures: true,
		FixturesDir:     fixtures,
	}

	result, err := s.Summarize(context.Background(), auditState())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "Fixture summary.", result.Summary)
	assert.FileExists(t, filepath.Join(dir, "llm", "llm_response.json"))
}

func TestOfflineFixtureMissing(t *testing.T) {
	s := &Synthesis{
		ArtifactsDir:    t.TempDir(),
		OfflineFixtures: true,
		FixturesDir:     filepath.Join(t.TempDir(), "nope"),
	}

	result, err := s.Summarize(context.Background(), auditState())
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Equal(t, "offline_fixture_missing", result.Error)
}

func TestEmptySummaryIsError(t *testing.T) {
	fixtures := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "empty.json"),
		[]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`), 0o644))

	s := &Synthesis{
		ArtifactsDir:    t.TempDir(),
		OfflineFixtures: true,
		FixturesDir:     fixtures,
	}

	result, err := s.Summarize(context.Background(), auditState())
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
}
