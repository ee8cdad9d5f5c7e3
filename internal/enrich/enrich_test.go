package enrich

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

func scanState(signals map[string]int) *state.State {
	return &state.State{
		StaticScan: &state.StaticScanResult{
			Signals:  signals,
			Evidence: []state.EvidenceRef{{Category: "reentrancy", Path: "a.sol"}},
		},
	}
}

func TestAvailability(t *testing.T) {
	assert.False(t, New("", "", t.TempDir()).Available())
	assert.True(t, New("http://localhost:9", "", t.TempDir()).Available())

	b := New("", "", t.TempDir())
	b.OfflineFixtures = true
	assert.True(t, b.Available())
}

func TestHeuristicMatchesFromSignals(t *testing.T) {
	b := New("", "", t.TempDir())
	b.OfflineFixtures = false

	result, err := b.Enrich(context.Background(), scanState(map[string]int{
		"reentrancy":       2,
		"unchecked_return": 0,
		"delegatecall":     1,
	}))
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, ResultDisclaimer, result.Disclaimer)
	require.Len(t, result.PatternMatches, 2, "zero-count signals are dropped")

	// Sorted category order.
	assert.Equal(t, "delegatecall", result.PatternMatches[0].Category)
	assert.Equal(t, "reentrancy", result.PatternMatches[1].Category)
	assert.Equal(t, "heuristic:reentrancy", result.PatternMatches[1].Label)
	assert.Equal(t, "unverified", result.PatternMatches[1].Status)
	assert.Equal(t, "low", result.PatternMatches[1].Confidence)
	assert.Equal(t, 2, result.PatternMatches[1].Count)
	assert.Equal(t, 1, result.PatternMatches[1].EvidenceCount)

	require.Len(t, result.ArtifactPaths, 1)
	assert.FileExists(t, result.ArtifactPaths[0])
}

func TestRemoteMatchesAppended(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"matches":[{"category":"reentrancy","label":"SOL-2023-17","confidence":"medium"}]}`))
	}))
	defer server.Close()

	b := New(server.URL, "secret", t.TempDir())
	result, err := b.Enrich(context.Background(), scanState(map[string]int{"reentrancy": 1}))
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "success", result.Status)
	require.Len(t, result.PatternMatches, 2)
	assert.Equal(t, "SOL-2023-17", result.PatternMatches[1].Label)
	assert.Equal(t, "medium", result.PatternMatches[1].Confidence)
	assert.Equal(t, MatchDisclaimer, result.PatternMatches[1].Disclaimer)
}

func TestRemoteErrorBecomesErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	b := New(server.URL, "", t.TempDir())
	result, err := b.Enrich(context.Background(), scanState(map[string]int{"reentrancy": 1}))
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Contains(t, result.Reason, "502")
}

func TestOfflineFixture(t *testing.T) {
	fixtures := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "solodit.json"),
		[]byte(`{"matches":[{"category":"delegatecall","label":"SOL-2022-04"}]}`), 0o644))

	b := New("", "", t.TempDir())
	b.OfflineFixtures = true
	b.FixturesDir = fixtures

	result, err := b.Enrich(context.Background(), scanState(nil))
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	require.Len(t, result.PatternMatches, 1)
	assert.Equal(t, "SOL-2022-04", result.PatternMatches[0].Label)
	assert.Equal(t, "low", result.PatternMatches[0].Confidence, "missing confidence defaults low")
}

func TestOfflineFixtureMissing(t *testing.T) {
	b := New("", "", t.TempDir())
	b.OfflineFixtures = true
	b.FixturesDir = filepath.Join(t.TempDir(), "nope")

	result, err := b.Enrich(context.Background(), scanState(map[string]int{"reentrancy": 1}))
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Equal(t, "offline fixture missing", result.Reason)
}

func TestNoSignalsReason(t *testing.T) {
	b := New("", "", t.TempDir())
	result, err := b.Enrich(context.Background(), &state.State{})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "no_signals", result.Reason)
	assert.Empty(t, result.PatternMatches)
}
