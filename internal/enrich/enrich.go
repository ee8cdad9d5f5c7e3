// Package enrich queries an external pattern-intelligence service for
// heuristic matches against the run's static signals. Everything it produces
// is labeled unverified: enrichment output is never evidence and never
// upgrades a finding's confidence.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/augur-audit/augur/internal/state"
)

// Disclaimers attached to every enrichment payload and match.
const (
	ResultDisclaimer = "External enrichment only; requires manual validation."
	MatchDisclaimer  = "External heuristic match; not a proven vulnerability."
)

// remoteResponse is the service's reply shape.
type remoteResponse struct {
	Matches []remoteMatch `json:"matches"`
}

type remoteMatch struct {
	Category   string `json:"category"`
	Label      string `json:"label"`
	Confidence string `json:"confidence,omitempty"`
}

// Booster enriches static signals with pattern matches from a remote service
// or from offline fixtures.
type Booster struct {
	Endpoint     string
	APIKey       string
	HTTPClient   *http.Client
	ArtifactsDir string
	Source       string

	// OfflineFixtures replaces the remote call with a canned response from
	// FixturesDir.
	OfflineFixtures bool
	FixturesDir     string
}

// New returns a booster with the default source name and HTTP client.
func New(endpoint, apiKey, artifactsDir string) *Booster {
	return &Booster{
		Endpoint:     endpoint,
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		ArtifactsDir: artifactsDir,
		Source:       "solodit",
	}
}

// Available reports whether enrichment can run at all.
func (b *Booster) Available() bool {
	return b.OfflineFixtures || b.Endpoint != ""
}

// Enrich builds the enrichment payload for the current state. Heuristic
// matches are derived from static signals; when a remote source (or fixture)
// answers, its matches are appended. The result is persisted as an artifact
// and returned for the state record.
func (b *Booster) Enrich(ctx context.Context, st *state.State) (*state.EnrichmentResult, error) {
	signals := map[string]int{}
	evidenceCount := 0
	if st.StaticScan != nil {
		signals = st.StaticScan.Signals
		evidenceCount = len(st.StaticScan.Evidence)
	}

	matches := heuristicMatches(b.Source, signals, evidenceCount)

	remote, err := b.remoteMatches(ctx, signals)
	if err != nil {
		result := &state.EnrichmentResult{
			Source:     b.Source,
			Status:     "error",
			Reason:     err.Error(),
			Disclaimer: ResultDisclaimer,
		}
		return result, nil
	}
	matches = append(matches, remote...)

	result := &state.EnrichmentResult{
		Source:         b.Source,
		Status:         "success",
		Disclaimer:     ResultDisclaimer,
		PatternMatches: matches,
	}
	if len(matches) == 0 {
		result.Reason = "no_signals"
	}

	artifact, err := b.writeArtifact(result)
	if err != nil {
		return nil, err
	}
	result.ArtifactPaths = []string{artifact}
	return result, nil
}

// heuristicMatches turns non-zero signal counts into unverified matches, in
// sorted category order.
func heuristicMatches(source string, signals map[string]int, evidenceCount int) []state.PatternMatch {
	categories := make([]string, 0, len(signals))
	for category, count := range signals {
		if count > 0 {
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)

	matches := make([]state.PatternMatch, 0, len(categories))
	for _, category := range categories {
		matches = append(matches, state.PatternMatch{
			Category:      category,
			Count:         signals[category],
			EvidenceCount: evidenceCount,
			Label:         "heuristic:" + category,
			Source:        source,
			Status:        "unverified",
			Confidence:    "low",
			Disclaimer:    MatchDisclaimer,
		})
	}
	return matches
}

// remoteMatches asks the configured source for known patterns matching the
// signals. Offline fixture mode reads the first fixture file instead.
func (b *Booster) remoteMatches(ctx context.Context, signals map[string]int) ([]state.PatternMatch, error) {
	var response *remoteResponse
	switch {
	case b.OfflineFixtures:
		fixture, err := b.loadFixture()
		if err != nil {
			return nil, err
		}
		response = fixture
	case b.Endpoint != "":
		resp, err := b.query(ctx, signals)
		if err != nil {
			return nil, err
		}
		response = resp
	default:
		return nil, nil
	}
	if response == nil {
		return nil, nil
	}

	matches := make([]state.PatternMatch, 0, len(response.Matches))
	for _, m := range response.Matches {
		confidence := m.Confidence
		if confidence == "" {
			confidence = "low"
		}
		matches = append(matches, state.PatternMatch{
			Category:   m.Category,
			Label:      m.Label,
			Source:     b.Source,
			Status:     "unverified",
			Confidence: confidence,
			Disclaimer: MatchDisclaimer,
		})
	}
	return matches, nil
}

func (b *Booster) query(ctx context.Context, signals map[string]int) (*remoteResponse, error) {
	body, err := json.Marshal(map[string]any{"signals": signals})
	if err != nil {
		return nil, fmt.Errorf("encode enrichment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrichment service returned %d", resp.StatusCode)
	}
	var payload remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}
	return &payload, nil
}

// loadFixture reads the lexicographically first JSON fixture.
func (b *Booster) loadFixture() (*remoteResponse, error) {
	if b.FixturesDir == "" {
		return nil, fmt.Errorf("offline fixture missing")
	}
	entries, err := os.ReadDir(b.FixturesDir)
	if err != nil {
		return nil, fmt.Errorf("offline fixture missing")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("offline fixture missing")
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(b.FixturesDir, names[0]))
	if err != nil {
		return nil, fmt.Errorf("read enrichment fixture: %w", err)
	}
	var payload remoteResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode enrichment fixture: %w", err)
	}
	return &payload, nil
}

func (b *Booster) writeArtifact(result *state.EnrichmentResult) (string, error) {
	dir := filepath.Join(b.ArtifactsDir, "solodit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create enrichment directory: %w", err)
	}
	path := filepath.Join(dir, "enrichment.json")
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode enrichment artifact: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write enrichment artifact: %w", err)
	}
	return path, nil
}
