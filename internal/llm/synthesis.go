package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/augur-audit/augur/internal/state"
)

const systemPrompt = "Summarize the audit findings."

// Synthesis produces the narrative findings summary. With a nil client and
// no fixtures it reports itself unavailable and the stage is skipped.
type Synthesis struct {
	Client       *Client
	ArtifactsDir string

	// OfflineFixtures answers from a canned response instead of the network.
	OfflineFixtures bool
	FixturesDir     string
}

// Available reports whether synthesis can run, online or offline.
func (s *Synthesis) Available() bool {
	return s.OfflineFixtures || s.Client != nil
}

// Summarize sends the current state to the backend and returns the
// synthesis result. The request, response, and any error are persisted as
// artifacts so the exchange is auditable.
func (s *Synthesis) Summarize(ctx context.Context, st *state.State) (*state.SynthesisResult, error) {
	dir := filepath.Join(s.ArtifactsDir, "llm")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create llm artifacts directory: %w", err)
	}
	requestPath := filepath.Join(dir, "llm_request.json")
	responsePath := filepath.Join(dir, "llm_response.json")
	errorPath := filepath.Join(dir, "llm_error.json")

	contextJSON, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode synthesis context: %w", err)
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: string(contextJSON)},
	}
	if err := writeJSON(requestPath, map[string]any{
		"model":    s.modelName(),
		"messages": messages,
	}); err != nil {
		return nil, err
	}

	if s.OfflineFixtures {
		return s.summarizeFromFixture(requestPath, responsePath, errorPath)
	}
	if s.Client == nil {
		return &state.SynthesisResult{Status: "unavailable"}, nil
	}

	resp, err := s.Client.Complete(ctx, messages)
	if err != nil {
		if writeErr := writeJSON(errorPath, map[string]string{"error": err.Error()}); writeErr != nil {
			return nil, writeErr
		}
		return &state.SynthesisResult{
			Status:        "error",
			Error:         err.Error(),
			ArtifactPaths: []string{requestPath, errorPath},
		}, nil
	}
	if err := writeJSON(responsePath, resp); err != nil {
		return nil, err
	}

	return resultFromResponse(resp, requestPath, responsePath), nil
}

func (s *Synthesis) summarizeFromFixture(requestPath, responsePath, errorPath string) (*state.SynthesisResult, error) {
	resp, ok := s.loadFixture()
	if !ok {
		if err := writeJSON(errorPath, map[string]string{"error": "offline_fixture_missing"}); err != nil {
			return nil, err
		}
		return &state.SynthesisResult{
			Status:        "error",
			Error:         "offline_fixture_missing",
			ArtifactPaths: []string{requestPath, errorPath},
		}, nil
	}
	if err := writeJSON(responsePath, resp); err != nil {
		return nil, err
	}
	return resultFromResponse(resp, requestPath, responsePath), nil
}

func resultFromResponse(resp openai.ChatCompletionResponse, requestPath, responsePath string) *state.SynthesisResult {
	summary := ""
	if len(resp.Choices) > 0 {
		summary = resp.Choices[0].Message.Content
	}
	status := "success"
	if summary == "" {
		status = "error"
	}
	return &state.SynthesisResult{
		Status:        status,
		Summary:       summary,
		ArtifactPaths: []string{requestPath, responsePath},
	}
}

func (s *Synthesis) modelName() string {
	if s.Client != nil && s.Client.Model != "" {
		return s.Client.Model
	}
	return "fixture-model"
}

// loadFixture reads the lexicographically first JSON fixture as a chat
// response.
func (s *Synthesis) loadFixture() (openai.ChatCompletionResponse, bool) {
	var resp openai.ChatCompletionResponse
	if s.FixturesDir == "" {
		return resp, false
	}
	entries, err := os.ReadDir(s.FixturesDir)
	if err != nil {
		return resp, false
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return resp, false
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(s.FixturesDir, names[0]))
	if err != nil {
		return resp, false
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, false
	}
	return resp, true
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
