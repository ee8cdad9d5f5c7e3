// Package llm talks to an OpenAI-compatible chat endpoint (vLLM, OpenAI, or
// any proxy speaking the same API) to synthesize audit findings into prose.
// Synthesis output is heuristic narrative, never evidence.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the endpoint answers without choices.
var ErrEmptyResponse = errors.New("chat completion returned no choices")

// Client wraps an OpenAI-compatible endpoint.
type Client struct {
	api   *openai.Client
	Model string
}

// NewClient builds a client for the given base URL and model. The base URL
// is the server root; the /v1 suffix is appended here.
func NewClient(baseURL, model, apiKey string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	}
	return &Client{api: openai.NewClientWithConfig(cfg), Model: model}
}

// Complete sends the chat request and returns the raw response.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: messages,
	})
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return resp, ErrEmptyResponse
	}
	return resp, nil
}
