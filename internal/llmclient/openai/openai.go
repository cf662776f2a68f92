// Package openai adapts an OpenAI-compatible chat completions endpoint to
// the llmclient.Client interface. It works against any provider speaking
// the same wire protocol (a local vLLM/Ollama gateway, OpenAI itself, or a
// compatible hosted model) by pointing BaseURL at it.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/toolrun-ai/toolrund/internal/llmclient"
)

// Config holds the settings needed to reach an OpenAI-compatible endpoint.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the library default (api.openai.com)
	Model   string

	// MaxRetries bounds HTTP-level retries for transient failures; it does
	// not retry on context deadline exceeded.
	MaxRetries int
}

// Client implements llmclient.Client against an OpenAI-compatible API.
type Client struct {
	client *openailib.Client
	model  string
	retries int
}

// New constructs a Client. Returns an error if cfg is missing required
// fields, matching the fail-fast posture used elsewhere in configuration
// loading.
func New(cfg Config) (llmclient.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}

	clientConfig := openailib.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		client:  openailib.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		retries: retries,
	}, nil
}

// Generate implements llmclient.Client.
func (c *Client) Generate(ctx context.Context, messages []llmclient.Message, deadline time.Time) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("openai: no messages to send")
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	req := openailib.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
	}

	var (
		resp    openailib.ChatCompletionResponse
		lastErr error
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("openai: %w", ctx.Err())
		}
		if attempt < c.retries {
			wait := time.Duration(attempt+1) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", fmt.Errorf("openai: %w", ctx.Err())
			}
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("openai: chat completion failed after %d retries: %w", c.retries, lastErr)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []llmclient.Message) []openailib.ChatCompletionMessage {
	out := make([]openailib.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openailib.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return out
}
