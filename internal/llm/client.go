// Package llm provides the language model generation client.
//
// The client speaks the OpenAI-compatible chat completions API exposed by
// DashScope for Qwen models. Whatever the endpoint returns, Generate
// normalizes it into plain text for the caller.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNotConfigured indicates no endpoint or credential is configured.
	// Callers present different fallback messaging for this than for a
	// failure during the call itself.
	ErrNotConfigured = errors.New("language model not configured")

	// ErrGenerationFailed indicates a transport or remote failure during
	// the generation call.
	ErrGenerationFailed = errors.New("generation failed")
)

// DefaultBaseURL is the default DashScope OpenAI-compatible endpoint.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// Config holds generation client configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string

	// APIKey authenticates requests. Empty means the client is not
	// configured and Generate returns ErrNotConfigured.
	APIKey string

	// Model is the model identifier sent with each request.
	Model string
}

// Client sends assembled prompts to the language model endpoint.
type Client struct {
	config Config
	client *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.client = httpClient
	}
}

// NewClient creates a generation client.
func NewClient(config Config, opts ...Option) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = "qwen-plus"
	}

	c := &Client{
		config: config,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the response body Generate cares about.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends the prompt and returns the response normalized to plain
// text. If the body is not the expected chat completion shape, the raw body
// is returned as a string so the caller always receives text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.config.APIKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrGenerationFailed, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, httpResp.StatusCode, string(respBody))
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err == nil &&
		len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		return resp.Choices[0].Message.Content, nil
	}

	// Unexpected shape: hand the caller the serialized body rather than
	// failing, the contract is text out.
	return string(respBody), nil
}
