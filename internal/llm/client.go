// Package llm provides chat completion clients for answer generation and
// scoring.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProviderError reports a failed chat completion call.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm provider: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm provider: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a retry could plausibly succeed.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatClient generates a completion for a sequence of chat messages.
type ChatClient interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// Config holds chat client configuration.
type Config struct {
	APIKey  string
	Model   string // default model when the request does not override it
	BaseURL string // Default: https://api.openai.com/v1
	Timeout time.Duration
}

// NewClient creates a new chat completion client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}, nil
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete performs a single chat completion call and returns the assistant
// message content.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chatCompletionResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return "", &ProviderError{StatusCode: resp.StatusCode, Message: errResp.Error.Message}
		}
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &ProviderError{Message: "unmarshal response", Err: err}
	}
	if len(chatResp.Choices) == 0 {
		return "", &ProviderError{Message: "no choices returned"}
	}

	return chatResp.Choices[0].Message.Content, nil
}

// MockClient returns scripted completions for testing. Responses are
// consumed in order; when the script runs out the last entry repeats.
type MockClient struct {
	Responses []string
	Requests  []Request
	Fail      error
	calls     int
}

// Complete records the request and replays the script.
func (c *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	c.Requests = append(c.Requests, req)
	if c.Fail != nil {
		return "", c.Fail
	}
	if len(c.Responses) == 0 {
		return "", nil
	}
	idx := c.calls
	if idx >= len(c.Responses) {
		idx = len(c.Responses) - 1
	}
	c.calls++
	return c.Responses[idx], nil
}

// Ensure implementations satisfy interface.
var (
	_ ChatClient = (*Client)(nil)
	_ ChatClient = (*MockClient)(nil)
)
