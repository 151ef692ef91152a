// Package embedding provides embedding generation services.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// ValidationError reports a request the provider was never asked to serve:
// empty input, an oversized batch, or a blank text. It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("embedding validation: %s", e.Reason)
}

// Retryable always reports false for validation errors.
func (e *ValidationError) Retryable() bool { return false }

// ProviderError reports a failed call to the embedding provider. Transport
// failures and 5xx/429 responses are retryable; auth and bad-request
// responses are not.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding provider: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding provider: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a retry could plausibly succeed.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == 0 {
		return true // transport failure
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client provides embedding generation using an OpenAI-compatible API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	dimension    int
	maxBatchSize int
}

// Config holds embedding client configuration.
type Config struct {
	APIKey       string
	Model        string // e.g., "text-embedding-3-small"
	BaseURL      string // Default: https://api.openai.com/v1
	Dimension    int    // Default: 1536
	MaxBatchSize int    // Default: 100
	Timeout      time.Duration
}

// NewClient creates a new embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}

	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		dimension:    cfg.Dimension,
		maxBatchSize: cfg.MaxBatchSize,
	}, nil
}

// EmbeddingRequest represents a request to generate embeddings.
type EmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// EmbeddingResponse represents the API response.
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  EmbeddingUsage  `json:"usage"`
	Error  *EmbeddingError `json:"error,omitempty"`
}

// EmbeddingData contains the embedding vector.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingUsage contains token usage information.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingError represents an API error.
type EmbeddingError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Embed generates embeddings for the given texts. The call makes exactly one
// provider request; callers that want retries wrap it themselves.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &ValidationError{Reason: "empty input"}
	}
	if len(texts) > c.maxBatchSize {
		return nil, &ValidationError{Reason: fmt.Sprintf("batch of %d exceeds limit %d", len(texts), c.maxBatchSize)}
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("blank text at index %d", i)}
		}
	}

	reqBody := EmbeddingRequest{
		Input: texts,
		Model: c.model,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp EmbeddingResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
			return nil, &ProviderError{StatusCode: resp.StatusCode, Message: errResp.Error.Message}
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var embResp EmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, &ProviderError{Message: "unmarshal response", Err: err}
	}
	if len(embResp.Data) != len(texts) {
		return nil, &ProviderError{Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(embResp.Data))}
	}

	// Sort by index and extract embeddings
	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
			// Update dimension from actual API response
			if len(data.Embedding) > 0 && c.dimension != len(data.Embedding) {
				c.dimension = len(data.Embedding)
			}
		}
	}

	return embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &ProviderError{Message: "no embedding returned"}
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for texts in provider-sized batches.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 || batchSize > c.maxBatchSize {
		batchSize = c.maxBatchSize
	}

	embeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		batchEmbeddings, err := c.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}

		embeddings = append(embeddings, batchEmbeddings...)
	}

	return embeddings, nil
}

// Model returns the model being used.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the embedding dimension.
func (c *Client) Dimension() int {
	return c.dimension
}

// MockClient provides a deterministic embedding client for testing. Vectors
// are bag-of-words token buckets, so texts sharing vocabulary come out with
// higher cosine similarity than unrelated texts.
type MockClient struct {
	dimension int
}

// NewMockClient creates a mock client.
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 256
	}
	return &MockClient{dimension: dimension}
}

// Embed generates deterministic embeddings.
func (c *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &ValidationError{Reason: "empty input"}
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, c.dimension)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[int(h.Sum32())%c.dimension] += 1.0
		}
		embeddings[i] = normalize(vec)
	}
	return embeddings, nil
}

// EmbedSingle generates a deterministic embedding for a single text.
func (c *MockClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Model returns the mock model name.
func (c *MockClient) Model() string {
	return "mock-embedding-model"
}

// Dimension returns the embedding dimension.
func (c *MockClient) Dimension() int {
	return c.dimension
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

// Embedder defines the interface for embedding generation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// Ensure implementations satisfy interface.
var (
	_ Embedder = (*Client)(nil)
	_ Embedder = (*MockClient)(nil)
)
