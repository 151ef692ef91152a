package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestClientComplete(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Yes, data is encrypted at rest [1]."}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: server.URL})
	require.NoError(t, err)

	content, err := client.Complete(context.Background(), Request{
		Messages:    []Message{{Role: "user", Content: "Is data encrypted at rest?"}},
		Temperature: 0.1,
		MaxTokens:   400,
	})
	require.NoError(t, err)

	assert.Equal(t, "Yes, data is encrypted at rest [1].", content)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 400, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestClientCompleteModelOverride(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gotModel)
}

func TestClientCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid api key", "type": "auth_error"},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "sk-bad", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
	assert.Contains(t, provErr.Message, "invalid api key")
	assert.False(t, provErr.Retryable())
}

func TestClientCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{name: "transport failure", statusCode: 0, want: true},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, want: true},
		{name: "server error", statusCode: http.StatusInternalServerError, want: true},
		{name: "bad gateway", statusCode: http.StatusBadGateway, want: true},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, want: false},
		{name: "bad request", statusCode: http.StatusBadRequest, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &ProviderError{StatusCode: tt.statusCode, Message: "boom"}
			assert.Equal(t, tt.want, err.Retryable())
		})
	}
}

func TestMockClientScript(t *testing.T) {
	mock := &MockClient{Responses: []string{"first", "second"}}

	for _, want := range []string{"first", "second", "second"} {
		got, err := mock.Complete(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Len(t, mock.Requests, 3)
}

func TestMockClientFail(t *testing.T) {
	boom := errors.New("boom")
	mock := &MockClient{Fail: boom}

	_, err := mock.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
}
