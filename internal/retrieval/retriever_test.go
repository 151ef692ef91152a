package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
)

func TestRetriever_EmptyCorpus(t *testing.T) {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	retriever := NewRetriever(logger, NewMemoryIndex(), nil, 5)

	// The empty-corpus check fires before the question is ever embedded,
	// so no embedder or chunk store is needed.
	chunks, err := retriever.Retrieve(context.Background(), testNamespace(), nil, "What is the uptime SLA?")

	assert.ErrorIs(t, err, ErrEmptyCorpus)
	assert.Nil(t, chunks)
}

func TestRetriever_DefaultTopK(t *testing.T) {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})

	retriever := NewRetriever(logger, NewMemoryIndex(), nil, 0)
	assert.Equal(t, 5, retriever.topK)

	retriever = NewRetriever(logger, NewMemoryIndex(), nil, 12)
	assert.Equal(t, 12, retriever.topK)
}
