package generation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
}

func retrievedChunks(texts ...string) []retrieval.RetrievedChunk {
	chunks := make([]retrieval.RetrievedChunk, len(texts))
	for i, text := range texts {
		chunks[i] = retrieval.RetrievedChunk{
			Chunk:      &storage.Chunk{ID: uuid.New(), Text: text},
			Similarity: 0.9 - float64(i)*0.1,
		}
	}
	return chunks
}

func TestCitationLinker_LinksMarkersToChunks(t *testing.T) {
	linker := NewCitationLinker(testLogger())
	retrieved := retrievedChunks("uptime is 99.9%", "support is 24/7", "data in EU region")

	citations := linker.Link("Uptime is 99.9% [1] and support runs around the clock [2].", retrieved)

	require.Len(t, citations, 2)
	assert.Equal(t, 1, citations[0].Marker)
	assert.Equal(t, retrieved[0].Chunk.ID, citations[0].ChunkID)
	assert.Equal(t, "uptime is 99.9%", citations[0].Excerpt)
	assert.InDelta(t, 0.9, citations[0].Similarity, 1e-9)
	assert.Equal(t, 2, citations[1].Marker)
	assert.Equal(t, retrieved[1].Chunk.ID, citations[1].ChunkID)
}

func TestCitationLinker_FirstOccurrenceOrderAndDedup(t *testing.T) {
	linker := NewCitationLinker(testLogger())
	retrieved := retrievedChunks("a", "b", "c")

	citations := linker.Link("Claim [3]. Another [1]. Repeat [3] and again [1].", retrieved)

	require.Len(t, citations, 2)
	assert.Equal(t, 3, citations[0].Marker)
	assert.Equal(t, 1, citations[0].CitationOrder)
	assert.Equal(t, 1, citations[1].Marker)
	assert.Equal(t, 2, citations[1].CitationOrder)
}

func TestCitationLinker_OrderDenseRegardlessOfMarkerValue(t *testing.T) {
	linker := NewCitationLinker(testLogger())
	retrieved := retrievedChunks("a", "b", "c")

	citations := linker.Link("Only the last source matters [3].", retrieved)

	require.Len(t, citations, 1)
	assert.Equal(t, 3, citations[0].Marker)
	assert.Equal(t, 1, citations[0].CitationOrder)
}

func TestCitationLinker_DropsHallucinatedMarkers(t *testing.T) {
	linker := NewCitationLinker(testLogger())
	retrieved := retrievedChunks("only", "two")

	citations := linker.Link("Supported [1], made up [5], zero [0], fine [2].", retrieved)

	require.Len(t, citations, 2)
	assert.Equal(t, 1, citations[0].Marker)
	assert.Equal(t, 2, citations[1].Marker)
	// dropped markers must not leave holes in the order
	assert.Equal(t, 1, citations[0].CitationOrder)
	assert.Equal(t, 2, citations[1].CitationOrder)
}

func TestCitationLinker_NoMarkers(t *testing.T) {
	linker := NewCitationLinker(testLogger())

	citations := linker.Link("An answer with no citations at all.", retrievedChunks("a"))

	assert.Empty(t, citations)
}

func TestCitationLinker_ExcerptTruncated(t *testing.T) {
	linker := NewCitationLinker(testLogger())
	long := strings.Repeat("securely stored ", 50)
	retrieved := retrievedChunks(long)

	citations := linker.Link("See [1].", retrieved)

	require.Len(t, citations, 1)
	assert.True(t, strings.HasSuffix(citations[0].Excerpt, "..."))
	assert.LessOrEqual(t, len(citations[0].Excerpt), excerptLimit+3)
}
