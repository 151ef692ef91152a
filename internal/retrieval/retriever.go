package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// ErrEmptyCorpus reports a retrieval attempt against a project with no
// indexed chunks at all.
var ErrEmptyCorpus = errors.New("no documents indexed for project")

// RetrievedChunk pairs a stored chunk with its query similarity. The slice
// position (0-based) is what answer prompts cite as [position+1].
type RetrievedChunk struct {
	Chunk      *storage.Chunk
	Similarity float64
}

// Retriever embeds a question once and resolves the nearest chunks.
type Retriever struct {
	logger *observability.Logger
	index  Index
	chunks *storage.ChunkRepository
	topK   int
}

// NewRetriever creates a retriever with the given default result count.
func NewRetriever(logger *observability.Logger, index Index, chunks *storage.ChunkRepository, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		logger: logger,
		index:  index,
		chunks: chunks,
		topK:   topK,
	}
}

// Retrieve returns up to topK chunks relevant to the question, most similar
// first. A project with nothing indexed reports ErrEmptyCorpus rather than
// an empty result, so callers can distinguish "no match" from "no corpus".
func (r *Retriever) Retrieve(ctx context.Context, ns Namespace, embedder embedding.Embedder, question string) ([]RetrievedChunk, error) {
	count, err := r.index.Count(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("count namespace %s: %w", ns, err)
	}
	if count == 0 {
		return nil, ErrEmptyCorpus
	}

	vector, err := embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	matches, err := r.index.Query(ctx, ns, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", ns, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(matches))
	for i, match := range matches {
		ids[i] = match.ChunkID
	}
	chunks, err := r.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks: %w", err)
	}
	byID := make(map[uuid.UUID]*storage.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	retrieved := make([]RetrievedChunk, 0, len(matches))
	for _, match := range matches {
		chunk, ok := byID[match.ChunkID]
		if !ok {
			// index and store drifted apart; skip and keep going
			r.logger.Warn().
				Str("chunk_id", match.ChunkID.String()).
				Str("namespace", ns.String()).
				Msg("Indexed chunk missing from storage")
			continue
		}
		retrieved = append(retrieved, RetrievedChunk{Chunk: chunk, Similarity: match.Similarity})
	}
	return retrieved, nil
}
