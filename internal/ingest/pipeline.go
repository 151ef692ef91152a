package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// ProgressFunc receives indexing progress in [0, 1] with a stage label.
type ProgressFunc func(progress float64, stage string)

// Pipeline runs a document from raw bytes to indexed, embedded chunks.
type Pipeline struct {
	logger    *observability.Logger
	config    PipelineConfig
	repos     *storage.Repositories
	extractor TextExtractor
	chunker   *Chunker
	index     retrieval.Index
}

// PipelineConfig holds pipeline configuration.
type PipelineConfig struct {
	TargetTokens  int
	OverlapTokens int
	MaxChunkChars int
	EmbedBatch    int // chunk texts per embedding call, default 50
}

// IndexRequest asks the pipeline to extract and index an already registered
// document.
type IndexRequest struct {
	TenantID  uuid.UUID
	ProjectID uuid.UUID
	Document  *storage.Document
	Content   []byte
	Embedder  embedding.Embedder
	Progress  ProgressFunc
}

// IndexResult summarizes a completed indexing run.
type IndexResult struct {
	DocumentID  uuid.UUID
	ChunkCount  int
	PageCount   int
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(
	logger *observability.Logger,
	cfg PipelineConfig,
	repos *storage.Repositories,
	index retrieval.Index,
) *Pipeline {
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 50
	}
	return &Pipeline{
		logger:    logger,
		config:    cfg,
		repos:     repos,
		extractor: NewTextFileExtractor(),
		chunker: NewChunker(ChunkerConfig{
			TargetTokens:  cfg.TargetTokens,
			OverlapTokens: cfg.OverlapTokens,
			MaxChunkChars: cfg.MaxChunkChars,
		}),
		index: index,
	}
}

// ContentHash computes the dedup hash used when registering documents.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Index processes the document and leaves it in status completed, or failed
// with the error recorded. Cancellation between steps also lands in failed
// so the document never sticks in processing.
func (p *Pipeline) Index(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	startTime := time.Now()
	doc := req.Document

	logger := p.logger.WithTenant(req.TenantID.String()).WithProject(req.ProjectID.String())
	logger.Info().
		Str("document_id", doc.ID.String()).
		Str("filename", doc.Filename).
		Msg("Starting document indexing")

	if err := p.repos.Documents.UpdateStatus(ctx, doc.ID, storage.DocumentStatusProcessing, 0, nil); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	result, err := p.run(ctx, req)
	if err != nil {
		message := err.Error()
		// best effort; the original error is what callers need to see
		if updateErr := p.repos.Documents.UpdateStatus(context.WithoutCancel(ctx), doc.ID, storage.DocumentStatusFailed, 0, &message); updateErr != nil {
			logger.Error().Err(updateErr).Str("document_id", doc.ID.String()).Msg("Failed to record indexing failure")
		}
		return nil, err
	}

	if err := p.repos.Documents.UpdateStatus(ctx, doc.ID, storage.DocumentStatusCompleted, result.ChunkCount, nil); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	result.StartedAt = startTime
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(startTime)

	logger.Info().
		Str("document_id", doc.ID.String()).
		Int("chunks", result.ChunkCount).
		Int("pages", result.PageCount).
		Dur("duration", result.Duration).
		Msg("Document indexing completed")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	doc := req.Document
	report := req.Progress
	if report == nil {
		report = func(float64, string) {}
	}

	report(0.05, "extracting")
	extracted, err := p.extractor.Extract(doc.Filename, req.Content)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", doc.Filename, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(0.15, "chunking")
	spans := p.chunker.Chunk(extracted)
	if len(spans) == 0 {
		return nil, fmt.Errorf("document %s produced no chunks", doc.Filename)
	}

	chunks := make([]*storage.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = &storage.Chunk{
			DocumentID: doc.ID,
			TenantID:   req.TenantID,
			ProjectID:  req.ProjectID,
			ChunkIndex: span.Index,
			Text:       span.Text,
			PageNumber: span.PageNumber,
			StartChar:  span.StartChar,
			EndChar:    span.EndChar,
			TokenCount: span.TokenCount,
		}
	}

	// Embedding dominates the run; spread its progress over most of the bar.
	for i := 0; i < len(chunks); i += p.config.EmbedBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := i + p.config.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			texts[j-i] = chunks[j].Text
		}
		vectors, err := req.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", i, end, err)
		}
		for j, vector := range vectors {
			chunks[i+j].Embedding = vector
		}
		report(0.15+0.6*float64(end)/float64(len(chunks)), "embedding")
	}

	report(0.8, "persisting")
	if err := p.repos.Chunks.BulkCreate(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	report(0.9, "indexing")
	ns := retrieval.Namespace{TenantID: req.TenantID, ProjectID: req.ProjectID}
	entries := make([]retrieval.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = retrieval.Entry{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Vector:     chunk.Embedding,
		}
	}
	if err := p.index.Upsert(ctx, ns, entries); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}

	report(1.0, "done")
	return &IndexResult{
		DocumentID: doc.ID,
		ChunkCount: len(chunks),
		PageCount:  len(extracted.Pages),
	}, nil
}

// RebuildNamespace reloads a project's stored chunk vectors into the index,
// used on startup since the index itself is in memory.
func (p *Pipeline) RebuildNamespace(ctx context.Context, tenantID, projectID uuid.UUID) (int, error) {
	chunks, err := p.repos.Chunks.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}

	ns := retrieval.Namespace{TenantID: tenantID, ProjectID: projectID}
	var entries []retrieval.Entry
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		entries = append(entries, retrieval.Entry{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Vector:     chunk.Embedding,
		})
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := p.index.Upsert(ctx, ns, entries); err != nil {
		return 0, fmt.Errorf("rebuild namespace %s: %w", ns, err)
	}
	return len(entries), nil
}

// RemoveDocument drops a document's vectors from the index after its rows
// are gone.
func (p *Pipeline) RemoveDocument(ctx context.Context, tenantID, projectID, documentID uuid.UUID) error {
	ns := retrieval.Namespace{TenantID: tenantID, ProjectID: projectID}
	return p.index.DeleteDocument(ctx, ns, documentID)
}
