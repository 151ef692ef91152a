package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

type pipelineFixture struct {
	pipeline *Pipeline
	repos    *storage.Repositories
	index    *retrieval.MemoryIndex
	tenant   *storage.Tenant
	project  *storage.Project
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.EnsureSchema(ctx, db))
	repos := storage.NewRepositories(db)

	tenant := &storage.Tenant{Name: "Acme", Slug: "acme"}
	require.NoError(t, repos.Tenants.Create(ctx, tenant))
	project := &storage.Project{TenantID: tenant.ID, Name: "DDQ"}
	require.NoError(t, repos.Projects.Create(ctx, project))

	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	index := retrieval.NewMemoryIndex()
	pipeline := NewPipeline(logger, PipelineConfig{TargetTokens: 40, OverlapTokens: 8}, repos, index)

	return &pipelineFixture{pipeline: pipeline, repos: repos, index: index, tenant: tenant, project: project}
}

func (f *pipelineFixture) registerDocument(t *testing.T, filename string, content []byte) *storage.Document {
	t.Helper()
	doc := &storage.Document{
		TenantID:    f.tenant.ID,
		ProjectID:   f.project.ID,
		Filename:    filename,
		ContentType: "text/markdown",
		SizeBytes:   int64(len(content)),
		ContentHash: ContentHash(content),
	}
	require.NoError(t, f.repos.Documents.Create(context.Background(), doc))
	return doc
}

func securityPolicy() []byte {
	var b strings.Builder
	b.WriteString("## Page 1\n")
	b.WriteString("All customer data is encrypted at rest using AES-256. ")
	b.WriteString(strings.Repeat("Encryption keys are managed in a hardware security module and rotated every 90 days. ", 6))
	b.WriteString("\n## Page 2\n")
	b.WriteString(strings.Repeat("Backups are taken nightly, encrypted, and retained for 35 days in a separate region. ", 6))
	return []byte(b.String())
}

func TestPipelineIndexEndToEnd(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	content := securityPolicy()
	doc := f.registerDocument(t, "security-policy.md", content)

	var stages []string
	var lastProgress float64
	result, err := f.pipeline.Index(ctx, IndexRequest{
		TenantID:  f.tenant.ID,
		ProjectID: f.project.ID,
		Document:  doc,
		Content:   content,
		Embedder:  embedding.NewMockClient(64),
		Progress: func(progress float64, stage string) {
			assert.GreaterOrEqual(t, progress, lastProgress, "progress must not move backwards")
			lastProgress = progress
			stages = append(stages, stage)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, doc.ID, result.DocumentID)
	assert.Equal(t, 2, result.PageCount)
	assert.Greater(t, result.ChunkCount, 1)
	assert.Equal(t, 1.0, lastProgress)
	assert.Contains(t, stages, "extracting")
	assert.Contains(t, stages, "embedding")
	assert.Contains(t, stages, "done")

	// Document lands in completed with the chunk count recorded.
	stored, err := f.repos.Documents.GetByID(ctx, f.tenant.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.DocumentStatusCompleted, stored.Status)
	assert.Equal(t, result.ChunkCount, stored.ChunkCount)

	// Chunks are persisted with embeddings and mirrored into the index.
	chunks, err := f.repos.Chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, result.ChunkCount)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.Embedding)
	}

	ns := retrieval.Namespace{TenantID: f.tenant.ID, ProjectID: f.project.ID}
	count, err := f.index.Count(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, count)
}

func TestPipelineIndexUnsupportedType(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	content := []byte("binary payload")
	doc := f.registerDocument(t, "report.pdf", content)

	_, err := f.pipeline.Index(ctx, IndexRequest{
		TenantID:  f.tenant.ID,
		ProjectID: f.project.ID,
		Document:  doc,
		Content:   content,
		Embedder:  embedding.NewMockClient(64),
	})
	require.Error(t, err)

	// Failure is recorded on the document so it never sticks in processing.
	stored, getErr := f.repos.Documents.GetByID(ctx, f.tenant.ID, doc.ID)
	require.NoError(t, getErr)
	assert.Equal(t, storage.DocumentStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "unsupported file type")
}

func TestPipelineIndexCanceled(t *testing.T) {
	f := newPipelineFixture(t)

	content := securityPolicy()
	doc := f.registerDocument(t, "security-policy.md", content)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Index(ctx, IndexRequest{
		TenantID:  f.tenant.ID,
		ProjectID: f.project.ID,
		Document:  doc,
		Content:   content,
		Embedder:  embedding.NewMockClient(64),
	})
	require.Error(t, err)
}

func TestPipelineRebuildNamespace(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	content := securityPolicy()
	doc := f.registerDocument(t, "security-policy.md", content)

	result, err := f.pipeline.Index(ctx, IndexRequest{
		TenantID:  f.tenant.ID,
		ProjectID: f.project.ID,
		Document:  doc,
		Content:   content,
		Embedder:  embedding.NewMockClient(64),
	})
	require.NoError(t, err)

	// A fresh index starts empty; rebuild restores it from stored chunks.
	fresh := retrieval.NewMemoryIndex()
	f.pipeline.index = fresh

	loaded, err := f.pipeline.RebuildNamespace(ctx, f.tenant.ID, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, loaded)

	ns := retrieval.Namespace{TenantID: f.tenant.ID, ProjectID: f.project.ID}
	count, err := fresh.Count(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, count)
}

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash([]byte("same content"))
	b := ContentHash([]byte("same content"))
	c := ContentHash([]byte("different content"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
