package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// TestPostgresRepositoryRoundtrip exercises the full corpus data model on a
// real PostgreSQL instance: tenant, project, document, chunks, question,
// answer, citations, and version history.
func TestPostgresRepositoryRoundtrip(t *testing.T) {
	skipUnlessIntegration(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	db := setup.OpenDatabase(t)
	repos := storage.NewRepositories(db)
	ctx := context.Background()

	tenant := &storage.Tenant{Name: "Acme Corp", Slug: "acme"}
	require.NoError(t, repos.Tenants.Create(ctx, tenant))

	project := &storage.Project{TenantID: tenant.ID, Name: "Vendor DDQ 2026"}
	require.NoError(t, repos.Projects.Create(ctx, project))

	document := &storage.Document{
		TenantID:    tenant.ID,
		ProjectID:   project.ID,
		Filename:    "security-whitepaper.md",
		ContentType: "text/markdown",
		SizeBytes:   2048,
		ContentHash: "sha256-" + uuid.NewString(),
	}
	require.NoError(t, repos.Documents.Create(ctx, document))

	chunks := []*storage.Chunk{
		{
			DocumentID: document.ID,
			TenantID:   tenant.ID,
			ProjectID:  project.ID,
			ChunkIndex: 0,
			Text:       "All customer data is encrypted at rest using AES-256.",
			PageNumber: 1,
			TokenCount: 10,
			Embedding:  []float32{0.12, 0.34, 0.56},
		},
		{
			DocumentID: document.ID,
			TenantID:   tenant.ID,
			ProjectID:  project.ID,
			ChunkIndex: 1,
			Text:       "Encryption keys are rotated every 90 days.",
			PageNumber: 2,
			TokenCount: 8,
			Embedding:  []float32{0.21, 0.43, 0.65},
		},
	}
	require.NoError(t, repos.Chunks.BulkCreate(ctx, chunks))
	require.NoError(t, repos.Documents.UpdateStatus(ctx, document.ID, storage.DocumentStatusCompleted, len(chunks), nil))

	// Embeddings survive the TEXT column roundtrip.
	got, err := repos.Chunks.GetByID(ctx, chunks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.12, 0.34, 0.56}, got.Embedding)

	namespaces, err := repos.Chunks.ListNamespaces(ctx)
	require.NoError(t, err)
	require.Len(t, namespaces, 1)
	assert.Equal(t, tenant.ID, namespaces[0][0])
	assert.Equal(t, project.ID, namespaces[0][1])

	question := &storage.Question{
		TenantID:  tenant.ID,
		ProjectID: project.ID,
		Text:      "How is data encrypted at rest?",
		Number:    1,
	}
	require.NoError(t, repos.Questions.Create(ctx, question))

	answer := &storage.Answer{
		QuestionID:        question.ID,
		TenantID:          tenant.ID,
		Text:              "Data is encrypted at rest with AES-256 [1]; keys rotate every 90 days [2].",
		ConfidenceOverall: 0.87,
	}
	require.NoError(t, repos.Answers.Create(ctx, answer))
	assert.Equal(t, storage.AnswerStatusPendingReview, answer.Status)
	assert.Equal(t, 1, answer.Version)

	// [2] cited before [1]: reads come back in first-occurrence order
	citations := []*storage.Citation{
		{AnswerID: answer.ID, ChunkID: chunks[1].ID, Marker: 2, CitationOrder: 1, Excerpt: "rotated every 90 days", Similarity: 0.84},
		{AnswerID: answer.ID, ChunkID: chunks[0].ID, Marker: 1, CitationOrder: 2, Excerpt: "encrypted at rest using AES-256", Similarity: 0.91},
	}
	require.NoError(t, repos.Citations.BulkCreate(ctx, citations))

	detailed, err := repos.Citations.ListByAnswer(ctx, answer.ID)
	require.NoError(t, err)
	require.Len(t, detailed, 2)
	assert.Equal(t, 2, detailed[0].Marker)
	assert.Equal(t, 1, detailed[1].Marker)
	assert.Equal(t, document.ID, detailed[0].DocumentID)
	assert.Equal(t, "security-whitepaper.md", detailed[0].Filename)
	assert.Equal(t, 2, detailed[0].PageNumber)
	assert.Equal(t, 1, detailed[1].PageNumber)
}

// TestPostgresDocumentConstraints verifies the duplicate-content and
// citation-guard rules hold under the real database.
func TestPostgresDocumentConstraints(t *testing.T) {
	skipUnlessIntegration(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	db := setup.OpenDatabase(t)
	repos := storage.NewRepositories(db)
	ctx := context.Background()

	tenant := &storage.Tenant{Name: "Acme Corp", Slug: "acme"}
	require.NoError(t, repos.Tenants.Create(ctx, tenant))
	project := &storage.Project{TenantID: tenant.ID, Name: "DDQ"}
	require.NoError(t, repos.Projects.Create(ctx, project))

	original := &storage.Document{
		TenantID:    tenant.ID,
		ProjectID:   project.ID,
		Filename:    "policy.txt",
		ContentType: "text/plain",
		ContentHash: "same-hash",
	}
	require.NoError(t, repos.Documents.Create(ctx, original))

	dup := &storage.Document{
		TenantID:    tenant.ID,
		ProjectID:   project.ID,
		Filename:    "policy-copy.txt",
		ContentType: "text/plain",
		ContentHash: "same-hash",
	}
	assert.ErrorIs(t, repos.Documents.Create(ctx, dup), storage.ErrDuplicateDocument)

	// After a failed indexing attempt the same content may be retried.
	msg := "provider unavailable"
	require.NoError(t, repos.Documents.UpdateStatus(ctx, original.ID, storage.DocumentStatusFailed, 0, &msg))
	require.NoError(t, repos.Documents.Create(ctx, dup))
}
