package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

type fixtures struct {
	repos    *Repositories
	tenant   *Tenant
	project  *Project
	document *Document
	question *Question
}

func seedFixtures(t *testing.T) *fixtures {
	t.Helper()
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	tenant := &Tenant{Name: "Acme Corp", Slug: "acme-" + uuid.NewString()[:8]}
	require.NoError(t, repos.Tenants.Create(ctx, tenant))

	project := &Project{TenantID: tenant.ID, Name: "Vendor DDQ"}
	require.NoError(t, repos.Projects.Create(ctx, project))

	document := &Document{
		TenantID:    tenant.ID,
		ProjectID:   project.ID,
		Filename:    "security.txt",
		ContentType: "text/plain",
		SizeBytes:   42,
		ContentHash: "hash-" + uuid.NewString(),
	}
	require.NoError(t, repos.Documents.Create(ctx, document))

	question := &Question{
		TenantID:  tenant.ID,
		ProjectID: project.ID,
		Text:      "Is data encrypted at rest?",
		Number:    1,
	}
	require.NoError(t, repos.Questions.Create(ctx, question))

	return &fixtures{repos: repos, tenant: tenant, project: project, document: document, question: question}
}

func seedChunk(t *testing.T, f *fixtures, index int) *Chunk {
	t.Helper()
	chunk := &Chunk{
		DocumentID: f.document.ID,
		TenantID:   f.tenant.ID,
		ProjectID:  f.project.ID,
		ChunkIndex: index,
		Text:       "All customer data is encrypted with AES-256.",
		PageNumber: 1,
		TokenCount: 7,
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, f.repos.Chunks.BulkCreate(context.Background(), []*Chunk{chunk}))
	return chunk
}

func TestTenantRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	tenant := &Tenant{Name: "Acme Corp", Slug: "acme"}
	require.NoError(t, repos.Tenants.Create(ctx, tenant))
	require.NotEqual(t, uuid.Nil, tenant.ID)

	got, err := repos.Tenants.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Name)

	bySlug, err := repos.Tenants.GetBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, bySlug.ID)

	_, err = repos.Tenants.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectRepository_TenantScoping(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	// A different tenant id must not see the project.
	_, err := f.repos.Projects.GetByID(ctx, uuid.New(), f.project.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.repos.Projects.GetByID(ctx, f.tenant.ID, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Vendor DDQ", got.Name)
}

func TestDocumentRepository_DuplicateContentRejected(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	dup := &Document{
		TenantID:    f.tenant.ID,
		ProjectID:   f.project.ID,
		Filename:    "security-copy.txt",
		ContentHash: f.document.ContentHash,
	}
	err := f.repos.Documents.Create(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateDocument)
}

func TestDocumentRepository_FailedUploadCanBeRetried(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	msg := "embedding provider unavailable"
	require.NoError(t, f.repos.Documents.UpdateStatus(ctx, f.document.ID, DocumentStatusFailed, 0, &msg))

	retry := &Document{
		TenantID:    f.tenant.ID,
		ProjectID:   f.project.ID,
		Filename:    "security.txt",
		ContentHash: f.document.ContentHash,
	}
	assert.NoError(t, f.repos.Documents.Create(ctx, retry))
}

func TestDocumentRepository_DeleteGuardedByCitations(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)
	chunk := seedChunk(t, f, 0)

	answer := &Answer{QuestionID: f.question.ID, TenantID: f.tenant.ID, Text: "Yes, with AES-256 [1]."}
	require.NoError(t, f.repos.Answers.Create(ctx, answer))
	require.NoError(t, f.repos.Citations.BulkCreate(ctx, []*Citation{
		{AnswerID: answer.ID, ChunkID: chunk.ID, Marker: 1, Excerpt: chunk.Text, Similarity: 0.91},
	}))

	err := f.repos.Documents.Delete(ctx, f.tenant.ID, f.document.ID)
	assert.ErrorIs(t, err, ErrCitationsExist)

	// Once the citations are gone, the delete cascades to chunks.
	require.NoError(t, f.repos.Citations.DeleteByAnswer(ctx, answer.ID))
	require.NoError(t, f.repos.Documents.Delete(ctx, f.tenant.ID, f.document.ID))

	_, err = f.repos.Documents.GetByID(ctx, f.tenant.ID, f.document.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.repos.Chunks.GetByID(ctx, chunk.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChunkRepository_EmbeddingRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)
	chunk := seedChunk(t, f, 3)

	got, err := f.repos.Chunks.GetByID(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, 3, got.ChunkIndex)
}

func TestChunkRepository_ListNamespaces(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)
	seedChunk(t, f, 0)
	seedChunk(t, f, 1)

	namespaces, err := f.repos.Chunks.ListNamespaces(ctx)
	require.NoError(t, err)
	require.Len(t, namespaces, 1)
	assert.Equal(t, f.tenant.ID, namespaces[0][0])
	assert.Equal(t, f.project.ID, namespaces[0][1])
}

func TestQuestionRepository_ListOrderedByNumber(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	later := &Question{TenantID: f.tenant.ID, ProjectID: f.project.ID, Text: "What is the uptime SLA?", Number: 3}
	require.NoError(t, f.repos.Questions.Create(ctx, later))
	middle := &Question{TenantID: f.tenant.ID, ProjectID: f.project.ID, Text: "Where is data stored?", Number: 2}
	require.NoError(t, f.repos.Questions.Create(ctx, middle))

	questions, err := f.repos.Questions.ListByProject(ctx, f.tenant.ID, f.project.ID, "")
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{questions[0].Number, questions[1].Number, questions[2].Number})
}

func TestQuestionRepository_StatusFilter(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)
	require.NoError(t, f.repos.Questions.UpdateStatus(ctx, f.question.ID, QuestionStatusAnswered))

	answered, err := f.repos.Questions.ListByProject(ctx, f.tenant.ID, f.project.ID, QuestionStatusAnswered)
	require.NoError(t, err)
	assert.Len(t, answered, 1)

	pending, err := f.repos.Questions.ListByProject(ctx, f.tenant.ID, f.project.ID, QuestionStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQuestionRepository_GroundTruthPersists(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	truth := "Yes. AES-256 at rest, TLS 1.3 in transit."
	q := &Question{TenantID: f.tenant.ID, ProjectID: f.project.ID, Text: "Encryption?", Number: 2, GroundTruth: &truth}
	require.NoError(t, f.repos.Questions.Create(ctx, q))

	got, err := f.repos.Questions.GetByID(ctx, f.tenant.ID, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got.GroundTruth)
	assert.Equal(t, truth, *got.GroundTruth)
}

func TestQuestionRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)
	chunk := seedChunk(t, f, 0)

	answer := &Answer{QuestionID: f.question.ID, TenantID: f.tenant.ID, Text: "Yes [1]."}
	require.NoError(t, f.repos.Answers.Create(ctx, answer))
	require.NoError(t, f.repos.Citations.BulkCreate(ctx, []*Citation{
		{AnswerID: answer.ID, ChunkID: chunk.ID, Marker: 1, Excerpt: chunk.Text, Similarity: 0.9},
	}))
	require.NoError(t, f.repos.AnswerVersions.Create(ctx, &AnswerVersion{
		AnswerID: answer.ID, VersionNumber: 1, Text: answer.Text, Status: AnswerStatusPendingReview, ChangeType: ChangeTypeEdit,
	}))

	require.NoError(t, f.repos.Questions.Delete(ctx, f.tenant.ID, f.question.ID))

	_, err := f.repos.Questions.GetByID(ctx, f.tenant.ID, f.question.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.repos.Answers.GetByQuestion(ctx, f.question.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	citations, err := f.repos.Citations.ListByAnswer(ctx, answer.ID)
	require.NoError(t, err)
	assert.Empty(t, citations)

	versions, err := f.repos.AnswerVersions.ListByAnswer(ctx, answer.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestAnswerRepository_CreateDefaults(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	answer := &Answer{QuestionID: f.question.ID, TenantID: f.tenant.ID, Text: "Yes."}
	require.NoError(t, f.repos.Answers.Create(ctx, answer))

	assert.Equal(t, AnswerStatusPendingReview, answer.Status)
	assert.Equal(t, 1, answer.Version)

	got, err := f.repos.Answers.GetByQuestion(ctx, f.question.ID)
	require.NoError(t, err)
	assert.Equal(t, answer.ID, got.ID)
}

func TestCitationRepository_ListByAnswerJoinsSource(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)
	chunk := seedChunk(t, f, 2)

	answer := &Answer{QuestionID: f.question.ID, TenantID: f.tenant.ID, Text: "Yes [1]."}
	require.NoError(t, f.repos.Answers.Create(ctx, answer))
	require.NoError(t, f.repos.Citations.BulkCreate(ctx, []*Citation{
		{AnswerID: answer.ID, ChunkID: chunk.ID, Marker: 1, Excerpt: "excerpt", Similarity: 0.88},
	}))

	details, err := f.repos.Citations.ListByAnswer(ctx, answer.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, f.document.ID, details[0].DocumentID)
	assert.Equal(t, "security.txt", details[0].Filename)
	assert.Equal(t, 1, details[0].PageNumber)
	assert.Equal(t, 2, details[0].ChunkIndex)
}

func TestCitationRepository_ListByAnswerKeepsFirstOccurrenceOrder(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)
	chunkA := seedChunk(t, f, 0)
	chunkB := seedChunk(t, f, 1)

	answer := &Answer{QuestionID: f.question.ID, TenantID: f.tenant.ID, Text: "Claim [3], then [1]."}
	require.NoError(t, f.repos.Answers.Create(ctx, answer))

	// [3] appears before [1] in the answer, so it reads back first
	require.NoError(t, f.repos.Citations.BulkCreate(ctx, []*Citation{
		{AnswerID: answer.ID, ChunkID: chunkA.ID, Marker: 3, CitationOrder: 1, Excerpt: "a", Similarity: 0.9},
		{AnswerID: answer.ID, ChunkID: chunkB.ID, Marker: 1, CitationOrder: 2, Excerpt: "b", Similarity: 0.8},
	}))

	details, err := f.repos.Citations.ListByAnswer(ctx, answer.ID)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, 3, details[0].Marker)
	assert.Equal(t, 1, details[0].CitationOrder)
	assert.Equal(t, 1, details[1].Marker)
	assert.Equal(t, 2, details[1].CitationOrder)
}

func TestCredentialRepository_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	cred := &Credential{
		TenantID:   f.tenant.ID,
		Provider:   "openai",
		Ciphertext: "opaque",
		KeyHint:    "sk-...abcd",
	}
	require.NoError(t, f.repos.Credentials.Save(ctx, cred))

	got, err := f.repos.Credentials.Get(ctx, f.tenant.ID, "openai")
	require.NoError(t, err)
	assert.Equal(t, "opaque", got.Ciphertext)

	// Save again replaces in place.
	cred.Ciphertext = "rotated"
	require.NoError(t, f.repos.Credentials.Save(ctx, cred))
	got, err = f.repos.Credentials.Get(ctx, f.tenant.ID, "openai")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Ciphertext)

	require.NoError(t, f.repos.Credentials.Delete(ctx, f.tenant.ID, "openai"))
	_, err = f.repos.Credentials.Get(ctx, f.tenant.ID, "openai")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditRepository_ListByResource(t *testing.T) {
	ctx := context.Background()
	f := seedFixtures(t)

	actor := "system"
	event := &AuditEvent{
		TenantID:     f.tenant.ID,
		ProjectID:    &f.project.ID,
		Action:       "document_indexed",
		ResourceType: "document",
		ResourceID:   f.document.ID,
		Actor:        &actor,
	}
	require.NoError(t, f.repos.Audit.Create(ctx, event))

	events, err := f.repos.Audit.ListByResource(ctx, f.tenant.ID, f.document.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "document_indexed", events[0].Action)
}
