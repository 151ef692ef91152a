package review

import (
	"context"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/monitoring"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

type reviewFixture struct {
	service *Service
	repos   *storage.Repositories
	tenant  uuid.UUID
	answer  *storage.Answer
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, storage.EnsureSchema(ctx, db))

	repos := storage.NewRepositories(db)
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	audit := monitoring.NewAuditLogger(logger, repos.Audit, nil)

	tenant := &storage.Tenant{Name: "Acme", Slug: "acme"}
	require.NoError(t, repos.Tenants.Create(ctx, tenant))
	project := &storage.Project{TenantID: tenant.ID, Name: "DDQ"}
	require.NoError(t, repos.Projects.Create(ctx, project))
	question := &storage.Question{TenantID: tenant.ID, ProjectID: project.ID, Text: "Encryption at rest?", Number: 1}
	require.NoError(t, repos.Questions.Create(ctx, question))
	answer := &storage.Answer{QuestionID: question.ID, TenantID: tenant.ID, Text: "Yes, AES-256 [1].", ConfidenceOverall: 0.8}
	require.NoError(t, repos.Answers.Create(ctx, answer))

	return &reviewFixture{
		service: NewService(logger, repos, audit),
		repos:   repos,
		tenant:  tenant.ID,
		answer:  answer,
	}
}

func TestService_Approve(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	approved, err := f.service.Approve(ctx, f.tenant, f.answer.ID, "alex", "looks right")
	require.NoError(t, err)

	assert.Equal(t, storage.AnswerStatusApproved, approved.Status)
	assert.Equal(t, 2, approved.Version)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "alex", *approved.ReviewedBy)

	question, err := f.repos.Questions.GetByID(ctx, f.tenant, f.answer.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, storage.QuestionStatusApproved, question.Status)
}

func TestService_ApproveTwiceRejected(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	_, err := f.service.Approve(ctx, f.tenant, f.answer.ID, "alex", "")
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, f.tenant, f.answer.ID, "alex", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_RejectThenEditReentersReview(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	rejected, err := f.service.Reject(ctx, f.tenant, f.answer.ID, "sam", "missing citation")
	require.NoError(t, err)
	assert.Equal(t, storage.AnswerStatusRejected, rejected.Status)

	// A rejected answer cannot be approved directly.
	_, err = f.service.Approve(ctx, f.tenant, f.answer.ID, "sam", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Editing brings it back into a reviewable state.
	edited, err := f.service.Edit(ctx, f.tenant, f.answer.ID, "Yes, AES-256 at rest and TLS 1.3 in transit [1].", "sam", "added transit detail")
	require.NoError(t, err)
	assert.Equal(t, storage.AnswerStatusEdited, edited.Status)

	approved, err := f.service.Approve(ctx, f.tenant, f.answer.ID, "sam", "")
	require.NoError(t, err)
	assert.Equal(t, storage.AnswerStatusApproved, approved.Status)
}

func TestService_EditReplacesTextAndRecordsDiff(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	edited, err := f.service.Edit(ctx, f.tenant, f.answer.ID, "Yes, fully encrypted [1].", "pat", "tightened wording")
	require.NoError(t, err)
	assert.Equal(t, "Yes, fully encrypted [1].", edited.Text)

	versions, err := f.service.History(ctx, f.tenant, f.answer.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, storage.ChangeTypeEdit, versions[0].ChangeType)
	assert.Equal(t, "Yes, AES-256 [1].", versions[0].Text)
	assert.NotNil(t, versions[0].Diff)
}

func TestService_EditEmptyTextRejected(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.service.Edit(context.Background(), f.tenant, f.answer.ID, "   ", "pat", "")
	assert.ErrorContains(t, err, "must not be empty")
}

func TestService_VersionNumbersAreGapless(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	_, err := f.service.Edit(ctx, f.tenant, f.answer.ID, "v2 text", "pat", "")
	require.NoError(t, err)
	_, err = f.service.Edit(ctx, f.tenant, f.answer.ID, "v3 text", "pat", "")
	require.NoError(t, err)
	approved, err := f.service.Approve(ctx, f.tenant, f.answer.ID, "pat", "")
	require.NoError(t, err)

	assert.Equal(t, 4, approved.Version)

	versions, err := f.service.History(ctx, f.tenant, f.answer.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
	// Each snapshot holds the pre-transition text.
	assert.Equal(t, "Yes, AES-256 [1].", versions[0].Text)
	assert.Equal(t, "v2 text", versions[1].Text)
	assert.Equal(t, "v3 text", versions[2].Text)
}

func TestService_UnknownAnswer(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	_, err := f.service.Approve(ctx, f.tenant, uuid.New(), "alex", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.service.History(ctx, f.tenant, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_TenantScoped(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.service.Approve(context.Background(), uuid.New(), f.answer.ID, "alex", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_EditReopensApprovedAnswer(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	_, err := f.service.Approve(ctx, f.tenant, f.answer.ID, "alex", "")
	require.NoError(t, err)

	// An approved answer can still be corrected; the edit puts it back
	// under review with the approved content snapshotted.
	edited, err := f.service.Edit(ctx, f.tenant, f.answer.ID, "Yes, AES-256 with quarterly key rotation [1].", "sam", "added rotation detail")
	require.NoError(t, err)
	assert.Equal(t, storage.AnswerStatusEdited, edited.Status)
	assert.Equal(t, 3, edited.Version)

	_, err = f.service.Approve(ctx, f.tenant, f.answer.ID, "alex", "")
	require.NoError(t, err)

	versions, err := f.service.History(ctx, f.tenant, f.answer.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, storage.AnswerStatusApproved, versions[1].Status)
	assert.Equal(t, storage.ChangeTypeEdit, versions[1].ChangeType)
}
