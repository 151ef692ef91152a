package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/monitoring"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/review"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// TestReviewWorkflowOnPostgres exercises the full review lifecycle against a
// real database: edit, reject, re-edit, approve, with gapless version
// numbers and audit events recorded along the way.
func TestReviewWorkflowOnPostgres(t *testing.T) {
	skipUnlessIntegration(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	db := setup.OpenDatabase(t)
	repos := storage.NewRepositories(db)
	ctx := context.Background()

	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	audit := monitoring.NewAuditLogger(logger, repos.Audit, nil)
	svc := review.NewService(logger, repos, audit)

	tenant := &storage.Tenant{Name: "Acme Corp", Slug: "acme"}
	require.NoError(t, repos.Tenants.Create(ctx, tenant))
	project := &storage.Project{TenantID: tenant.ID, Name: "DDQ"}
	require.NoError(t, repos.Projects.Create(ctx, project))
	question := &storage.Question{
		TenantID:  tenant.ID,
		ProjectID: project.ID,
		Text:      "Is data encrypted at rest?",
		Number:    1,
		Status:    storage.QuestionStatusAnswered,
	}
	require.NoError(t, repos.Questions.Create(ctx, question))

	answer := &storage.Answer{
		QuestionID:        question.ID,
		TenantID:          tenant.ID,
		Text:              "Yes, data is encrypted at rest using AES-256 [1].",
		ConfidenceOverall: 0.82,
	}
	require.NoError(t, repos.Answers.Create(ctx, answer))

	// Edit, then reject, then edit again, then approve.
	edited, err := svc.Edit(ctx, tenant.ID, answer.ID,
		"Yes. All customer data is encrypted at rest using AES-256 [1].",
		"analyst@acme.test", "tightened wording")
	require.NoError(t, err)
	assert.Equal(t, storage.AnswerStatusEdited, edited.Status)
	assert.Equal(t, 2, edited.Version)

	rejected, err := svc.Reject(ctx, tenant.ID, answer.ID, "reviewer@acme.test", "cite the key rotation policy too")
	require.NoError(t, err)
	assert.Equal(t, storage.AnswerStatusRejected, rejected.Status)
	assert.Equal(t, 3, rejected.Version)

	reworked, err := svc.Edit(ctx, tenant.ID, answer.ID,
		"Yes. Data is encrypted at rest using AES-256 [1] and keys rotate every 90 days [2].",
		"analyst@acme.test", "added key rotation")
	require.NoError(t, err)
	assert.Equal(t, 4, reworked.Version)

	approved, err := svc.Approve(ctx, tenant.ID, answer.ID, "reviewer@acme.test", "")
	require.NoError(t, err)
	assert.Equal(t, storage.AnswerStatusApproved, approved.Status)
	assert.Equal(t, 5, approved.Version)

	// History holds one snapshot per transition, gapless and oldest first.
	history, err := svc.History(ctx, tenant.ID, answer.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, v := range history {
		assert.Equal(t, i+1, v.VersionNumber)
	}
	assert.Equal(t, storage.ChangeTypeEdit, history[0].ChangeType)
	assert.Equal(t, storage.ChangeTypeReject, history[1].ChangeType)
	assert.Equal(t, storage.ChangeTypeApprove, history[3].ChangeType)

	// The question tracks the answer's review outcome.
	q, err := repos.Questions.GetByID(ctx, tenant.ID, question.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.QuestionStatusApproved, q.Status)

	// Audit trail covers the review actions.
	events, err := repos.Audit.ListByResource(ctx, tenant.ID, answer.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
