// Package monitoring provides the audit trail for answer-engine actions.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/cache"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// Audit actions recorded by the engine.
const (
	ActionDocumentIndexed = "document_indexed"
	ActionDocumentDeleted = "document_deleted"
	ActionAnswerGenerated = "answer_generated"
	ActionAnswerApproved  = "answer_approved"
	ActionAnswerRejected  = "answer_rejected"
	ActionAnswerEdited    = "answer_edited"
	ActionEvaluationRun   = "evaluation_run"
)

// AuditLogger writes audit events to storage and structured logs, and
// optionally fans them out on redis for live dashboards.
type AuditLogger struct {
	logger      *observability.Logger
	repo        *storage.AuditRepository
	redisClient *cache.RedisClient
}

// NewAuditLogger creates a new audit logger. redisClient may be nil.
func NewAuditLogger(logger *observability.Logger, repo *storage.AuditRepository, redisClient *cache.RedisClient) *AuditLogger {
	return &AuditLogger{
		logger:      logger,
		repo:        repo,
		redisClient: redisClient,
	}
}

// Record persists an audit event. Detail carries free-form context and is
// stored as JSON.
func (a *AuditLogger) Record(ctx context.Context, tenantID uuid.UUID, projectID *uuid.UUID, action, resourceType string, resourceID uuid.UUID, actor string, detail map[string]interface{}) error {
	event := &storage.AuditEvent{
		TenantID:     tenantID,
		ProjectID:    projectID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if actor != "" {
		event.Actor = &actor
	}
	if detail != nil {
		payload, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		text := string(payload)
		event.Detail = &text
	}

	a.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("action", action).
		Str("resource_type", resourceType).
		Str("resource_id", resourceID.String()).
		Str("actor", actor).
		Msg("Audit event")

	if err := a.repo.Create(ctx, event); err != nil {
		return fmt.Errorf("persist audit event: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Publish(ctx, "audit", event); err != nil {
			// dashboards miss one event; the stored trail is intact
			a.logger.Warn().Err(err).Msg("Failed to publish audit event")
		}
	}
	return nil
}

// LogDocumentIndexed records a completed indexing run.
func (a *AuditLogger) LogDocumentIndexed(ctx context.Context, tenantID, projectID, documentID uuid.UUID, actor string, chunkCount int) error {
	return a.Record(ctx, tenantID, &projectID, ActionDocumentIndexed, "document", documentID, actor, map[string]interface{}{
		"chunk_count": chunkCount,
	})
}

// LogDocumentDeleted records a document removal.
func (a *AuditLogger) LogDocumentDeleted(ctx context.Context, tenantID, projectID, documentID uuid.UUID, actor string) error {
	return a.Record(ctx, tenantID, &projectID, ActionDocumentDeleted, "document", documentID, actor, nil)
}

// LogAnswerGenerated records a generated answer with its confidence.
func (a *AuditLogger) LogAnswerGenerated(ctx context.Context, tenantID, projectID, answerID uuid.UUID, confidence float64, citations int) error {
	return a.Record(ctx, tenantID, &projectID, ActionAnswerGenerated, "answer", answerID, "", map[string]interface{}{
		"confidence": confidence,
		"citations":  citations,
	})
}

// LogReview records an approve, reject, or edit transition.
func (a *AuditLogger) LogReview(ctx context.Context, tenantID, answerID uuid.UUID, change storage.ChangeType, reviewer string, version int) error {
	action := ActionAnswerApproved
	switch change {
	case storage.ChangeTypeReject:
		action = ActionAnswerRejected
	case storage.ChangeTypeEdit:
		action = ActionAnswerEdited
	}
	return a.Record(ctx, tenantID, nil, action, "answer", answerID, reviewer, map[string]interface{}{
		"version": version,
	})
}

// LogEvaluation records an evaluation run against an answer.
func (a *AuditLogger) LogEvaluation(ctx context.Context, tenantID, answerID uuid.UUID, overall *float64) error {
	detail := map[string]interface{}{}
	if overall != nil {
		detail["overall"] = *overall
	}
	return a.Record(ctx, tenantID, nil, ActionEvaluationRun, "answer", answerID, "", detail)
}

// Trail lists the audit events recorded against one resource.
func (a *AuditLogger) Trail(ctx context.Context, tenantID, resourceID uuid.UUID) ([]*storage.AuditEvent, error) {
	return a.repo.ListByResource(ctx, tenantID, resourceID)
}
