package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/monitoring"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// EmbedderFactory builds an embedding client from a tenant's API key.
type EmbedderFactory func(apiKey string) (embedding.Embedder, error)

// AnswerEvaluator scores stored answers against their questions' ground
// truth. Semantic similarity is skipped when the tenant has no provider
// credential; lexical metrics are always computed.
type AnswerEvaluator struct {
	logger      *observability.Logger
	repos       *storage.Repositories
	secrets     *secrets.Store
	service     *Service
	batch       *BatchEvaluator
	audit       *monitoring.AuditLogger
	newEmbedder EmbedderFactory
	provider    string
}

// NewAnswerEvaluator creates an evaluator over stored answers.
func NewAnswerEvaluator(
	logger *observability.Logger,
	repos *storage.Repositories,
	secretStore *secrets.Store,
	service *Service,
	batch *BatchEvaluator,
	audit *monitoring.AuditLogger,
	newEmbedder EmbedderFactory,
	provider string,
) *AnswerEvaluator {
	return &AnswerEvaluator{
		logger:      logger,
		repos:       repos,
		secrets:     secretStore,
		service:     service,
		batch:       batch,
		audit:       audit,
		newEmbedder: newEmbedder,
		provider:    provider,
	}
}

// EvaluateAnswer scores a single answer. Returns all-null metrics when the
// question carries no ground truth.
func (ae *AnswerEvaluator) EvaluateAnswer(ctx context.Context, tenantID, answerID uuid.UUID) (*Metrics, error) {
	answer, err := ae.repos.Answers.GetByID(ctx, tenantID, answerID)
	if err != nil {
		return nil, err
	}
	question, err := ae.repos.Questions.GetByID(ctx, tenantID, answer.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("load question for answer %s: %w", answerID, err)
	}

	groundTruth := ""
	if question.GroundTruth != nil {
		groundTruth = *question.GroundTruth
	}

	metrics := ae.service.Evaluate(ctx, tenantID.String(), answer.Text, groundTruth, ae.embedderFor(ctx, tenantID))

	if ae.audit != nil && metrics.HasGroundTruth {
		if err := ae.audit.LogEvaluation(ctx, tenantID, answerID, metrics.Overall); err != nil {
			ae.logger.Warn().Err(err).Msg("Failed to record evaluation audit event")
		}
	}
	return &metrics, nil
}

// EvaluateProject scores every question in the project that has both ground
// truth and a generated answer. Questions without either are skipped.
func (ae *AnswerEvaluator) EvaluateProject(
	ctx context.Context,
	tenantID, projectID uuid.UUID,
	progress func(done, total int),
) (*BatchSummary, error) {
	questions, err := ae.repos.Questions.ListByProject(ctx, tenantID, projectID, "")
	if err != nil {
		return nil, err
	}

	var items []BatchItem
	for _, q := range questions {
		if q.GroundTruth == nil || *q.GroundTruth == "" {
			continue
		}
		answer, err := ae.repos.Answers.GetByQuestion(ctx, q.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, BatchItem{
			QuestionID:  q.ID,
			Generated:   answer.Text,
			GroundTruth: *q.GroundTruth,
		})
	}

	summary, err := ae.batch.Run(ctx, tenantID, items, ae.embedderFor(ctx, tenantID), progress)
	if err != nil {
		return nil, err
	}

	if ae.audit != nil && summary.Evaluated > 0 {
		if err := ae.audit.LogEvaluation(ctx, tenantID, projectID, summary.MeanOverall); err != nil {
			ae.logger.Warn().Err(err).Msg("Failed to record evaluation audit event")
		}
	}
	return summary, nil
}

// embedderFor resolves the tenant's credential into an embedding client, or
// nil when none is configured so evaluation degrades to lexical metrics.
func (ae *AnswerEvaluator) embedderFor(ctx context.Context, tenantID uuid.UUID) embedding.Embedder {
	if ae.secrets == nil || ae.newEmbedder == nil {
		return nil
	}
	apiKey, err := ae.secrets.Resolve(ctx, tenantID, ae.provider)
	if err != nil {
		if !errors.Is(err, secrets.ErrNotConfigured) {
			ae.logger.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to resolve provider credential")
		}
		return nil
	}
	embedder, err := ae.newEmbedder(apiKey)
	if err != nil {
		ae.logger.Warn().Err(err).Msg("Failed to build embedding client")
		return nil
	}
	return embedder
}
