package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/llm"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/monitoring"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// Provider is the credential slot answer generation draws from.
const Provider = "openai"

// EmbedderFactory builds a tenant-keyed embedding client.
type EmbedderFactory func(apiKey string) (embedding.Embedder, error)

// ChatFactory builds a tenant-keyed chat client.
type ChatFactory func(apiKey string) (llm.ChatClient, error)

// ProgressFunc receives generation progress in [0, 1] with a stage label.
type ProgressFunc func(progress float64, stage string)

// ServiceConfig holds generation parameters.
type ServiceConfig struct {
	Model             string
	ScoringModel      string
	Temperature       float64
	CoverageThreshold float64
	Weights           ConfidenceWeights
}

// Service runs the full question-to-answer flow: resolve credentials,
// retrieve, generate, link citations, score, persist.
type Service struct {
	logger      *observability.Logger
	config      ServiceConfig
	repos       *storage.Repositories
	retriever   *retrieval.Retriever
	linker      *CitationLinker
	secrets     *secrets.Store
	audit       *monitoring.AuditLogger
	newEmbedder EmbedderFactory
	newChat     ChatFactory
}

// NewService creates the answer generation service.
func NewService(
	logger *observability.Logger,
	cfg ServiceConfig,
	repos *storage.Repositories,
	retriever *retrieval.Retriever,
	secretStore *secrets.Store,
	audit *monitoring.AuditLogger,
	newEmbedder EmbedderFactory,
	newChat ChatFactory,
) *Service {
	return &Service{
		logger:      logger,
		config:      cfg,
		repos:       repos,
		retriever:   retriever,
		linker:      NewCitationLinker(logger),
		secrets:     secretStore,
		audit:       audit,
		newEmbedder: newEmbedder,
		newChat:     newChat,
	}
}

// GeneratedAnswer is the persisted outcome of one generation run.
type GeneratedAnswer struct {
	Answer     *storage.Answer
	Citations  []*storage.Citation
	Confidence ConfidenceScores
	Retrieved  int
}

// Generate answers a question from the project corpus. Re-running replaces
// any earlier answer entirely: old citations and version history go with
// it, and the fresh answer starts over at version 1 in pending review.
func (s *Service) Generate(ctx context.Context, tenantID, questionID uuid.UUID, report ProgressFunc) (*GeneratedAnswer, error) {
	if report == nil {
		report = func(float64, string) {}
	}

	question, err := s.repos.Questions.GetByID(ctx, tenantID, questionID)
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}

	logger := s.logger.WithTenant(tenantID.String()).WithQuestion(questionID.String())
	logger.Info().Str("project_id", question.ProjectID.String()).Msg("Starting answer generation")

	if err := s.repos.Questions.UpdateStatus(ctx, questionID, storage.QuestionStatusProcessing); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	result, err := s.generate(ctx, question, report)
	if err != nil {
		// the question goes back to pending so the run can be retried
		if statusErr := s.repos.Questions.UpdateStatus(context.WithoutCancel(ctx), questionID, storage.QuestionStatusPending); statusErr != nil {
			logger.Error().Err(statusErr).Msg("Failed to restore question to pending")
		}
		return nil, err
	}

	if err := s.repos.Questions.UpdateStatus(ctx, questionID, storage.QuestionStatusAnswered); err != nil {
		return nil, fmt.Errorf("mark answered: %w", err)
	}

	if err := s.audit.LogAnswerGenerated(ctx, tenantID, question.ProjectID, result.Answer.ID, result.Confidence.Overall, len(result.Citations)); err != nil {
		logger.Warn().Err(err).Msg("Failed to record audit event")
	}

	logger.Info().
		Str("answer_id", result.Answer.ID.String()).
		Float64("confidence", result.Confidence.Overall).
		Int("citations", len(result.Citations)).
		Msg("Answer generation completed")
	return result, nil
}

func (s *Service) generate(ctx context.Context, question *storage.Question, report ProgressFunc) (*GeneratedAnswer, error) {
	report(0.05, "resolving credentials")
	apiKey, err := s.secrets.Resolve(ctx, question.TenantID, Provider)
	if err != nil {
		return nil, err
	}
	embedder, err := s.newEmbedder(apiKey)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	chat, err := s.newChat(apiKey)
	if err != nil {
		return nil, fmt.Errorf("build chat client: %w", err)
	}

	report(0.15, "retrieving")
	ns := retrieval.Namespace{TenantID: question.TenantID, ProjectID: question.ProjectID}
	retrieved, err := s.retriever.Retrieve(ctx, ns, embedder, question.Text)
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyCorpus) {
			return nil, fmt.Errorf("project %s: %w", question.ProjectID, err)
		}
		return nil, err
	}

	report(0.4, "generating")
	generator := NewGenerator(s.logger, chat, s.config.Model, s.config.Temperature)
	answerText, err := generator.Generate(ctx, question.Text, retrieved)
	if err != nil {
		return nil, err
	}

	report(0.6, "linking citations")
	citations := s.linker.Link(answerText, retrieved)

	report(0.7, "scoring")
	scorer := NewConfidenceScorer(s.logger, chat, s.config.ScoringModel, s.config.CoverageThreshold, s.config.Weights)
	confidence := scorer.Score(ctx, question.Text, answerText, retrieved)

	report(0.9, "persisting")
	detail, err := json.Marshal(confidence)
	if err != nil {
		return nil, fmt.Errorf("marshal confidence: %w", err)
	}
	detailText := string(detail)

	if err := s.repos.Answers.DeleteByQuestion(ctx, question.ID); err != nil {
		return nil, fmt.Errorf("clear previous answer: %w", err)
	}

	answer := &storage.Answer{
		QuestionID:        question.ID,
		TenantID:          question.TenantID,
		Text:              answerText,
		Status:            storage.AnswerStatusPendingReview,
		Version:           1,
		ConfidenceOverall: confidence.Overall,
		ConfidenceDetail:  &detailText,
	}
	if err := s.repos.Answers.Create(ctx, answer); err != nil {
		return nil, fmt.Errorf("store answer: %w", err)
	}

	for _, citation := range citations {
		citation.AnswerID = answer.ID
	}
	if err := s.repos.Citations.BulkCreate(ctx, citations); err != nil {
		return nil, fmt.Errorf("store citations: %w", err)
	}

	report(1.0, "done")
	return &GeneratedAnswer{
		Answer:     answer,
		Citations:  citations,
		Confidence: confidence,
		Retrieved:  len(retrieved),
	}, nil
}
