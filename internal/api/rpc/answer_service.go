// Package rpc provides Connect service implementations for the Answer Engine.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/evaluation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/generation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/jobs"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/review"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// Procedure paths for mounting the service on an HTTP mux.
const (
	AskProcedure       = "/answerengine.v1.AnswerService/Ask"
	GetAnswerProcedure = "/answerengine.v1.AnswerService/GetAnswer"
	ReviewProcedure    = "/answerengine.v1.AnswerService/Review"
	EvaluateProcedure  = "/answerengine.v1.AnswerService/Evaluate"
)

// AnswerService implements the Connect answer service.
type AnswerService struct {
	logger     *observability.Logger
	repos      *storage.Repositories
	generation *generation.Service
	reviewSvc  *review.Service
	evaluator  *evaluation.AnswerEvaluator
	queue      *jobs.Queue
}

// NewAnswerService creates a new answer service.
func NewAnswerService(
	logger *observability.Logger,
	repos *storage.Repositories,
	generationSvc *generation.Service,
	reviewSvc *review.Service,
	evaluator *evaluation.AnswerEvaluator,
	queue *jobs.Queue,
) *AnswerService {
	return &AnswerService{
		logger:     logger,
		repos:      repos,
		generation: generationSvc,
		reviewSvc:  reviewSvc,
		evaluator:  evaluator,
		queue:      queue,
	}
}

// AskRequest submits a question for background answer generation.
type AskRequest struct {
	TenantID   string `json:"tenant_id"`
	QuestionID string `json:"question_id"`
}

// AskResponse returns the generation job's id.
type AskResponse struct {
	JobID string `json:"job_id"`
}

// GetAnswerRequest fetches the current answer for a question.
type GetAnswerRequest struct {
	TenantID   string `json:"tenant_id"`
	QuestionID string `json:"question_id"`
}

// Citation is a source reference in RPC responses.
type Citation struct {
	Marker     int     `json:"marker"`
	Order      int     `json:"citation_order"`
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	PageNumber int     `json:"page_number"`
	Excerpt    string  `json:"excerpt"`
	Similarity float64 `json:"similarity"`
}

// Answer is the RPC representation of a generated answer.
type Answer struct {
	ID                string      `json:"id"`
	QuestionID        string      `json:"question_id"`
	Text              string      `json:"text"`
	Status            string      `json:"status"`
	Version           int         `json:"version"`
	ConfidenceOverall float64     `json:"confidence_overall"`
	Citations         []*Citation `json:"citations"`
}

// GetAnswerResponse wraps the current answer.
type GetAnswerResponse struct {
	Answer *Answer `json:"answer"`
}

// ReviewRequest applies a review action to an answer.
type ReviewRequest struct {
	TenantID   string `json:"tenant_id"`
	AnswerID   string `json:"answer_id"`
	Action     string `json:"action"`
	EditedText string `json:"edited_text,omitempty"`
	Reviewer   string `json:"reviewer"`
	Notes      string `json:"notes,omitempty"`
}

// ReviewResponse returns the answer after the transition.
type ReviewResponse struct {
	AnswerID string `json:"answer_id"`
	Status   string `json:"status"`
	Version  int    `json:"version"`
}

// EvaluateRequest scores an answer against its question's ground truth.
type EvaluateRequest struct {
	TenantID string `json:"tenant_id"`
	AnswerID string `json:"answer_id"`
}

// EvaluateResponse carries the metrics; absent metrics are null.
type EvaluateResponse struct {
	HasGroundTruth     bool     `json:"has_ground_truth"`
	BLEU               *float64 `json:"bleu,omitempty"`
	Rouge1F1           *float64 `json:"rouge1_f1,omitempty"`
	Rouge2F1           *float64 `json:"rouge2_f1,omitempty"`
	RougeLF1           *float64 `json:"rouge_l_f1,omitempty"`
	SemanticSimilarity *float64 `json:"semantic_similarity,omitempty"`
	Overall            *float64 `json:"overall,omitempty"`
	Cached             bool     `json:"cached"`
}

// Ask handles answer generation submission.
func (s *AnswerService) Ask(ctx context.Context, req *connect.Request[AskRequest]) (*connect.Response[AskResponse], error) {
	tenantID, questionID, err := parsePair(req.Msg.TenantID, req.Msg.QuestionID, "question_id")
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Questions.GetByID(ctx, tenantID, questionID); err != nil {
		return nil, toConnectError(err)
	}

	jobID, err := s.queue.Submit(jobs.KindGenerateAnswer, jobs.GenerateKey(questionID), func(jobCtx context.Context, report func(float64, string)) error {
		_, err := s.generation.Generate(jobCtx, tenantID, questionID, generation.ProgressFunc(report))
		return err
	})
	if err != nil {
		if errors.Is(err, jobs.ErrJobConflict) {
			return nil, connect.NewError(connect.CodeAlreadyExists, errors.New("generation already in progress for this question"))
		}
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&AskResponse{JobID: jobID.String()}), nil
}

// GetAnswer returns the current answer with its citations.
func (s *AnswerService) GetAnswer(ctx context.Context, req *connect.Request[GetAnswerRequest]) (*connect.Response[GetAnswerResponse], error) {
	tenantID, questionID, err := parsePair(req.Msg.TenantID, req.Msg.QuestionID, "question_id")
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Questions.GetByID(ctx, tenantID, questionID); err != nil {
		return nil, toConnectError(err)
	}
	answer, err := s.repos.Answers.GetByQuestion(ctx, questionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	citations, err := s.repos.Citations.ListByAnswer(ctx, answer.ID)
	if err != nil {
		return nil, toConnectError(err)
	}

	rpcAnswer := &Answer{
		ID:                answer.ID.String(),
		QuestionID:        answer.QuestionID.String(),
		Text:              answer.Text,
		Status:            string(answer.Status),
		Version:           answer.Version,
		ConfidenceOverall: answer.ConfidenceOverall,
		Citations:         make([]*Citation, 0, len(citations)),
	}
	for _, c := range citations {
		rpcAnswer.Citations = append(rpcAnswer.Citations, &Citation{
			Marker:     c.Marker,
			Order:      c.CitationOrder,
			ChunkID:    c.ChunkID.String(),
			DocumentID: c.DocumentID.String(),
			Filename:   c.Filename,
			PageNumber: c.PageNumber,
			Excerpt:    c.Excerpt,
			Similarity: c.Similarity,
		})
	}

	return connect.NewResponse(&GetAnswerResponse{Answer: rpcAnswer}), nil
}

// Review applies an approve/reject/edit transition.
func (s *AnswerService) Review(ctx context.Context, req *connect.Request[ReviewRequest]) (*connect.Response[ReviewResponse], error) {
	tenantID, answerID, err := parsePair(req.Msg.TenantID, req.Msg.AnswerID, "answer_id")
	if err != nil {
		return nil, err
	}
	if req.Msg.Reviewer == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("reviewer is required"))
	}

	var answer *storage.Answer
	switch req.Msg.Action {
	case "approve":
		answer, err = s.reviewSvc.Approve(ctx, tenantID, answerID, req.Msg.Reviewer, req.Msg.Notes)
	case "reject":
		answer, err = s.reviewSvc.Reject(ctx, tenantID, answerID, req.Msg.Reviewer, req.Msg.Notes)
	case "edit":
		if req.Msg.EditedText == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("edited_text is required for edit"))
		}
		answer, err = s.reviewSvc.Edit(ctx, tenantID, answerID, req.Msg.EditedText, req.Msg.Reviewer, req.Msg.Notes)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("action must be approve, reject, or edit"))
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ReviewResponse{
		AnswerID: answer.ID.String(),
		Status:   string(answer.Status),
		Version:  answer.Version,
	}), nil
}

// Evaluate scores an answer against its ground truth.
func (s *AnswerService) Evaluate(ctx context.Context, req *connect.Request[EvaluateRequest]) (*connect.Response[EvaluateResponse], error) {
	tenantID, answerID, err := parsePair(req.Msg.TenantID, req.Msg.AnswerID, "answer_id")
	if err != nil {
		return nil, err
	}

	metrics, err := s.evaluator.EvaluateAnswer(ctx, tenantID, answerID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&EvaluateResponse{
		HasGroundTruth:     metrics.HasGroundTruth,
		BLEU:               metrics.BLEU,
		Rouge1F1:           metrics.Rouge1F1,
		Rouge2F1:           metrics.Rouge2F1,
		RougeLF1:           metrics.RougeLF1,
		SemanticSimilarity: metrics.SemanticSimilarity,
		Overall:            metrics.Overall,
		Cached:             metrics.Cached,
	}), nil
}

// Mount registers the service's Connect handlers on the mux.
func (s *AnswerService) Mount(mux interface {
	Handle(pattern string, handler http.Handler)
}) {
	mux.Handle(AskProcedure, connect.NewUnaryHandler(AskProcedure, s.Ask))
	mux.Handle(GetAnswerProcedure, connect.NewUnaryHandler(GetAnswerProcedure, s.GetAnswer))
	mux.Handle(ReviewProcedure, connect.NewUnaryHandler(ReviewProcedure, s.Review))
	mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, s.Evaluate))
}

func parsePair(tenant, resource, field string) (uuid.UUID, uuid.UUID, error) {
	if tenant == "" {
		return uuid.Nil, uuid.Nil, connect.NewError(connect.CodeInvalidArgument, errors.New("tenant_id is required"))
	}
	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		return uuid.Nil, uuid.Nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid tenant_id format"))
	}
	resourceID, err := uuid.Parse(resource)
	if err != nil {
		return uuid.Nil, uuid.Nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid "+field+" format"))
	}
	return tenantID, resourceID, nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, storage.ErrConflict), errors.Is(err, review.ErrInvalidTransition):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, secrets.ErrNotConfigured):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
