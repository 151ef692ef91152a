package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/generation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/jobs"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// QuestionHandler handles questionnaire items and answer generation.
type QuestionHandler struct {
	logger     *observability.Logger
	repos      *storage.Repositories
	generation *generation.Service
	queue      *jobs.Queue
	secrets    *secrets.Store
}

// NewQuestionHandler creates a new question handler.
func NewQuestionHandler(
	logger *observability.Logger,
	repos *storage.Repositories,
	generationSvc *generation.Service,
	queue *jobs.Queue,
	secretStore *secrets.Store,
) *QuestionHandler {
	return &QuestionHandler{
		logger:     logger,
		repos:      repos,
		generation: generationSvc,
		queue:      queue,
		secrets:    secretStore,
	}
}

// CreateQuestionRequest is the payload for a single question.
type CreateQuestionRequest struct {
	Text        string  `json:"text"`
	Category    *string `json:"category,omitempty"`
	Number      int     `json:"number,omitempty"`
	GroundTruth *string `json:"groundTruth,omitempty"`
}

// BulkQuestionsRequest imports a list of questions at once.
type BulkQuestionsRequest struct {
	Questions []CreateQuestionRequest `json:"questions"`
}

// Create handles POST /tenants/{tenantID}/projects/{projectID}/questions.
func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	projectID, ok := pathUUID(r, "projectID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id", "")
		return
	}

	var req CreateQuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}
	if _, err := h.repos.Projects.GetByID(ctx, tenantID, projectID); err != nil {
		writeStorageError(w, err)
		return
	}

	question := questionFromRequest(tenantID, projectID, req)
	if err := h.repos.Questions.Create(ctx, question); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

// Bulk handles POST /tenants/{tenantID}/projects/{projectID}/questions/bulk.
func (h *QuestionHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	projectID, ok := pathUUID(r, "projectID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id", "")
		return
	}

	var req BulkQuestionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "questions list is empty", "")
		return
	}
	if _, err := h.repos.Projects.GetByID(ctx, tenantID, projectID); err != nil {
		writeStorageError(w, err)
		return
	}

	created := make([]*storage.Question, 0, len(req.Questions))
	for i, item := range req.Questions {
		if item.Text == "" {
			writeError(w, http.StatusBadRequest, "question text is required", "")
			return
		}
		if item.Number == 0 {
			item.Number = i + 1
		}
		question := questionFromRequest(tenantID, projectID, item)
		if err := h.repos.Questions.Create(ctx, question); err != nil {
			writeStorageError(w, err)
			return
		}
		created = append(created, question)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"questions": created})
}

// List handles GET /tenants/{tenantID}/projects/{projectID}/questions.
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	projectID, ok := pathUUID(r, "projectID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id", "")
		return
	}

	status := storage.QuestionStatus(r.URL.Query().Get("status"))
	questions, err := h.repos.Questions.ListByProject(r.Context(), tenantID, projectID, status)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

// Delete handles DELETE /tenants/{tenantID}/questions/{questionID}. Removes
// the question and its whole answer history.
func (h *QuestionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question id", "")
		return
	}

	if err := h.repos.Questions.Delete(r.Context(), tenantID, questionID); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /tenants/{tenantID}/questions/{questionID}/generate.
// Submits a background generation job; a second submit while one is active
// returns 409 with the running job's id.
func (h *QuestionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question id", "")
		return
	}

	if _, err := h.repos.Questions.GetByID(ctx, tenantID, questionID); err != nil {
		writeStorageError(w, err)
		return
	}
	// Fail fast on a missing credential instead of inside the worker.
	if h.secrets == nil {
		writeStorageError(w, secrets.ErrNotConfigured)
		return
	}
	if _, err := h.secrets.Resolve(ctx, tenantID, generation.Provider); err != nil {
		writeStorageError(w, err)
		return
	}

	jobID, err := h.queue.Submit(jobs.KindGenerateAnswer, jobs.GenerateKey(questionID), func(jobCtx context.Context, report func(float64, string)) error {
		_, err := h.generation.Generate(jobCtx, tenantID, questionID, generation.ProgressFunc(report))
		return err
	})
	if err != nil {
		if errors.Is(err, jobs.ErrJobConflict) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "generation already in progress for this question",
				"jobId": jobID.String(),
			})
			return
		}
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID.String()})
}

// AnswerResponse is an answer joined with its ordered citations.
type AnswerResponse struct {
	Answer    *storage.Answer           `json:"answer"`
	Citations []*storage.CitationDetail `json:"citations"`
}

// GetAnswer handles GET /tenants/{tenantID}/questions/{questionID}/answer.
func (h *QuestionHandler) GetAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	questionID, ok := pathUUID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question id", "")
		return
	}

	if _, err := h.repos.Questions.GetByID(ctx, tenantID, questionID); err != nil {
		writeStorageError(w, err)
		return
	}
	answer, err := h.repos.Answers.GetByQuestion(ctx, questionID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	citations, err := h.repos.Citations.ListByAnswer(ctx, answer.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AnswerResponse{Answer: answer, Citations: citations})
}

func questionFromRequest(tenantID, projectID uuid.UUID, req CreateQuestionRequest) *storage.Question {
	return &storage.Question{
		TenantID:    tenantID,
		ProjectID:   projectID,
		Text:        req.Text,
		Category:    req.Category,
		Number:      req.Number,
		GroundTruth: req.GroundTruth,
	}
}
