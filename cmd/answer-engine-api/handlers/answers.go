package handlers

import (
	"net/http"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/evaluation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/review"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// AnswerHandler handles answer review, history, and evaluation.
type AnswerHandler struct {
	logger    *observability.Logger
	repos     *storage.Repositories
	review    *review.Service
	evaluator *evaluation.AnswerEvaluator
}

// NewAnswerHandler creates a new answer handler.
func NewAnswerHandler(
	logger *observability.Logger,
	repos *storage.Repositories,
	reviewSvc *review.Service,
	evaluator *evaluation.AnswerEvaluator,
) *AnswerHandler {
	return &AnswerHandler{
		logger:    logger,
		repos:     repos,
		review:    reviewSvc,
		evaluator: evaluator,
	}
}

// ReviewRequest carries a review action for an answer.
type ReviewRequest struct {
	Action     string `json:"action"` // approve, reject, edit
	EditedText string `json:"editedText,omitempty"`
	Reviewer   string `json:"reviewer"`
	Notes      string `json:"notes,omitempty"`
}

// Review handles POST /tenants/{tenantID}/answers/{answerID}/review.
func (h *AnswerHandler) Review(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	answerID, ok := pathUUID(r, "answerID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid answer id", "")
		return
	}

	var req ReviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required", "")
		return
	}

	var answer *storage.Answer
	var err error
	switch req.Action {
	case "approve":
		answer, err = h.review.Approve(ctx, tenantID, answerID, req.Reviewer, req.Notes)
	case "reject":
		answer, err = h.review.Reject(ctx, tenantID, answerID, req.Reviewer, req.Notes)
	case "edit":
		if req.EditedText == "" {
			writeError(w, http.StatusBadRequest, "editedText is required for edit", "")
			return
		}
		answer, err = h.review.Edit(ctx, tenantID, answerID, req.EditedText, req.Reviewer, req.Notes)
	default:
		writeError(w, http.StatusBadRequest, "action must be approve, reject, or edit", "")
		return
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// Versions handles GET /tenants/{tenantID}/answers/{answerID}/versions.
func (h *AnswerHandler) Versions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	answerID, ok := pathUUID(r, "answerID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid answer id", "")
		return
	}

	versions, err := h.review.History(r.Context(), tenantID, answerID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

// Evaluate handles POST /tenants/{tenantID}/answers/{answerID}/evaluate.
// Returns all-null metrics when the question has no ground truth.
func (h *AnswerHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	answerID, ok := pathUUID(r, "answerID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid answer id", "")
		return
	}

	metrics, err := h.evaluator.EvaluateAnswer(r.Context(), tenantID, answerID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}
