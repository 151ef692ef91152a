// Package review drives the answer review state machine. Every transition
// snapshots the pre-transition answer, so version history is complete and
// version numbers have no gaps.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/monitoring"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// ErrInvalidTransition reports a review action the current status does not
// allow, e.g. approving an already approved answer.
var ErrInvalidTransition = errors.New("invalid review transition")

// Service applies review transitions to answers.
type Service struct {
	logger *observability.Logger
	repos  *storage.Repositories
	audit  *monitoring.AuditLogger
}

// NewService creates a review service.
func NewService(logger *observability.Logger, repos *storage.Repositories, audit *monitoring.AuditLogger) *Service {
	return &Service{
		logger: logger,
		repos:  repos,
		audit:  audit,
	}
}

// Approve accepts an answer under review. Rejecting it later requires a
// fresh transition; the approval itself is recorded as a version snapshot.
func (s *Service) Approve(ctx context.Context, tenantID, answerID uuid.UUID, reviewer, notes string) (*storage.Answer, error) {
	return s.transition(ctx, tenantID, answerID, transitionRequest{
		change:   storage.ChangeTypeApprove,
		toStatus: storage.AnswerStatusApproved,
		from:     []storage.AnswerStatus{storage.AnswerStatusPendingReview, storage.AnswerStatusEdited},
		reviewer: reviewer,
		notes:    notes,
	})
}

// Reject marks an answer as rejected. The answer and its history stay in
// place; removal is a separate, explicit delete.
func (s *Service) Reject(ctx context.Context, tenantID, answerID uuid.UUID, reviewer, notes string) (*storage.Answer, error) {
	return s.transition(ctx, tenantID, answerID, transitionRequest{
		change:   storage.ChangeTypeReject,
		toStatus: storage.AnswerStatusRejected,
		from:     []storage.AnswerStatus{storage.AnswerStatusPendingReview, storage.AnswerStatusEdited},
		reviewer: reviewer,
		notes:    notes,
	})
}

// Edit replaces the answer text. Editing is allowed from any state, which
// is how a rejected answer re-enters review.
func (s *Service) Edit(ctx context.Context, tenantID, answerID uuid.UUID, newText, editor, reason string) (*storage.Answer, error) {
	if strings.TrimSpace(newText) == "" {
		return nil, fmt.Errorf("edited text must not be empty")
	}
	return s.transition(ctx, tenantID, answerID, transitionRequest{
		change:   storage.ChangeTypeEdit,
		toStatus: storage.AnswerStatusEdited,
		newText:  newText,
		reviewer: editor,
		notes:    reason,
	})
}

// History returns the stored version snapshots for an answer.
func (s *Service) History(ctx context.Context, tenantID, answerID uuid.UUID) ([]*storage.AnswerVersion, error) {
	if _, err := s.repos.Answers.GetByID(ctx, tenantID, answerID); err != nil {
		return nil, err
	}
	return s.repos.AnswerVersions.ListByAnswer(ctx, answerID)
}

type transitionRequest struct {
	change   storage.ChangeType
	toStatus storage.AnswerStatus
	from     []storage.AnswerStatus
	newText  string
	reviewer string
	notes    string
}

func (s *Service) transition(ctx context.Context, tenantID, answerID uuid.UUID, req transitionRequest) (*storage.Answer, error) {
	answer, err := s.repos.Answers.GetByID(ctx, tenantID, answerID)
	if err != nil {
		return nil, err
	}

	if len(req.from) > 0 && !statusIn(answer.Status, req.from) {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, req.change, answer.Status)
	}

	// Snapshot pre-transition content under the current version number.
	snapshot := &storage.AnswerVersion{
		AnswerID:      answer.ID,
		VersionNumber: answer.Version,
		Text:          answer.Text,
		Status:        answer.Status,
		ChangeType:    req.change,
	}
	if req.reviewer != "" {
		snapshot.ChangedBy = &req.reviewer
	}
	if req.notes != "" {
		snapshot.ChangeNotes = &req.notes
	}
	if req.change == storage.ChangeTypeEdit {
		if diff := Diff(answer.Text, req.newText); diff != "" {
			snapshot.Diff = &diff
		}
	}
	if err := s.repos.AnswerVersions.Create(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("snapshot version %d: %w", answer.Version, err)
	}

	answer.Status = req.toStatus
	answer.Version++
	if req.change == storage.ChangeTypeEdit {
		answer.Text = req.newText
	}
	if req.reviewer != "" {
		answer.ReviewedBy = &req.reviewer
	}
	if req.notes != "" {
		answer.ReviewNotes = &req.notes
	}
	if err := s.repos.Answers.Update(ctx, answer); err != nil {
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	if err := s.repos.Questions.UpdateStatus(ctx, answer.QuestionID, questionStatusFor(req.toStatus)); err != nil {
		return nil, fmt.Errorf("update question status: %w", err)
	}

	if err := s.audit.LogReview(ctx, tenantID, answer.ID, req.change, req.reviewer, answer.Version); err != nil {
		s.logger.Warn().Err(err).Str("answer_id", answer.ID.String()).Msg("Failed to record audit event")
	}

	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("answer_id", answer.ID.String()).
		Str("change", string(req.change)).
		Int("version", answer.Version).
		Msg("Review transition applied")
	return answer, nil
}

func questionStatusFor(status storage.AnswerStatus) storage.QuestionStatus {
	switch status {
	case storage.AnswerStatusApproved:
		return storage.QuestionStatusApproved
	case storage.AnswerStatusRejected:
		return storage.QuestionStatusRejected
	default:
		return storage.QuestionStatusAnswered
	}
}

func statusIn(status storage.AnswerStatus, allowed []storage.AnswerStatus) bool {
	for _, s := range allowed {
		if status == s {
			return true
		}
	}
	return false
}
