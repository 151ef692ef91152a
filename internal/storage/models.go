// Package storage provides database models and repositories for the Answer Engine.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier represents tenant subscription tiers.
type PlanTier string

const (
	PlanTierSandbox    PlanTier = "sandbox"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

// DocumentStatus represents the indexing lifecycle of a source document.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// QuestionStatus represents where a questionnaire item sits in the answering flow.
type QuestionStatus string

const (
	QuestionStatusPending    QuestionStatus = "pending"
	QuestionStatusProcessing QuestionStatus = "processing"
	QuestionStatusAnswered   QuestionStatus = "answered"
	QuestionStatusApproved   QuestionStatus = "approved"
	QuestionStatusRejected   QuestionStatus = "rejected"
)

// AnswerStatus represents the review state of a generated answer.
type AnswerStatus string

const (
	AnswerStatusDraft         AnswerStatus = "draft"
	AnswerStatusPendingReview AnswerStatus = "pending_review"
	AnswerStatusApproved      AnswerStatus = "approved"
	AnswerStatusRejected      AnswerStatus = "rejected"
	AnswerStatusEdited        AnswerStatus = "edited"
)

// ChangeType classifies the transition that produced an answer version snapshot.
type ChangeType string

const (
	ChangeTypeEdit    ChangeType = "edit"
	ChangeTypeApprove ChangeType = "approve"
	ChangeTypeReject  ChangeType = "reject"
)

// Tenant represents an organization using the answer engine.
type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	PlanTier  PlanTier  `json:"plan_tier" db:"plan_tier"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Project scopes documents and questionnaires within a tenant. Retrieval
// never crosses a project boundary.
type Project struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TenantID    uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Document represents an uploaded source document tracked through indexing.
type Document struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	TenantID     uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	ProjectID    uuid.UUID      `json:"project_id" db:"project_id"`
	Filename     string         `json:"filename" db:"filename"`
	ContentType  string         `json:"content_type" db:"content_type"`
	SizeBytes    int64          `json:"size_bytes" db:"size_bytes"`
	ContentHash  string         `json:"content_hash" db:"content_hash"`
	Status       DocumentStatus `json:"status" db:"status"`
	ChunkCount   int            `json:"chunk_count" db:"chunk_count"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous span of extracted document text with its position
// recorded so the original page can always be located from a citation.
type Chunk struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ProjectID  uuid.UUID `json:"project_id" db:"project_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Text       string    `json:"text" db:"text"`
	PageNumber int       `json:"page_number" db:"page_number"`
	StartChar  int       `json:"start_char" db:"start_char"`
	EndChar    int       `json:"end_char" db:"end_char"`
	TokenCount int       `json:"token_count" db:"token_count"`
	Embedding  []float32 `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Question is a single questionnaire item awaiting an answer.
type Question struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	TenantID    uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	ProjectID   uuid.UUID      `json:"project_id" db:"project_id"`
	Text        string         `json:"text" db:"text"`
	Category    *string        `json:"category,omitempty" db:"category"`
	Number      int            `json:"number" db:"number"`
	GroundTruth *string        `json:"ground_truth,omitempty" db:"ground_truth"`
	Status      QuestionStatus `json:"status" db:"status"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Answer is the current generated or edited answer for a question. Prior
// content lives in AnswerVersion snapshots.
type Answer struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	QuestionID        uuid.UUID    `json:"question_id" db:"question_id"`
	TenantID          uuid.UUID    `json:"tenant_id" db:"tenant_id"`
	Text              string       `json:"text" db:"text"`
	Status            AnswerStatus `json:"status" db:"status"`
	Version           int          `json:"version" db:"version"`
	ConfidenceOverall float64      `json:"confidence_overall" db:"confidence_overall"`
	ConfidenceDetail  *string      `json:"confidence_detail,omitempty" db:"confidence_detail"`
	ReviewedBy        *string      `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNotes       *string      `json:"review_notes,omitempty" db:"review_notes"`
	GeneratedAt       time.Time    `json:"generated_at" db:"generated_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// Citation links an answer marker like [2] back to the chunk that supports
// it. CitationOrder is the marker's first-occurrence rank in the answer
// text, dense from 1, independent of the marker value itself.
type Citation struct {
	ID            uuid.UUID `json:"id" db:"id"`
	AnswerID      uuid.UUID `json:"answer_id" db:"answer_id"`
	ChunkID       uuid.UUID `json:"chunk_id" db:"chunk_id"`
	Marker        int       `json:"marker" db:"marker"`
	CitationOrder int       `json:"citation_order" db:"citation_order"`
	Excerpt       string    `json:"excerpt" db:"excerpt"`
	Similarity    float64   `json:"similarity" db:"similarity"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// CitationDetail is a citation joined with its source chunk and document,
// ready for display.
type CitationDetail struct {
	Citation
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	Filename   string    `json:"filename" db:"filename"`
	PageNumber int       `json:"page_number" db:"page_number"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
}

// AnswerVersion snapshots answer content at the moment a review transition
// replaced it. Version numbers are gapless per answer.
type AnswerVersion struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	AnswerID      uuid.UUID    `json:"answer_id" db:"answer_id"`
	VersionNumber int          `json:"version_number" db:"version_number"`
	Text          string       `json:"text" db:"text"`
	Status        AnswerStatus `json:"status" db:"status"`
	ChangeType    ChangeType   `json:"change_type" db:"change_type"`
	ChangedBy     *string      `json:"changed_by,omitempty" db:"changed_by"`
	ChangeNotes   *string      `json:"change_notes,omitempty" db:"change_notes"`
	Diff          *string      `json:"diff,omitempty" db:"diff"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// Credential stores an encrypted provider API key for a tenant. The
// ciphertext is sealed with the server master key and never leaves storage
// in clear form.
type Credential struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Provider   string    `json:"provider" db:"provider"`
	Ciphertext string    `json:"-" db:"ciphertext"`
	KeyHint    string    `json:"key_hint" db:"key_hint"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// AuditEvent records a reviewable action taken against tenant data.
type AuditEvent struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TenantID     uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	Action       string     `json:"action" db:"action"`
	ResourceType string     `json:"resource_type" db:"resource_type"`
	ResourceID   uuid.UUID  `json:"resource_id" db:"resource_id"`
	Actor        *string    `json:"actor,omitempty" db:"actor"`
	Detail       *string    `json:"detail,omitempty" db:"detail"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
