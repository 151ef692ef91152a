package engine

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an organization using the answer engine.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	PlanTier  string    `json:"plan_tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project scopes documents and questionnaires within a tenant.
type Project struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Document is a registered corpus document and its indexing state.
type Document struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	ProjectID    uuid.UUID `json:"project_id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentHash  string    `json:"content_hash"`
	Status       string    `json:"status"`
	ChunkCount   int       `json:"chunk_count"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Question is one questionnaire entry.
type Question struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Text        string    `json:"text"`
	Category    *string   `json:"category,omitempty"`
	Number      int       `json:"number"`
	GroundTruth *string   `json:"ground_truth,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Answer is a generated answer in its current review state.
type Answer struct {
	ID                uuid.UUID `json:"id"`
	QuestionID        uuid.UUID `json:"question_id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	Text              string    `json:"text"`
	Status            string    `json:"status"`
	Version           int       `json:"version"`
	ConfidenceOverall float64   `json:"confidence_overall"`
	ConfidenceDetail  *string   `json:"confidence_detail,omitempty"`
	ReviewedBy        *string   `json:"reviewed_by,omitempty"`
	ReviewNotes       *string   `json:"review_notes,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Citation links an answer marker like [2] back to its source chunk.
type Citation struct {
	ID         uuid.UUID `json:"id"`
	AnswerID   uuid.UUID `json:"answer_id"`
	ChunkID    uuid.UUID `json:"chunk_id"`
	Marker     int       `json:"marker"`
	Order      int       `json:"citation_order"`
	Excerpt    string    `json:"excerpt"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	PageNumber int       `json:"page_number"`
	ChunkIndex int       `json:"chunk_index"`
}

// AnswerVersion is one snapshot in an answer's version history.
type AnswerVersion struct {
	ID            uuid.UUID `json:"id"`
	AnswerID      uuid.UUID `json:"answer_id"`
	VersionNumber int       `json:"version_number"`
	Text          string    `json:"text"`
	Status        string    `json:"status"`
	ChangeType    string    `json:"change_type"`
	ChangedBy     *string   `json:"changed_by,omitempty"`
	ChangeNotes   *string   `json:"change_notes,omitempty"`
	Diff          *string   `json:"diff,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Metrics holds evaluation scores for one answer. Metric pointers are nil
// when no ground truth exists or a metric could not be computed.
type Metrics struct {
	HasGroundTruth     bool     `json:"has_ground_truth"`
	BLEU               *float64 `json:"bleu_score,omitempty"`
	Rouge1F1           *float64 `json:"rouge1_f1,omitempty"`
	Rouge2F1           *float64 `json:"rouge2_f1,omitempty"`
	RougeLF1           *float64 `json:"rougel_f1,omitempty"`
	SemanticSimilarity *float64 `json:"semantic_similarity,omitempty"`
	Overall            *float64 `json:"overall_score,omitempty"`
	Cached             bool     `json:"cached,omitempty"`
}

// Job statuses reported by the job polling API.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobCanceled  = "canceled"
)

// Job is a snapshot of an asynchronous indexing or generation run. Progress
// only moves forward; terminal statuses are sticky.
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Kind       string     `json:"kind"`
	Key        string     `json:"key"`
	Status     string     `json:"status"`
	Progress   float64    `json:"progress"`
	Stage      string     `json:"stage"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobSucceeded, JobFailed, JobCanceled:
		return true
	}
	return false
}
