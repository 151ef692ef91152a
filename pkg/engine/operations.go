package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CreateTenantRequest registers a new tenant.
type CreateTenantRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	PlanTier string `json:"planTier,omitempty"`
}

// CreateTenant registers a tenant.
func (c *Client) CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error) {
	var tenant Tenant
	if err := c.do(ctx, http.MethodPost, "/api/v1/tenants", req, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

// CreateProjectRequest creates a project inside a tenant.
type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, tenantID uuid.UUID, req CreateProjectRequest) (*Project, error) {
	var project Project
	path := fmt.Sprintf("/api/v1/tenants/%s/projects", tenantID)
	if err := c.do(ctx, http.MethodPost, path, req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// RegisterDocumentResponse is the accepted-for-indexing response.
type RegisterDocumentResponse struct {
	Document *Document `json:"document"`
	JobID    string    `json:"jobId"`
}

// RegisterDocument uploads document content and submits an indexing job.
// Identical content in the same project is rejected with a conflict.
func (c *Client) RegisterDocument(ctx context.Context, tenantID, projectID uuid.UUID, filename, contentType string, content []byte) (*RegisterDocumentResponse, error) {
	body := map[string]string{
		"filename":      filename,
		"contentType":   contentType,
		"contentBase64": base64.StdEncoding.EncodeToString(content),
	}
	var resp RegisterDocumentResponse
	path := fmt.Sprintf("/api/v1/tenants/%s/projects/%s/documents", tenantID, projectID)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDocument fetches a document with its indexing status and chunk count.
func (c *Client) GetDocument(ctx context.Context, tenantID, documentID uuid.UUID) (*Document, error) {
	var doc Document
	path := fmt.Sprintf("/api/v1/tenants/%s/documents/%s", tenantID, documentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document and its chunks. Deletion is refused
// while approved answers cite the document.
func (c *Client) DeleteDocument(ctx context.Context, tenantID, documentID uuid.UUID) error {
	path := fmt.Sprintf("/api/v1/tenants/%s/documents/%s", tenantID, documentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateQuestionRequest adds one question to a project.
type CreateQuestionRequest struct {
	Text        string  `json:"text"`
	Category    *string `json:"category,omitempty"`
	Number      int     `json:"number,omitempty"`
	GroundTruth *string `json:"groundTruth,omitempty"`
}

// CreateQuestion adds a question.
func (c *Client) CreateQuestion(ctx context.Context, tenantID, projectID uuid.UUID, req CreateQuestionRequest) (*Question, error) {
	var question Question
	path := fmt.Sprintf("/api/v1/tenants/%s/projects/%s/questions", tenantID, projectID)
	if err := c.do(ctx, http.MethodPost, path, req, &question); err != nil {
		return nil, err
	}
	return &question, nil
}

// BulkCreateQuestions imports a whole questionnaire in one call. Questions
// without an explicit number are numbered by position.
func (c *Client) BulkCreateQuestions(ctx context.Context, tenantID, projectID uuid.UUID, questions []CreateQuestionRequest) ([]*Question, error) {
	body := map[string][]CreateQuestionRequest{"questions": questions}
	var resp struct {
		Questions []*Question `json:"questions"`
	}
	path := fmt.Sprintf("/api/v1/tenants/%s/projects/%s/questions/bulk", tenantID, projectID)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// ListQuestions lists a project's questions, optionally filtered by status.
func (c *Client) ListQuestions(ctx context.Context, tenantID, projectID uuid.UUID, status string) ([]*Question, error) {
	var resp struct {
		Questions []*Question `json:"questions"`
	}
	path := fmt.Sprintf("/api/v1/tenants/%s/projects/%s/questions", tenantID, projectID)
	if status != "" {
		path += "?status=" + status
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// DeleteQuestion removes a question together with its answers and history.
func (c *Client) DeleteQuestion(ctx context.Context, tenantID, questionID uuid.UUID) error {
	path := fmt.Sprintf("/api/v1/tenants/%s/questions/%s", tenantID, questionID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Generate submits an answer-generation job for a question and returns the
// job id to poll. A second call while one is in flight returns a conflict.
func (c *Client) Generate(ctx context.Context, tenantID, questionID uuid.UUID) (string, error) {
	var resp struct {
		JobID string `json:"jobId"`
	}
	path := fmt.Sprintf("/api/v1/tenants/%s/questions/%s/generate", tenantID, questionID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// AnswerWithCitations is an answer joined with its ordered citations.
type AnswerWithCitations struct {
	Answer    *Answer     `json:"answer"`
	Citations []*Citation `json:"citations"`
}

// GetAnswer fetches the current answer for a question with its citations.
func (c *Client) GetAnswer(ctx context.Context, tenantID, questionID uuid.UUID) (*AnswerWithCitations, error) {
	var resp AnswerWithCitations
	path := fmt.Sprintf("/api/v1/tenants/%s/questions/%s/answer", tenantID, questionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviewRequest applies a review action to an answer.
type ReviewRequest struct {
	// Action is approve, reject, or edit.
	Action     string `json:"action"`
	EditedText string `json:"editedText,omitempty"`
	Reviewer   string `json:"reviewer"`
	Notes      string `json:"notes,omitempty"`
}

// Review approves, rejects, or edits an answer and returns its new state.
func (c *Client) Review(ctx context.Context, tenantID, answerID uuid.UUID, req ReviewRequest) (*Answer, error) {
	var answer Answer
	path := fmt.Sprintf("/api/v1/tenants/%s/answers/%s/review", tenantID, answerID)
	if err := c.do(ctx, http.MethodPost, path, req, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Versions fetches an answer's version history, oldest first.
func (c *Client) Versions(ctx context.Context, tenantID, answerID uuid.UUID) ([]*AnswerVersion, error) {
	var resp struct {
		Versions []*AnswerVersion `json:"versions"`
	}
	path := fmt.Sprintf("/api/v1/tenants/%s/answers/%s/versions", tenantID, answerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// Evaluate scores an answer against its question's ground truth. All
// metric fields are null when no ground truth exists.
func (c *Client) Evaluate(ctx context.Context, tenantID, answerID uuid.UUID) (*Metrics, error) {
	var metrics Metrics
	path := fmt.Sprintf("/api/v1/tenants/%s/answers/%s/evaluate", tenantID, answerID)
	if err := c.do(ctx, http.MethodPost, path, nil, &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

// SaveCredential stores a provider API key for the tenant.
func (c *Client) SaveCredential(ctx context.Context, tenantID uuid.UUID, provider, apiKey string) error {
	body := map[string]string{"apiKey": apiKey}
	path := fmt.Sprintf("/api/v1/tenants/%s/settings/credentials/%s", tenantID, provider)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// DeleteCredential removes a tenant's provider credential.
func (c *Client) DeleteCredential(ctx context.Context, tenantID uuid.UUID, provider string) error {
	path := fmt.Sprintf("/api/v1/tenants/%s/settings/credentials/%s", tenantID, provider)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetJob polls one job's snapshot.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CancelJob requests cancellation and returns the job's resulting state.
// Canceling an already finished job is a no-op.
func (c *Client) CancelJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitForJob polls a job until it reaches a terminal status or ctx expires.
// A zero interval polls every second.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
