package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("record conflict")
	ErrInvalidTenant     = errors.New("invalid tenant")
	ErrCitationsExist    = errors.New("document chunks are cited by existing answers")
	ErrDuplicateDocument = errors.New("document with identical content already indexed")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TenantRepository handles tenant CRUD operations.
type TenantRepository struct {
	db DB
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(db DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant.
func (r *TenantRepository) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if tenant.PlanTier == "" {
		tenant.PlanTier = PlanTierSandbox
	}
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = time.Now()

	query := `
		INSERT INTO tenants (id, name, slug, plan_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Slug, tenant.PlanTier,
		tenant.CreatedAt, tenant.UpdatedAt,
	)
	return err
}

// GetByID retrieves a tenant by ID.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	query := `
		SELECT id, name, slug, plan_tier, created_at, updated_at
		FROM tenants WHERE id = $1
	`
	tenant := &Tenant{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.PlanTier,
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

// GetBySlug retrieves a tenant by its URL slug.
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `
		SELECT id, name, slug, plan_tier, created_at, updated_at
		FROM tenants WHERE slug = $1
	`
	tenant := &Tenant{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.PlanTier,
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

// ProjectRepository handles project CRUD operations.
type ProjectRepository struct {
	db DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create creates a new project.
func (r *ProjectRepository) Create(ctx context.Context, project *Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	if project.TenantID == uuid.Nil {
		return ErrInvalidTenant
	}
	project.CreatedAt = time.Now()
	project.UpdatedAt = time.Now()

	query := `
		INSERT INTO projects (id, tenant_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		project.ID, project.TenantID, project.Name, project.Description,
		project.CreatedAt, project.UpdatedAt,
	)
	return err
}

// GetByID retrieves a project by ID scoped to a tenant.
func (r *ProjectRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Project, error) {
	query := `
		SELECT id, tenant_id, name, description, created_at, updated_at
		FROM projects WHERE id = $1 AND tenant_id = $2
	`
	project := &Project{}
	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&project.ID, &project.TenantID, &project.Name, &project.Description,
		&project.CreatedAt, &project.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return project, err
}

// ListByTenant lists all projects belonging to a tenant.
func (r *ProjectRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Project, error) {
	query := `
		SELECT id, tenant_id, name, description, created_at, updated_at
		FROM projects WHERE tenant_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project := &Project{}
		if err := rows.Scan(
			&project.ID, &project.TenantID, &project.Name, &project.Description,
			&project.CreatedAt, &project.UpdatedAt,
		); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// DocumentRepository handles document CRUD operations.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create registers a new document. Re-registering content with a hash already
// indexed in the same project fails with ErrDuplicateDocument.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.TenantID == uuid.Nil {
		return ErrInvalidTenant
	}
	if doc.Status == "" {
		doc.Status = DocumentStatusPending
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()

	existing, err := r.GetByHash(ctx, doc.ProjectID, doc.ContentHash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Status != DocumentStatusFailed {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, existing.ID)
	}

	query := `
		INSERT INTO documents (id, tenant_id, project_id, filename, content_type,
			size_bytes, content_hash, status, chunk_count, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		doc.ID, doc.TenantID, doc.ProjectID, doc.Filename, doc.ContentType,
		doc.SizeBytes, doc.ContentHash, doc.Status, doc.ChunkCount,
		doc.ErrorMessage, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetByID retrieves a document by ID scoped to a tenant.
func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Document, error) {
	query := `
		SELECT id, tenant_id, project_id, filename, content_type, size_bytes,
			content_hash, status, chunk_count, error_message, created_at, updated_at
		FROM documents WHERE id = $1 AND tenant_id = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// GetByHash retrieves a document by content hash within a project.
func (r *DocumentRepository) GetByHash(ctx context.Context, projectID uuid.UUID, hash string) (*Document, error) {
	query := `
		SELECT id, tenant_id, project_id, filename, content_type, size_bytes,
			content_hash, status, chunk_count, error_message, created_at, updated_at
		FROM documents WHERE project_id = $1 AND content_hash = $2
		ORDER BY created_at DESC LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, projectID, hash))
}

// ListByProject lists documents in a project, newest first.
func (r *DocumentRepository) ListByProject(ctx context.Context, tenantID, projectID uuid.UUID) ([]*Document, error) {
	query := `
		SELECT id, tenant_id, project_id, filename, content_type, size_bytes,
			content_hash, status, chunk_count, error_message, created_at, updated_at
		FROM documents WHERE tenant_id = $1 AND project_id = $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(
			&doc.ID, &doc.TenantID, &doc.ProjectID, &doc.Filename, &doc.ContentType,
			&doc.SizeBytes, &doc.ContentHash, &doc.Status, &doc.ChunkCount,
			&doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus transitions a document through its indexing lifecycle.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, chunkCount int, errorMessage *string) error {
	query := `
		UPDATE documents SET status = $1, chunk_count = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := r.db.ExecContext(ctx, query, status, chunkCount, errorMessage, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a document and its chunks. The delete is refused with
// ErrCitationsExist while any answer still cites one of the chunks.
func (r *DocumentRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	var cited int
	countQuery := `
		SELECT COUNT(*) FROM citations c
		JOIN chunks ch ON ch.id = c.chunk_id
		WHERE ch.document_id = $1
	`
	if err := r.db.QueryRowContext(ctx, countQuery, id).Scan(&cited); err != nil {
		return err
	}
	if cited > 0 {
		return fmt.Errorf("%w: %d citations", ErrCitationsExist, cited)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, id); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *DocumentRepository) scanOne(row *sql.Row) (*Document, error) {
	doc := &Document{}
	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.ProjectID, &doc.Filename, &doc.ContentType,
		&doc.SizeBytes, &doc.ContentHash, &doc.Status, &doc.ChunkCount,
		&doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// ChunkRepository handles chunk persistence.
type ChunkRepository struct {
	db DB
}

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(db DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// BulkCreate inserts all chunks of a document. Chunk indexes must be unique
// per document; a duplicate index reports ErrConflict.
func (r *ChunkRepository) BulkCreate(ctx context.Context, chunks []*Chunk) error {
	query := `
		INSERT INTO chunks (id, document_id, tenant_id, project_id, chunk_index,
			text, page_number, start_char, end_char, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		chunk.CreatedAt = time.Now()
		vector, err := encodeVector(chunk.Embedding)
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, query,
			chunk.ID, chunk.DocumentID, chunk.TenantID, chunk.ProjectID,
			chunk.ChunkIndex, chunk.Text, chunk.PageNumber,
			chunk.StartChar, chunk.EndChar, chunk.TokenCount, vector, chunk.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: chunk_index %d", ErrConflict, chunk.ChunkIndex)
			}
			return err
		}
	}
	return nil
}

// GetByID retrieves a single chunk.
func (r *ChunkRepository) GetByID(ctx context.Context, id uuid.UUID) (*Chunk, error) {
	query := `
		SELECT id, document_id, tenant_id, project_id, chunk_index, text,
			page_number, start_char, end_char, token_count, embedding, created_at
		FROM chunks WHERE id = $1
	`
	chunk := &Chunk{}
	var vector string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.TenantID, &chunk.ProjectID,
		&chunk.ChunkIndex, &chunk.Text, &chunk.PageNumber,
		&chunk.StartChar, &chunk.EndChar, &chunk.TokenCount, &vector, &chunk.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if chunk.Embedding, err = decodeVector(vector); err != nil {
		return nil, err
	}
	return chunk, nil
}

// GetByIDs retrieves chunks by ID, preserving no particular order.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, document_id, tenant_id, project_id, chunk_index, text,
			page_number, start_char, end_char, token_count, embedding, created_at
		FROM chunks WHERE id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListByDocument lists a document's chunks in index order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, tenant_id, project_id, chunk_index, text,
			page_number, start_char, end_char, token_count, embedding, created_at
		FROM chunks WHERE document_id = $1
		ORDER BY chunk_index
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListByProject lists all chunks in a project, used to rebuild the vector
// index on startup.
func (r *ChunkRepository) ListByProject(ctx context.Context, tenantID, projectID uuid.UUID) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, tenant_id, project_id, chunk_index, text,
			page_number, start_char, end_char, token_count, embedding, created_at
		FROM chunks WHERE tenant_id = $1 AND project_id = $2
		ORDER BY document_id, chunk_index
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// CountByProject counts chunks indexed for a project.
func (r *ChunkRepository) CountByProject(ctx context.Context, tenantID, projectID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM chunks WHERE tenant_id = $1 AND project_id = $2`
	err := r.db.QueryRowContext(ctx, query, tenantID, projectID).Scan(&count)
	return count, err
}

// DeleteByDocument removes all chunks of a document.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

// ListNamespaces returns every (tenant, project) pair holding indexed chunks.
// Used to rebuild the in-memory vector index at startup.
func (r *ChunkRepository) ListNamespaces(ctx context.Context) ([][2]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT tenant_id, project_id FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs [][2]uuid.UUID
	for rows.Next() {
		var tenantID, projectID uuid.UUID
		if err := rows.Scan(&tenantID, &projectID); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]uuid.UUID{tenantID, projectID})
	}
	return pairs, rows.Err()
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		chunk := &Chunk{}
		var vector string
		if err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.TenantID, &chunk.ProjectID,
			&chunk.ChunkIndex, &chunk.Text, &chunk.PageNumber,
			&chunk.StartChar, &chunk.EndChar, &chunk.TokenCount, &vector, &chunk.CreatedAt,
		); err != nil {
			return nil, err
		}
		var err error
		if chunk.Embedding, err = decodeVector(vector); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// encodeVector stores embeddings as JSON text so the schema stays portable
// across sqlite and postgres.
func encodeVector(v []float32) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode vector: %w", err)
	}
	return string(data), nil
}

func decodeVector(s string) ([]float32, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return v, nil
}

// QuestionRepository handles questionnaire item operations.
type QuestionRepository struct {
	db DB
}

// NewQuestionRepository creates a new question repository.
func NewQuestionRepository(db DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create creates a new question.
func (r *QuestionRepository) Create(ctx context.Context, question *Question) error {
	if question.ID == uuid.Nil {
		question.ID = uuid.New()
	}
	if question.TenantID == uuid.Nil {
		return ErrInvalidTenant
	}
	if question.Status == "" {
		question.Status = QuestionStatusPending
	}
	question.CreatedAt = time.Now()
	question.UpdatedAt = time.Now()

	query := `
		INSERT INTO questions (id, tenant_id, project_id, text, category, number, ground_truth, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		question.ID, question.TenantID, question.ProjectID, question.Text,
		question.Category, question.Number, question.GroundTruth, question.Status,
		question.CreatedAt, question.UpdatedAt,
	)
	return err
}

// GetByID retrieves a question by ID scoped to a tenant.
func (r *QuestionRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Question, error) {
	query := `
		SELECT id, tenant_id, project_id, text, category, number, ground_truth, status, created_at, updated_at
		FROM questions WHERE id = $1 AND tenant_id = $2
	`
	question := &Question{}
	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&question.ID, &question.TenantID, &question.ProjectID, &question.Text,
		&question.Category, &question.Number, &question.GroundTruth, &question.Status,
		&question.CreatedAt, &question.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return question, err
}

// ListByProject lists questions in a project, optionally filtered by status.
func (r *QuestionRepository) ListByProject(ctx context.Context, tenantID, projectID uuid.UUID, status QuestionStatus) ([]*Question, error) {
	query := `
		SELECT id, tenant_id, project_id, text, category, number, ground_truth, status, created_at, updated_at
		FROM questions WHERE tenant_id = $1 AND project_id = $2
	`
	args := []interface{}{tenantID, projectID}
	if status != "" {
		query += ` AND status = $3`
		args = append(args, status)
	}
	query += ` ORDER BY number, created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		question := &Question{}
		if err := rows.Scan(
			&question.ID, &question.TenantID, &question.ProjectID, &question.Text,
			&question.Category, &question.Number, &question.GroundTruth, &question.Status,
			&question.CreatedAt, &question.UpdatedAt,
		); err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

// UpdateStatus moves a question through the answering lifecycle.
func (r *QuestionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status QuestionStatus) error {
	query := `UPDATE questions SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a question and everything hanging off it: citations first,
// then version history, then answers, then the question itself.
func (r *QuestionRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	statements := []string{
		`DELETE FROM citations WHERE answer_id IN (SELECT id FROM answers WHERE question_id = $1)`,
		`DELETE FROM answer_versions WHERE answer_id IN (SELECT id FROM answers WHERE question_id = $1)`,
		`DELETE FROM answers WHERE question_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// AnswerRepository handles answer persistence.
type AnswerRepository struct {
	db DB
}

// NewAnswerRepository creates a new answer repository.
func NewAnswerRepository(db DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// Create stores a freshly generated answer at version 1.
func (r *AnswerRepository) Create(ctx context.Context, answer *Answer) error {
	if answer.ID == uuid.Nil {
		answer.ID = uuid.New()
	}
	if answer.Status == "" {
		answer.Status = AnswerStatusPendingReview
	}
	if answer.Version == 0 {
		answer.Version = 1
	}
	answer.GeneratedAt = time.Now()
	answer.UpdatedAt = time.Now()

	query := `
		INSERT INTO answers (id, question_id, tenant_id, text, status, version,
			confidence_overall, confidence_detail, reviewed_by, review_notes, generated_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		answer.ID, answer.QuestionID, answer.TenantID, answer.Text, answer.Status,
		answer.Version, answer.ConfidenceOverall, answer.ConfidenceDetail,
		answer.ReviewedBy, answer.ReviewNotes, answer.GeneratedAt, answer.UpdatedAt,
	)
	return err
}

// GetByID retrieves an answer by ID scoped to a tenant.
func (r *AnswerRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Answer, error) {
	query := answerSelect + ` WHERE id = $1 AND tenant_id = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// GetByQuestion retrieves the current answer for a question.
func (r *AnswerRepository) GetByQuestion(ctx context.Context, questionID uuid.UUID) (*Answer, error) {
	query := answerSelect + ` WHERE question_id = $1 ORDER BY generated_at DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, questionID))
}

// Update persists a review transition: status, text, version and reviewer
// fields together.
func (r *AnswerRepository) Update(ctx context.Context, answer *Answer) error {
	answer.UpdatedAt = time.Now()
	query := `
		UPDATE answers SET text = $1, status = $2, version = $3,
			reviewed_by = $4, review_notes = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		answer.Text, answer.Status, answer.Version,
		answer.ReviewedBy, answer.ReviewNotes, answer.UpdatedAt, answer.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteByQuestion removes a question's answers along with their citations
// and version history, used before regeneration.
func (r *AnswerRepository) DeleteByQuestion(ctx context.Context, questionID uuid.UUID) error {
	statements := []string{
		`DELETE FROM citations WHERE answer_id IN (SELECT id FROM answers WHERE question_id = $1)`,
		`DELETE FROM answer_versions WHERE answer_id IN (SELECT id FROM answers WHERE question_id = $1)`,
		`DELETE FROM answers WHERE question_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt, questionID); err != nil {
			return err
		}
	}
	return nil
}

const answerSelect = `
	SELECT id, question_id, tenant_id, text, status, version,
		confidence_overall, confidence_detail, reviewed_by, review_notes, generated_at, updated_at
	FROM answers
`

func (r *AnswerRepository) scanOne(row *sql.Row) (*Answer, error) {
	answer := &Answer{}
	err := row.Scan(
		&answer.ID, &answer.QuestionID, &answer.TenantID, &answer.Text, &answer.Status,
		&answer.Version, &answer.ConfidenceOverall, &answer.ConfidenceDetail,
		&answer.ReviewedBy, &answer.ReviewNotes, &answer.GeneratedAt, &answer.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return answer, err
}

// CitationRepository handles citation persistence.
type CitationRepository struct {
	db DB
}

// NewCitationRepository creates a new citation repository.
func NewCitationRepository(db DB) *CitationRepository {
	return &CitationRepository{db: db}
}

// BulkCreate inserts an answer's citations.
func (r *CitationRepository) BulkCreate(ctx context.Context, citations []*Citation) error {
	query := `
		INSERT INTO citations (id, answer_id, chunk_id, marker, citation_order, excerpt, similarity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, citation := range citations {
		if citation.ID == uuid.Nil {
			citation.ID = uuid.New()
		}
		citation.CreatedAt = time.Now()
		_, err := r.db.ExecContext(ctx, query,
			citation.ID, citation.AnswerID, citation.ChunkID,
			citation.Marker, citation.CitationOrder, citation.Excerpt, citation.Similarity, citation.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListByAnswer lists an answer's citations joined with source location, in
// first-occurrence order.
func (r *CitationRepository) ListByAnswer(ctx context.Context, answerID uuid.UUID) ([]*CitationDetail, error) {
	query := `
		SELECT c.id, c.answer_id, c.chunk_id, c.marker, c.citation_order, c.excerpt, c.similarity, c.created_at,
			d.id, d.filename, ch.page_number, ch.chunk_index
		FROM citations c
		JOIN chunks ch ON ch.id = c.chunk_id
		JOIN documents d ON d.id = ch.document_id
		WHERE c.answer_id = $1
		ORDER BY c.citation_order
	`
	rows, err := r.db.QueryContext(ctx, query, answerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var citations []*CitationDetail
	for rows.Next() {
		detail := &CitationDetail{}
		if err := rows.Scan(
			&detail.ID, &detail.AnswerID, &detail.ChunkID, &detail.Marker,
			&detail.CitationOrder, &detail.Excerpt, &detail.Similarity, &detail.CreatedAt,
			&detail.DocumentID, &detail.Filename, &detail.PageNumber, &detail.ChunkIndex,
		); err != nil {
			return nil, err
		}
		citations = append(citations, detail)
	}
	return citations, rows.Err()
}

// CountByDocument counts citations pointing at any chunk of a document.
func (r *CitationRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM citations c
		JOIN chunks ch ON ch.id = c.chunk_id
		WHERE ch.document_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&count)
	return count, err
}

// DeleteByAnswer removes an answer's citations.
func (r *CitationRepository) DeleteByAnswer(ctx context.Context, answerID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM citations WHERE answer_id = $1`, answerID)
	return err
}

// AnswerVersionRepository handles answer version history.
type AnswerVersionRepository struct {
	db DB
}

// NewAnswerVersionRepository creates a new answer version repository.
func NewAnswerVersionRepository(db DB) *AnswerVersionRepository {
	return &AnswerVersionRepository{db: db}
}

// Create snapshots answer content under its version number.
func (r *AnswerVersionRepository) Create(ctx context.Context, version *AnswerVersion) error {
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	version.CreatedAt = time.Now()

	query := `
		INSERT INTO answer_versions (id, answer_id, version_number, text, status,
			change_type, changed_by, change_notes, diff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		version.ID, version.AnswerID, version.VersionNumber, version.Text,
		version.Status, version.ChangeType, version.ChangedBy,
		version.ChangeNotes, version.Diff, version.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: version %d", ErrConflict, version.VersionNumber)
	}
	return err
}

// ListByAnswer lists version snapshots oldest first.
func (r *AnswerVersionRepository) ListByAnswer(ctx context.Context, answerID uuid.UUID) ([]*AnswerVersion, error) {
	query := `
		SELECT id, answer_id, version_number, text, status, change_type,
			changed_by, change_notes, diff, created_at
		FROM answer_versions WHERE answer_id = $1
		ORDER BY version_number
	`
	rows, err := r.db.QueryContext(ctx, query, answerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*AnswerVersion
	for rows.Next() {
		version := &AnswerVersion{}
		if err := rows.Scan(
			&version.ID, &version.AnswerID, &version.VersionNumber, &version.Text,
			&version.Status, &version.ChangeType, &version.ChangedBy,
			&version.ChangeNotes, &version.Diff, &version.CreatedAt,
		); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// CountByAnswer counts stored snapshots for an answer.
func (r *AnswerVersionRepository) CountByAnswer(ctx context.Context, answerID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answer_versions WHERE answer_id = $1`, answerID).Scan(&count)
	return count, err
}

// CredentialRepository stores sealed provider keys per tenant.
type CredentialRepository struct {
	db DB
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save replaces the stored credential for a (tenant, provider) pair.
func (r *CredentialRepository) Save(ctx context.Context, cred *Credential) error {
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	cred.CreatedAt = time.Now()
	cred.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE tenant_id = $1 AND provider = $2`,
		cred.TenantID, cred.Provider,
	)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO credentials (id, tenant_id, provider, ciphertext, key_hint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		cred.ID, cred.TenantID, cred.Provider, cred.Ciphertext, cred.KeyHint,
		cred.CreatedAt, cred.UpdatedAt,
	)
	return err
}

// Get retrieves the credential for a (tenant, provider) pair.
func (r *CredentialRepository) Get(ctx context.Context, tenantID uuid.UUID, provider string) (*Credential, error) {
	query := `
		SELECT id, tenant_id, provider, ciphertext, key_hint, created_at, updated_at
		FROM credentials WHERE tenant_id = $1 AND provider = $2
	`
	cred := &Credential{}
	err := r.db.QueryRowContext(ctx, query, tenantID, provider).Scan(
		&cred.ID, &cred.TenantID, &cred.Provider, &cred.Ciphertext, &cred.KeyHint,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cred, err
}

// ListByTenant lists a tenant's configured providers without ciphertext.
func (r *CredentialRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Credential, error) {
	query := `
		SELECT id, tenant_id, provider, '', key_hint, created_at, updated_at
		FROM credentials WHERE tenant_id = $1
		ORDER BY provider
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		cred := &Credential{}
		if err := rows.Scan(
			&cred.ID, &cred.TenantID, &cred.Provider, &cred.Ciphertext, &cred.KeyHint,
			&cred.CreatedAt, &cred.UpdatedAt,
		); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Delete removes the credential for a (tenant, provider) pair.
func (r *CredentialRepository) Delete(ctx context.Context, tenantID uuid.UUID, provider string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE tenant_id = $1 AND provider = $2`,
		tenantID, provider,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// AuditRepository persists audit trail events.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit event.
func (r *AuditRepository) Create(ctx context.Context, event *AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()

	query := `
		INSERT INTO audit_events (id, tenant_id, project_id, action, resource_type,
			resource_id, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.TenantID, event.ProjectID, event.Action,
		event.ResourceType, event.ResourceID, event.Actor, event.Detail, event.CreatedAt,
	)
	return err
}

// ListByResource lists events touching a resource, newest first.
func (r *AuditRepository) ListByResource(ctx context.Context, tenantID, resourceID uuid.UUID) ([]*AuditEvent, error) {
	query := `
		SELECT id, tenant_id, project_id, action, resource_type, resource_id,
			actor, detail, created_at
		FROM audit_events WHERE tenant_id = $1 AND resource_id = $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		event := &AuditEvent{}
		if err := rows.Scan(
			&event.ID, &event.TenantID, &event.ProjectID, &event.Action,
			&event.ResourceType, &event.ResourceID, &event.Actor, &event.Detail,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Repositories bundles all repositories together.
type Repositories struct {
	Tenants        *TenantRepository
	Projects       *ProjectRepository
	Documents      *DocumentRepository
	Chunks         *ChunkRepository
	Questions      *QuestionRepository
	Answers        *AnswerRepository
	Citations      *CitationRepository
	AnswerVersions *AnswerVersionRepository
	Credentials    *CredentialRepository
	Audit          *AuditRepository
}

// NewRepositories creates all repositories with the given database connection.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Tenants:        NewTenantRepository(db),
		Projects:       NewProjectRepository(db),
		Documents:      NewDocumentRepository(db),
		Chunks:         NewChunkRepository(db),
		Questions:      NewQuestionRepository(db),
		Answers:        NewAnswerRepository(db),
		Citations:      NewCitationRepository(db),
		AnswerVersions: NewAnswerVersionRepository(db),
		Credentials:    NewCredentialRepository(db),
		Audit:          NewAuditRepository(db),
	}
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation matches unique constraint errors across the sqlite and
// postgres drivers without importing either here.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
