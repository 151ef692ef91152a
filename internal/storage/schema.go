package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Open opens a database handle for the configured driver. Callers import the
// driver they need; the schema below sticks to types both sqlite and postgres
// understand.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}

// EnsureSchema creates all tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		plan_tier TEXT NOT NULL DEFAULT 'sandbox',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		name TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		project_id TEXT NOT NULL REFERENCES projects(id),
		filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(tenant_id, project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(project_id, content_hash)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		tenant_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		page_number INTEGER NOT NULL DEFAULT 1,
		start_char INTEGER NOT NULL DEFAULT 0,
		end_char INTEGER NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		embedding TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (document_id, chunk_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(tenant_id, project_id)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		project_id TEXT NOT NULL REFERENCES projects(id),
		text TEXT NOT NULL,
		category TEXT,
		number INTEGER NOT NULL DEFAULT 0,
		ground_truth TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_project ON questions(tenant_id, project_id)`,
	`CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL REFERENCES questions(id),
		tenant_id TEXT NOT NULL,
		text TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending_review',
		version INTEGER NOT NULL DEFAULT 1,
		confidence_overall REAL NOT NULL DEFAULT 0,
		confidence_detail TEXT,
		reviewed_by TEXT,
		review_notes TEXT,
		generated_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id)`,
	`CREATE TABLE IF NOT EXISTS citations (
		id TEXT PRIMARY KEY,
		answer_id TEXT NOT NULL REFERENCES answers(id),
		chunk_id TEXT NOT NULL REFERENCES chunks(id),
		marker INTEGER NOT NULL,
		citation_order INTEGER NOT NULL DEFAULT 0,
		excerpt TEXT NOT NULL,
		similarity REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_citations_answer ON citations(answer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_citations_chunk ON citations(chunk_id)`,
	`CREATE TABLE IF NOT EXISTS answer_versions (
		id TEXT PRIMARY KEY,
		answer_id TEXT NOT NULL REFERENCES answers(id),
		version_number INTEGER NOT NULL,
		text TEXT NOT NULL,
		status TEXT NOT NULL,
		change_type TEXT NOT NULL,
		changed_by TEXT,
		change_notes TEXT,
		diff TEXT,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (answer_id, version_number)
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		provider TEXT NOT NULL,
		ciphertext TEXT NOT NULL,
		key_hint TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		project_id TEXT,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		actor TEXT,
		detail TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_events(tenant_id, resource_id)`,
}
