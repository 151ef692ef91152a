package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/generation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/ingest"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/jobs"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/monitoring"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// DocumentHandler handles document registration, status, and deletion.
type DocumentHandler struct {
	logger      *observability.Logger
	repos       *storage.Repositories
	pipeline    *ingest.Pipeline
	queue       *jobs.Queue
	secrets     *secrets.Store
	audit       *monitoring.AuditLogger
	newEmbedder generation.EmbedderFactory
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(
	logger *observability.Logger,
	repos *storage.Repositories,
	pipeline *ingest.Pipeline,
	queue *jobs.Queue,
	secretStore *secrets.Store,
	audit *monitoring.AuditLogger,
	newEmbedder generation.EmbedderFactory,
) *DocumentHandler {
	return &DocumentHandler{
		logger:      logger,
		repos:       repos,
		pipeline:    pipeline,
		queue:       queue,
		secrets:     secretStore,
		audit:       audit,
		newEmbedder: newEmbedder,
	}
}

// RegisterDocumentRequest is the payload for document registration.
type RegisterDocumentRequest struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"contentType,omitempty"`
	ContentBase64 string `json:"contentBase64"`
}

// RegisterDocumentResponse returns the registered document and its indexing job.
type RegisterDocumentResponse struct {
	Document *storage.Document `json:"document"`
	JobID    string            `json:"jobId"`
}

// Register handles POST /tenants/{tenantID}/projects/{projectID}/documents.
// Registration dedups on content hash and enqueues an indexing job.
func (h *DocumentHandler) Register(w http.ResponseWriter, r *http.Request) {
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

	var req RegisterDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required", "")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "contentBase64 is not valid base64", err.Error())
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, "document content is empty", "")
		return
	}

	if _, err := h.repos.Projects.GetByID(ctx, tenantID, projectID); err != nil {
		writeStorageError(w, err)
		return
	}

	// Resolve the provider credential before accepting the job so a missing
	// key fails the request, not the background worker.
	embedder, err := h.embedderFor(ctx, tenantID)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	doc := &storage.Document{
		TenantID:    tenantID,
		ProjectID:   projectID,
		Filename:    req.Filename,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		ContentHash: ingest.ContentHash(content),
	}
	if err := h.repos.Documents.Create(ctx, doc); err != nil {
		writeStorageError(w, err)
		return
	}

	jobID, err := h.queue.Submit(jobs.KindIndexDocument, jobs.IndexKey(doc.ID), func(jobCtx context.Context, report func(float64, string)) error {
		_, err := h.pipeline.Index(jobCtx, ingest.IndexRequest{
			TenantID:  tenantID,
			ProjectID: projectID,
			Document:  doc,
			Content:   content,
			Embedder:  embedder,
			Progress:  ingest.ProgressFunc(report),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, jobs.ErrJobConflict) {
			writeError(w, http.StatusConflict, "indexing already in progress for this document", jobID.String())
			return
		}
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, RegisterDocumentResponse{
		Document: doc,
		JobID:    jobID.String(),
	})
}

// Get handles GET /tenants/{tenantID}/documents/{documentID}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	documentID, ok := pathUUID(r, "documentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id", "")
		return
	}

	doc, err := h.repos.Documents.GetByID(r.Context(), tenantID, documentID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// List handles GET /tenants/{tenantID}/projects/{projectID}/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
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

	docs, err := h.repos.Documents.ListByProject(r.Context(), tenantID, projectID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// Delete handles DELETE /tenants/{tenantID}/documents/{documentID}. Deletion
// is refused while any answer still cites the document.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	documentID, ok := pathUUID(r, "documentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id", "")
		return
	}

	doc, err := h.repos.Documents.GetByID(ctx, tenantID, documentID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if err := h.repos.Documents.Delete(ctx, tenantID, documentID); err != nil {
		writeStorageError(w, err)
		return
	}
	if err := h.pipeline.RemoveDocument(ctx, tenantID, doc.ProjectID, documentID); err != nil {
		h.logger.Warn().Err(err).Str("document_id", documentID.String()).Msg("Failed to drop document vectors")
	}
	if err := h.audit.LogDocumentDeleted(ctx, tenantID, doc.ProjectID, documentID, "api"); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to record document deletion")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) embedderFor(ctx context.Context, tenantID uuid.UUID) (embedding.Embedder, error) {
	if h.secrets == nil {
		return nil, secrets.ErrNotConfigured
	}
	apiKey, err := h.secrets.Resolve(ctx, tenantID, generation.Provider)
	if err != nil {
		return nil, err
	}
	return h.newEmbedder(apiKey)
}
