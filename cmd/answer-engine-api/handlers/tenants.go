package handlers

import (
	"net/http"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// TenantHandler handles tenant and project bootstrap.
type TenantHandler struct {
	logger *observability.Logger
	repos  *storage.Repositories
}

// NewTenantHandler creates a new tenant handler.
func NewTenantHandler(logger *observability.Logger, repos *storage.Repositories) *TenantHandler {
	return &TenantHandler{logger: logger, repos: repos}
}

// CreateTenantRequest is the payload for tenant creation.
type CreateTenantRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	PlanTier string `json:"planTier,omitempty"`
}

// CreateProjectRequest is the payload for project creation.
type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Create handles POST /tenants.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Name == "" || req.Slug == "" {
		writeError(w, http.StatusBadRequest, "name and slug are required", "")
		return
	}

	tenant := &storage.Tenant{
		Name:     req.Name,
		Slug:     req.Slug,
		PlanTier: storage.PlanTier(req.PlanTier),
	}
	if err := h.repos.Tenants.Create(r.Context(), tenant); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

// Get handles GET /tenants/{tenantID}.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}

	tenant, err := h.repos.Tenants.GetByID(r.Context(), tenantID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// CreateProject handles POST /tenants/{tenantID}/projects.
func (h *TenantHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}

	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", "")
		return
	}
	if _, err := h.repos.Tenants.GetByID(ctx, tenantID); err != nil {
		writeStorageError(w, err)
		return
	}

	project := &storage.Project{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.repos.Projects.Create(ctx, project); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// ListProjects handles GET /tenants/{tenantID}/projects.
func (h *TenantHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}

	projects, err := h.repos.Projects.ListByTenant(r.Context(), tenantID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}
