package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
)

// KeyValidator probes a candidate API key against the provider.
type KeyValidator func(ctx context.Context, apiKey string) error

// CredentialHandler manages per-tenant provider credentials. Plaintext keys
// go in and never come back out; reads return the stored hint only.
type CredentialHandler struct {
	logger   *observability.Logger
	secrets  *secrets.Store
	validate KeyValidator
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(logger *observability.Logger, secretStore *secrets.Store, validate KeyValidator) *CredentialHandler {
	return &CredentialHandler{logger: logger, secrets: secretStore, validate: validate}
}

// SaveCredentialRequest carries a provider API key. When Validate is set the
// key is checked against the provider before it is stored.
type SaveCredentialRequest struct {
	APIKey   string `json:"apiKey"`
	Validate bool   `json:"validate,omitempty"`
}

// CredentialResponse describes a stored credential without its key material.
type CredentialResponse struct {
	Provider string `json:"provider"`
	KeyHint  string `json:"keyHint"`
}

// Save handles PUT /tenants/{tenantID}/settings/credentials/{provider}.
func (h *CredentialHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h.secrets == nil {
		writeError(w, http.StatusServiceUnavailable, "credential store is disabled", "master key not configured")
		return
	}
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	provider := chi.URLParam(r, "provider")

	var req SaveCredentialRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "apiKey is required", "")
		return
	}

	if req.Validate && h.validate != nil {
		if err := h.validate(r.Context(), req.APIKey); err != nil {
			h.logger.Warn().Str("tenant_id", tenantID.String()).Str("provider", provider).Err(err).
				Msg("Credential validation failed")
			writeError(w, http.StatusUnprocessableEntity, "api key validation failed", err.Error())
			return
		}
	}

	if err := h.secrets.Save(r.Context(), tenantID, provider, req.APIKey); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": provider, "status": "saved"})
}

// Get handles GET /tenants/{tenantID}/settings/credentials/{provider}.
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.secrets == nil {
		writeError(w, http.StatusServiceUnavailable, "credential store is disabled", "master key not configured")
		return
	}
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	provider := chi.URLParam(r, "provider")

	creds, err := h.secrets.List(r.Context(), tenantID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	for _, cred := range creds {
		if cred.Provider == provider {
			writeJSON(w, http.StatusOK, CredentialResponse{
				Provider: cred.Provider,
				KeyHint:  cred.KeyHint,
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no credential configured for provider", "")
}

// Delete handles DELETE /tenants/{tenantID}/settings/credentials/{provider}.
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.secrets == nil {
		writeError(w, http.StatusServiceUnavailable, "credential store is disabled", "master key not configured")
		return
	}
	tenantID, ok := pathUUID(r, "tenantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id", "")
		return
	}
	provider := chi.URLParam(r, "provider")

	if err := h.secrets.Delete(r.Context(), tenantID, provider); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
