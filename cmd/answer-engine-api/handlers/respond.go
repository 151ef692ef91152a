// Package handlers provides HTTP handlers for the Answer Engine API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/jobs"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/review"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

// writeStorageError maps domain errors onto HTTP status codes.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found", "")
	case errors.Is(err, storage.ErrDuplicateDocument):
		writeError(w, http.StatusConflict, "document with identical content already indexed", "")
	case errors.Is(err, storage.ErrCitationsExist):
		writeError(w, http.StatusConflict, "document is cited by existing answers", "")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "conflicting write", "")
	case errors.Is(err, storage.ErrInvalidTenant):
		writeError(w, http.StatusBadRequest, "tenant is required", "")
	case errors.Is(err, review.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "answer state does not allow this action", err.Error())
	case errors.Is(err, secrets.ErrNotConfigured):
		writeError(w, http.StatusPreconditionFailed, "no provider credential configured for tenant", "")
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "")
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
