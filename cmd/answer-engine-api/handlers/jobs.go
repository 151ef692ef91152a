package handlers

import (
	"net/http"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/jobs"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
)

// JobHandler exposes job polling and cancellation.
type JobHandler struct {
	logger *observability.Logger
	queue  *jobs.Queue
}

// NewJobHandler creates a new job handler.
func NewJobHandler(logger *observability.Logger, queue *jobs.Queue) *JobHandler {
	return &JobHandler{logger: logger, queue: queue}
}

// Get handles GET /jobs/{jobID}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathUUID(r, "jobID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}

	snapshot, err := h.queue.Get(jobID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Cancel handles POST /jobs/{jobID}/cancel. Canceling a finished job is a
// no-op and still returns the job's final state.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathUUID(r, "jobID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}

	if err := h.queue.Cancel(jobID); err != nil {
		writeStorageError(w, err)
		return
	}
	snapshot, err := h.queue.Get(jobID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
