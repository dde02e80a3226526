package job

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"smartdoc/internal/apperr"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// List answers GET /jobs/failed?doc_id=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f := Filter{DocID: r.URL.Query().Get("doc_id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apperr.WriteError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	jobs, err := h.service.List(ctx, f)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		apperr.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs), "limit": f.limit()},
	})
}

// Retry answers POST /jobs/{id}/retry. The re-index runs in the background,
// so success is 202.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	docID, err := h.service.Retry(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err)
		apperr.Write(ctx, w, err)
		return
	}
	slog.InfoContext(ctx, "failed job re-dispatched", "id", id, "doc_id", docID)

	writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{"id": id, "doc_id": docID, "dispatched": true},
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
