package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"smartdoc/internal/apperr"
)

const maxPatchBytes = 16 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetSettings returns the tuning row with the API key masked.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.svc.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load settings", "error", err)
		apperr.WriteError(ctx, w, "INTERNAL_ERROR", "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeMasked(w, r, s)
}

// UpdateSettings applies a partial update and returns the result.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBytes))
	dec.DisallowUnknownFields()
	var p Patch
	if err := dec.Decode(&p); err != nil {
		apperr.Write(ctx, w, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}

	s, err := h.svc.Apply(ctx, p)
	if err != nil {
		slog.ErrorContext(ctx, "failed to update settings", "error", err)
		apperr.Write(ctx, w, err)
		return
	}
	slog.InfoContext(ctx, "settings updated",
		"vector_weight", s.VectorWeight, "lexical_weight", s.LexicalWeight,
		"top_k", s.TopK, "context_size", s.ContextSize,
	)
	writeMasked(w, r, s)
}

func writeMasked(w http.ResponseWriter, r *http.Request, s *Settings) {
	out := *s
	out.GeminiAPIKey = s.MaskedKey()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": out}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
