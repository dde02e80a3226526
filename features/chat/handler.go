// Package chat serves the document question endpoint.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"smartdoc/internal/apperr"
	"smartdoc/internal/conversation"
)

// Asker is satisfied by conversation.Router.
type Asker interface {
	Ask(ctx context.Context, docID, question string) (*conversation.Reply, error)
}

type Handler struct {
	asker Asker
}

func NewHandler(a Asker) *Handler {
	return &Handler{asker: a}
}

type askRequest struct {
	DocID      string `json:"doc_id"`
	DocumentID string `json:"documentId"`
	Question   string `json:"question"`
}

// Ask handles POST /api/document/ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(ctx, w, fmt.Errorf("%w: invalid JSON body", apperr.ErrInvalidInput))
		return
	}
	docID := req.DocID
	if docID == "" {
		docID = req.DocumentID
	}

	reply, err := h.asker.Ask(ctx, docID, req.Question)
	if err != nil {
		var violation *conversation.PolicyViolation
		if errors.As(err, &violation) {
			slog.InfoContext(ctx, "question rejected by policy", "doc_id", docID)
			apperr.WriteErrorWith(ctx, w, apperr.Code(err), violation.Message, http.StatusUnprocessableEntity,
				map[string]interface{}{"answer": violation.Message})
			return
		}
		slog.ErrorContext(ctx, "ask failed", "doc_id", docID, "error", err)
		apperr.Write(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
