package document

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"smartdoc/internal/apperr"
	"smartdoc/internal/indexing"
	"smartdoc/internal/vector"
)

const (
	msgDeferred       = "Sensitive data detected; indexing deferred until consent."
	msgEmptyDocument  = "Unsupported or empty document"
	msgInProgress     = "Indexing already in progress for this document."
	msgConsentDecline = "Consent declined. Please upload a cleaned document."
)

type Handler struct {
	indexer Indexer
	consent ConsentStore
	store   vector.Store
	reset   ConversationResetter
	maxBody int64
}

func NewHandler(i Indexer, c ConsentStore, s vector.Store, r ConversationResetter, maxBody int64) *Handler {
	return &Handler{indexer: i, consent: c, store: s, reset: r, maxBody: maxBody}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// indexResponse renders an indexing result. A run that produced no chunks is
// a 400.
func indexResponse(w http.ResponseWriter, r *http.Request, docID, prefix string, res indexing.Result) {
	switch {
	case res.InProgress:
		writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
			"message": msgInProgress, "doc_id": docID, "inProgress": true, "requireConfirmation": false,
		})
	case res.RequireConfirmation:
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"message":             msgDeferred,
			"doc_id":              docID,
			"requireConfirmation": true,
			"sensitiveSummary":    res.Sensitive,
		})
	case !res.Indexed:
		apperr.WriteError(r.Context(), w, "VALIDATION_ERROR", msgEmptyDocument, http.StatusBadRequest)
	default:
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"message":             fmt.Sprintf("%sIndexed %d chunks", prefix, res.Chunks),
			"doc_id":              docID,
			"chunksAdded":         res.Chunks,
			"indexed":             true,
			"requireConfirmation": false,
		})
	}
}

// TriggerIndex handles POST /api/index-from-atlas.
func (h *Handler) TriggerIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req docRef
	if err := h.decode(w, r, &req); err != nil {
		apperr.Write(ctx, w, err)
		return
	}
	docID := req.id()
	if docID == "" {
		apperr.WriteError(ctx, w, "VALIDATION_ERROR", "Missing documentId", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "index requested", "doc_id", docID)
	res, err := h.indexer.IndexNow(ctx, docID)
	if err != nil {
		slog.ErrorContext(ctx, "indexing failed", "doc_id", docID, "error", err)
		apperr.Write(ctx, w, err)
		return
	}
	indexResponse(w, r, docID, "", res)
}

type consentRequest struct {
	docRef
	Consent bool `json:"consent"`
}

// SetConsent handles POST /api/document/consent. Granting consent to a
// document without chunks indexes it immediately.
func (h *Handler) SetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req consentRequest
	if err := h.decode(w, r, &req); err != nil {
		apperr.Write(ctx, w, err)
		return
	}
	docID := req.id()
	if docID == "" {
		apperr.WriteError(ctx, w, "VALIDATION_ERROR", "Missing doc_id", http.StatusBadRequest)
		return
	}

	h.consent.SetConsent(docID, req.Consent)
	slog.InfoContext(ctx, "consent recorded", "doc_id", docID, "consent", req.Consent)

	if !req.Consent {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"message": msgConsentDecline, "requireConfirmation": false})
		return
	}
	if h.store.Has(ctx, docID) {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"message": "Consent recorded.", "requireConfirmation": false})
		return
	}

	res, err := h.indexer.IndexNow(ctx, docID)
	if err != nil {
		slog.ErrorContext(ctx, "indexing after consent failed", "doc_id", docID, "error", err)
		apperr.Write(ctx, w, err)
		return
	}
	indexResponse(w, r, docID, "Consent recorded. ", res)
}

type replaceRequest struct {
	docRef
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// ReplaceText handles POST /api/document/replace-text: the document's chunks
// are rebuilt from the supplied text instead of the stored file.
func (h *Handler) ReplaceText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req replaceRequest
	if err := h.decode(w, r, &req); err != nil {
		apperr.Write(ctx, w, err)
		return
	}
	docID := req.id()
	if docID == "" {
		apperr.WriteError(ctx, w, "VALIDATION_ERROR", "Missing doc_id", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		apperr.WriteError(ctx, w, "VALIDATION_ERROR", "Missing text", http.StatusBadRequest)
		return
	}

	res, err := h.indexer.IndexText(ctx, docID, req.Filename, req.Text)
	if err != nil {
		slog.ErrorContext(ctx, "replace text failed", "doc_id", docID, "error", err)
		apperr.Write(ctx, w, err)
		return
	}
	indexResponse(w, r, docID, "", res)
}

// List handles GET /api/documents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs := h.store.ListDocuments(r.Context())
	out := make([]Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, summarize(d))
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"data": out,
		"meta": map[string]int{"count": len(out)},
	})
}

type renameRequest struct {
	Name string `json:"name"`
}

// Rename handles PUT /api/documents/{id}.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID := r.PathValue("id")

	var req renameRequest
	if err := h.decode(w, r, &req); err != nil {
		apperr.Write(ctx, w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		apperr.WriteError(ctx, w, "VALIDATION_ERROR", "Missing new name", http.StatusBadRequest)
		return
	}

	if err := h.store.Rename(ctx, docID, name); err != nil {
		slog.ErrorContext(ctx, "rename failed", "doc_id", docID, "error", err)
		apperr.Write(ctx, w, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Renamed successfully"})
}

// Delete handles DELETE /api/documents/{id}. Consent records are kept.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID := r.PathValue("id")

	if err := h.store.Delete(ctx, docID); err != nil {
		slog.ErrorContext(ctx, "delete failed", "doc_id", docID, "error", err)
		apperr.Write(ctx, w, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err))
		return
	}
	if h.reset != nil {
		h.reset.Forget(docID)
	}
	slog.InfoContext(ctx, "document deleted", "doc_id", docID)
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Deleted successfully"})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.store.Health(r.Context())
	status, code := "ok", http.StatusOK
	if !health.OK {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, map[string]interface{}{"status": status, "vectorStore": health})
}
