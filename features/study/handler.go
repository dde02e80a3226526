package study

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"smartdoc/internal/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	var consentErr *ConsentRequiredError
	if errors.As(err, &consentErr) {
		apperr.WriteErrorWith(ctx, w, apperr.Code(err), err.Error(), http.StatusUnprocessableEntity, map[string]interface{}{
			"requireConfirmation": true,
			"sensitiveSummary":    consentErr.Summary,
		})
		return
	}
	slog.ErrorContext(ctx, op+" failed", "error", err)
	apperr.Write(ctx, w, err)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", apperr.ErrInvalidInput)
	}
	return nil
}

// GenerateQuiz handles POST /api/document/generate-quiz.
func (h *Handler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req QuizRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(r.Context(), w, err)
		return
	}
	quiz, err := h.svc.Quiz(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, "quiz generation", err)
		return
	}
	writeJSON(w, r, map[string]interface{}{"success": true, "quiz": quiz})
}

// GenerateFlashcards handles POST /api/document/generate-flashcards.
func (h *Handler) GenerateFlashcards(w http.ResponseWriter, r *http.Request) {
	var req FlashcardRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(r.Context(), w, err)
		return
	}
	cards, err := h.svc.Flashcards(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, "flashcard generation", err)
		return
	}
	writeJSON(w, r, map[string]interface{}{"success": true, "flashcards": cards})
}

// Summarize handles POST /api/summarize.
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(r.Context(), w, err)
		return
	}
	sum, err := h.svc.Summarize(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, "summarize", err)
		return
	}
	writeJSON(w, r, sum)
}
