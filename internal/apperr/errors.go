// Package apperr defines the error taxonomy shared by handlers and services
// and the JSON error body written at the request boundary.
package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"smartdoc/internal/middleware"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedMedia    = errors.New("unsupported media type")
	ErrContentPolicy       = errors.New("content policy violation")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Status maps an error onto the HTTP status code of its taxonomy class.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrContentPolicy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable code written next to the message.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnsupportedMedia):
		return "UNSUPPORTED_MEDIA"
	case errors.Is(err, ErrContentPolicy):
		return "CONTENT_POLICY"
	case errors.Is(err, ErrUpstreamTimeout):
		return "UPSTREAM_TIMEOUT"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// WriteError writes {"error": message, "code": code, "correlationId": id}.
func WriteError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	WriteErrorWith(ctx, w, code, message, status, nil)
}

// WriteErrorWith is WriteError with extra top-level fields merged into the body.
func WriteErrorWith(ctx context.Context, w http.ResponseWriter, code, message string, status int, extra map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error":         message,
		"code":          code,
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	for k, v := range extra {
		resp[k] = v
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Write converts err through the taxonomy and writes it.
func Write(ctx context.Context, w http.ResponseWriter, err error) {
	WriteError(ctx, w, Code(err), err.Error(), Status(err))
}
