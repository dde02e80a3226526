package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Recover turns a panic in a handler into a 500 JSON response so a single
// bad request never takes the process down.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "panic in handler", "panic", rec, "path", r.URL.Path) // #nosec G706
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":         "internal server error",
					"code":          "INTERNAL_ERROR",
					"correlationId": GetCorrelationID(r.Context()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
