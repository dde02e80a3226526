package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"smartdoc/internal/middleware"
)

// maxLoggedQueryBytes bounds the question stored per line.
const maxLoggedQueryBytes = 512

// QueryLogEntry is one JSON line of the retrieval audit log.
type QueryLogEntry struct {
	Time          time.Time `json:"ts"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	DocID         string    `json:"doc_id"`
	Query         string    `json:"query"`
	Candidates    int       `json:"candidates"`
	Selected      []int     `json:"selected_chunks"`
	Strict        bool      `json:"strict_fallback"`
	TopScore      float64   `json:"top_score"`
	LatencyMs     int64     `json:"latency_ms"`
}

// QueryLogger records which chunks each question was answered from.
// It is safe for concurrent use.
type QueryLogger struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w)}
}

// NewFileQueryLogger appends to path, creating parent directories.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	l := NewQueryLogger(f)
	l.closer = f
	return l, nil
}

// Log writes entry stamped with the current time and the correlation id of ctx.
func (l *QueryLogger) Log(ctx context.Context, entry QueryLogEntry) {
	entry.Time = time.Now().UTC()
	if id, ok := middleware.CorrelationIDFrom(ctx); ok {
		entry.CorrelationID = id
	}
	entry.Query = clipQuery(entry.Query)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.WarnContext(ctx, "failed to write query log entry", "doc_id", entry.DocID, "error", err)
	}
}

// Close closes the log file; loggers over a caller's writer do nothing.
func (l *QueryLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closer.Close()
}

func clipQuery(q string) string {
	if len(q) <= maxLoggedQueryBytes {
		return q
	}
	cut := maxLoggedQueryBytes
	for cut > 0 && !utf8.RuneStart(q[cut]) {
		cut--
	}
	return q[:cut]
}
