package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/nsqio/go-nsq"

	"smartdoc/internal/apperr"
	"smartdoc/internal/indexing"
	"smartdoc/internal/middleware"
)

type IndexConsumer struct {
	indexer Indexer
	checker IndexChecker
}

func NewIndexConsumer(i Indexer, c IndexChecker) *IndexConsumer {
	return &IndexConsumer{indexer: i, checker: c}
}

// HandleMessage indexes the document named by an index.document message.
// Returning an error requeues the message.
func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload indexing.IndexMessage
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid json, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	payload.DocID = strings.TrimSpace(payload.DocID)
	if payload.DocID == "" {
		slog.Error("poison pill: missing doc_id")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if payload.OnlyIfMissing && h.checker.Has(ctx, payload.DocID) {
		slog.InfoContext(ctx, "document already indexed, skipping", "doc_id", payload.DocID)
		return nil
	}

	res, err := h.indexer.IndexNow(ctx, payload.DocID)
	if err != nil {
		if permanent(err) {
			slog.WarnContext(ctx, "dropping index request", "doc_id", payload.DocID, "error", err)
			return nil
		}
		slog.ErrorContext(ctx, "background indexing failed", "doc_id", payload.DocID, "error", err)
		return err
	}

	switch {
	case res.InProgress:
		slog.InfoContext(ctx, "document already indexing", "doc_id", payload.DocID)
	case res.RequireConfirmation:
		slog.InfoContext(ctx, "indexing waits for consent", "doc_id", payload.DocID)
	default:
		slog.InfoContext(ctx, "background indexing finished", "doc_id", payload.DocID, "chunks", res.Chunks)
	}
	return nil
}

// permanent errors would fail the same way on every redelivery.
func permanent(err error) bool {
	return errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrUnsupportedMedia) ||
		errors.Is(err, apperr.ErrInvalidInput)
}
