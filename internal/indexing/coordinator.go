// Package indexing turns a stored document into vector-store chunks. At most
// one run per document is active at a time, and no chunk is written while the
// document is blocked on sensitive-data consent.
package indexing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"smartdoc/internal/apperr"
	"smartdoc/internal/config"
	"smartdoc/internal/consent"
	"smartdoc/internal/docstore"
	"smartdoc/internal/middleware"
	"smartdoc/internal/text"
	"smartdoc/internal/vector"
)

const DefaultBatchSize = 64

// Failure stages recorded to the failed-jobs ledger.
const (
	StageFetch  = "fetch"
	StageDelete = "delete"
	StageUpsert = "upsert"
)

type Fetcher interface {
	Fetch(ctx context.Context, docID string) (*docstore.Document, error)
}

type Extractor interface {
	Extract(data []byte, mimetype, filename string) (string, error)
}

// Embedder is satisfied by embedding.Gateway.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// FailureRecorder keeps the ledger of failed runs. ResolveFailures is
// called after a run that wrote chunks.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, docID, stage string, err error)
	ResolveFailures(ctx context.Context, docID string)
}

// IndexMessage is the body published to config.TopicIndexDocument.
type IndexMessage struct {
	DocID         string `json:"doc_id"`
	OnlyIfMissing bool   `json:"only_if_missing"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type Result struct {
	DocID               string           `json:"doc_id"`
	Indexed             bool             `json:"indexed"`
	Chunks              int              `json:"chunks"`
	RequireConfirmation bool             `json:"requireConfirmation,omitempty"`
	Sensitive           *consent.Summary `json:"sensitiveSummary,omitempty"`
	InProgress          bool             `json:"inProgress,omitempty"`
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

type Coordinator struct {
	fetcher   Fetcher
	extractor Extractor
	gate      *consent.Gate
	embedder  Embedder
	store     vector.Store
	chunker   text.Chunker
	batchSize int
	tickets   *Tickets

	publisher Publisher
	failures  FailureRecorder
}

func NewCoordinator(f Fetcher, x Extractor, gate *consent.Gate, e Embedder, store vector.Store, cfg Config) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Coordinator{
		fetcher:   f,
		extractor: x,
		gate:      gate,
		embedder:  e,
		store:     store,
		chunker:   text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		batchSize: cfg.BatchSize,
		tickets:   NewTickets(),
	}
}

// WithPublisher routes StartAsync through NSQ instead of a local goroutine.
func (c *Coordinator) WithPublisher(p Publisher) *Coordinator {
	c.publisher = p
	return c
}

func (c *Coordinator) WithFailureRecorder(r FailureRecorder) *Coordinator {
	c.failures = r
	return c
}

// Indexing reports whether a run for docID is in flight or its index
// message was published recently.
func (c *Coordinator) Indexing(docID string) bool {
	return c.tickets.Pending(docID)
}

func (c *Coordinator) ActiveRuns() int {
	return c.tickets.Count()
}

// IndexNow fetches, extracts and indexes docID synchronously. A concurrent
// run for the same document yields Result{InProgress: true}.
func (c *Coordinator) IndexNow(ctx context.Context, docID string) (Result, error) {
	if !c.tickets.Acquire(docID) {
		slog.InfoContext(ctx, "indexing already in progress", "doc_id", docID)
		return Result{DocID: docID, InProgress: true}, nil
	}
	defer c.tickets.Release(docID)
	return c.fetchAndIndex(ctx, docID)
}

// IndexText replaces the chunks of docID with chunks cut from body, skipping
// the document store.
func (c *Coordinator) IndexText(ctx context.Context, docID, filename, body string) (Result, error) {
	if !c.tickets.Acquire(docID) {
		return Result{DocID: docID, InProgress: true}, nil
	}
	defer c.tickets.Release(docID)
	return c.index(ctx, docID, filename, body)
}

// StartAsync indexes docID in the background when it has no chunks yet.
func (c *Coordinator) StartAsync(ctx context.Context, docID string) bool {
	return c.Dispatch(ctx, IndexMessage{DocID: docID, OnlyIfMissing: true})
}

// Dispatch hands msg to the NSQ worker when a publisher is configured and to
// a detached goroutine otherwise. It returns false if a run is already active
// or the message could not be published. With a publisher, an only-if-missing
// message is also skipped while an earlier one is still queued.
func (c *Coordinator) Dispatch(ctx context.Context, msg IndexMessage) bool {
	if msg.CorrelationID == "" {
		msg.CorrelationID = middleware.GetCorrelationID(ctx)
	}

	if c.publisher != nil {
		queued := c.tickets.Queue(msg.DocID)
		if !queued && (msg.OnlyIfMissing || c.tickets.Active(msg.DocID)) {
			return false
		}
		body, err := json.Marshal(msg)
		if err == nil {
			err = c.publisher.Publish(config.TopicIndexDocument, body)
		}
		if err != nil {
			if queued {
				c.tickets.Unqueue(msg.DocID)
			}
			slog.ErrorContext(ctx, "failed to publish index message", "doc_id", msg.DocID, "error", err)
			return false
		}
		slog.InfoContext(ctx, "index message published", "doc_id", msg.DocID)
		return true
	}

	if !c.tickets.Acquire(msg.DocID) {
		return false
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer c.tickets.Release(msg.DocID)
		if msg.OnlyIfMissing && c.store.Has(bg, msg.DocID) {
			return
		}
		res, err := c.fetchAndIndex(bg, msg.DocID)
		if err != nil {
			slog.ErrorContext(bg, "background indexing failed", "doc_id", msg.DocID, "error", err)
			return
		}
		slog.InfoContext(bg, "background indexing finished", "doc_id", msg.DocID, "chunks", res.Chunks, "require_confirmation", res.RequireConfirmation)
	}()
	return true
}

func (c *Coordinator) fetchAndIndex(ctx context.Context, docID string) (Result, error) {
	doc, err := c.fetcher.Fetch(ctx, docID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			c.recordFailure(ctx, docID, StageFetch, err)
		}
		return Result{DocID: docID}, err
	}

	body, err := c.extractor.Extract(doc.Data, doc.MIMEType, doc.Filename)
	if err != nil {
		return Result{DocID: docID}, err
	}
	return c.index(ctx, docID, doc.Filename, body)
}

func (c *Coordinator) index(ctx context.Context, docID, filename, body string) (Result, error) {
	ctx, span := otel.Tracer("smartdoc/indexing").Start(ctx, "indexing.run", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("doc_id", docID), attribute.Int("text_chars", len(body)))

	res := Result{DocID: docID}
	if strings.TrimSpace(body) == "" {
		slog.WarnContext(ctx, "document has no extractable text", "doc_id", docID)
		return res, nil
	}

	rec := c.gate.Observe(docID, c.gate.Scan(body))
	if rec.Blocked() {
		slog.InfoContext(ctx, "indexing paused for consent", "doc_id", docID, "matches", rec.Summary.Matches)
		span.AddEvent("consent_required", trace.WithAttributes(attribute.Int("categories", len(rec.Summary.Matches))))
		res.RequireConfirmation = true
		summary := rec.Summary
		res.Sensitive = &summary
		return res, nil
	}

	if err := c.store.Delete(ctx, docID); err != nil {
		c.recordFailure(ctx, docID, StageDelete, err)
		return res, fmt.Errorf("%w: purge previous chunks: %v", apperr.ErrUpstreamUnavailable, err)
	}

	windows := c.chunker.Split(body)
	batch := make([]vector.Record, 0, c.batchSize)
	skipped := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.store.Upsert(ctx, docID, filename, batch)
		res.Chunks += n
		batch = batch[:0]
		return err
	}

	for _, w := range windows {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		vec, ok := c.embedder.Embed(ctx, w.Text)
		if !ok {
			skipped++
			continue
		}
		batch = append(batch, vector.Record{
			ChunkIndex: w.Index,
			Section:    w.Section,
			Text:       w.Text,
			Embedding:  vec,
		})
		if len(batch) >= c.batchSize {
			if err := flush(); err != nil {
				c.recordFailure(ctx, docID, StageUpsert, err)
				return res, fmt.Errorf("%w: write chunks: %v", apperr.ErrUpstreamUnavailable, err)
			}
		}
	}
	if err := flush(); err != nil {
		c.recordFailure(ctx, docID, StageUpsert, err)
		return res, fmt.Errorf("%w: write chunks: %v", apperr.ErrUpstreamUnavailable, err)
	}

	res.Indexed = res.Chunks > 0
	if res.Indexed && c.failures != nil {
		c.failures.ResolveFailures(ctx, docID)
	}
	span.SetAttributes(attribute.Int("chunks", res.Chunks), attribute.Int("skipped", skipped))
	slog.InfoContext(ctx, "document indexed", "doc_id", docID, "windows", len(windows), "chunks", res.Chunks, "skipped", skipped)
	return res, nil
}

func (c *Coordinator) recordFailure(ctx context.Context, docID, stage string, err error) {
	trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attribute.String("stage", stage)))
	if c.failures == nil {
		return
	}
	c.failures.RecordFailure(ctx, docID, stage, err)
}
