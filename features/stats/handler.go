// Package stats serves the dashboard counters.
package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"

	"golang.org/x/sync/errgroup"

	"smartdoc/internal/apperr"
	"smartdoc/internal/vector"
)

// Catalog is the read side of vector.Store used here.
type Catalog interface {
	ListDocuments(ctx context.Context) []vector.DocumentInfo
	Health(ctx context.Context) vector.Health
}

type FailureCounter interface {
	Count(ctx context.Context) (int, error)
}

// RunCounter is satisfied by indexing.Coordinator.
type RunCounter interface {
	ActiveRuns() int
}

// ConsentCounter is satisfied by consent.Gate.
type ConsentCounter interface {
	Pending() int
}

type Handler struct {
	catalog  Catalog
	failures FailureCounter
	runs     RunCounter
	consent  ConsentCounter
}

func NewHandler(c Catalog, f FailureCounter, r RunCounter, cc ConsentCounter) *Handler {
	return &Handler{catalog: c, failures: f, runs: r, consent: cc}
}

type LargestDocument struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
}

type StatsResponse struct {
	Documents       int              `json:"documents"`
	Chunks          int              `json:"chunks"`
	AvgChunksPerDoc float64          `json:"avgChunksPerDocument"`
	Largest         *LargestDocument `json:"largestDocument,omitempty"`
	Indexing        int              `json:"indexing"`
	PendingConsent  int              `json:"pendingConsent"`
	FailedJobs      int              `json:"failedJobs"`
	VectorBackend   string           `json:"vectorBackend"`
	VectorBackendUp bool             `json:"vectorBackendUp"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		docs   []vector.DocumentInfo
		health vector.Health
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs = h.catalog.ListDocuments(gctx)
		return nil
	})
	g.Go(func() error {
		health = h.catalog.Health(gctx)
		return nil
	})
	g.Go(func() error {
		n, err := h.failures.Count(gctx)
		failed = n
		return err
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "failed to count failed jobs", "error", err)
		apperr.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := summarize(docs)
	resp.FailedJobs = failed
	resp.Indexing = h.runs.ActiveRuns()
	resp.PendingConsent = h.consent.Pending()
	resp.VectorBackend = health.Backend
	resp.VectorBackendUp = health.OK

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func summarize(docs []vector.DocumentInfo) StatsResponse {
	var resp StatsResponse
	for _, d := range docs {
		resp.Documents++
		resp.Chunks += d.Chunks
		if resp.Largest == nil || d.Chunks > resp.Largest.Chunks {
			resp.Largest = &LargestDocument{DocID: d.DocID, Chunks: d.Chunks}
		}
	}
	if resp.Documents > 0 {
		resp.AvgChunksPerDoc = math.Round(float64(resp.Chunks)/float64(resp.Documents)*10) / 10
	}
	return resp
}
