// Package embedding isolates embedding calls behind a hard timeout so one
// slow or failing request never stalls an indexing run.
package embedding

import (
	"context"
	"log/slog"
	"time"
)

const DefaultTimeout = 20 * time.Second

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Gateway struct {
	embedder Embedder
	timeout  time.Duration
}

func NewGateway(e Embedder, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{embedder: e, timeout: timeout}
}

type result struct {
	vec []float32
	err error
}

// Embed issues exactly one embedding request. It returns ok=false on
// timeout, error or an empty vector; callers skip the text in that case.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, bool) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		vec, err := g.embedder.Embed(ctx, text)
		done <- result{vec: vec, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.WarnContext(ctx, "embedding timed out", "timeout", g.timeout, "chars", len(text))
		return nil, false
	case r := <-done:
		if r.err != nil {
			slog.WarnContext(ctx, "embedding failed", "error", r.err, "chars", len(text))
			return nil, false
		}
		if len(r.vec) == 0 {
			slog.WarnContext(ctx, "embedding empty", "chars", len(text))
			return nil, false
		}
		return r.vec, true
	}
}
