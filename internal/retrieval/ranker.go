// Package retrieval selects the chunks an answer is grounded on. Vector
// candidates are re-scored with lexical overlap against the question and
// filtered by distance thresholds read from settings.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"smartdoc/internal/apperr"
	"smartdoc/internal/settings"
	"smartdoc/internal/vector"
)

var ErrNoEmbedding = fmt.Errorf("%w: question could not be embedded", apperr.ErrUpstreamUnavailable)

// Embedder is satisfied by embedding.Gateway.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Candidate struct {
	vector.Match
	Overlap int     `json:"overlap"`
	Score   float64 `json:"score"`
}

type Result struct {
	Selected []Candidate
	// Strict is set when the primary filter selected nothing and the
	// strict-distance set was used instead.
	Strict     bool
	Candidates int
}

func (r Result) Empty() bool {
	return len(r.Selected) == 0
}

func (r Result) Texts() []string {
	out := make([]string, 0, len(r.Selected))
	for _, c := range r.Selected {
		out = append(out, c.Text)
	}
	return out
}

type Ranker struct {
	embedder Embedder
	store    vector.Store
	settings SettingsSource
	logger   *QueryLogger
}

func NewRanker(e Embedder, s vector.Store, set SettingsSource, l *QueryLogger) *Ranker {
	return &Ranker{embedder: e, store: s, settings: set, logger: l}
}

func (r *Ranker) params(ctx context.Context) settings.Settings {
	def := settings.Defaults()
	if r.settings == nil {
		return def
	}
	s, err := r.settings.Get(ctx)
	if err != nil || s == nil {
		slog.WarnContext(ctx, "using default ranking settings", "error", err)
		return def
	}
	if err := s.Validate(); err != nil {
		slog.WarnContext(ctx, "stored ranking settings invalid, using defaults", "error", err)
		return def
	}
	return *s
}

func (r *Ranker) Rank(ctx context.Context, docID, question string) (Result, error) {
	start := time.Now()
	p := r.params(ctx)

	vec, ok := r.embedder.Embed(ctx, question)
	if !ok {
		return Result{}, ErrNoEmbedding
	}

	matches := r.store.Query(ctx, docID, vec, p.TopK)
	res := Select(question, matches, p)

	if r.logger != nil {
		entry := QueryLogEntry{
			DocID:      docID,
			Query:      question,
			Candidates: res.Candidates,
			Strict:     res.Strict,
			LatencyMs:  time.Since(start).Milliseconds(),
		}
		for _, c := range res.Selected {
			entry.Selected = append(entry.Selected, c.ChunkIndex)
		}
		if !res.Empty() {
			entry.TopScore = res.Selected[0].Score
		}
		r.logger.Log(ctx, entry)
	}
	return res, nil
}

// Select scores matches against question and applies the two-stage filter.
// Ordering is stable, so equal scores keep the backend's order.
func Select(question string, matches []vector.Match, p settings.Settings) Result {
	q := Tokens(question)
	denom := float64(max(1, len(q)))

	cands := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		ov := overlap(q, Tokens(m.Text))
		cands = append(cands, Candidate{
			Match:   m,
			Overlap: ov,
			Score:   p.VectorWeight*m.Similarity + p.LexicalWeight*float64(ov)/denom,
		})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })

	res := Result{Candidates: len(cands)}
	for _, c := range cands {
		if len(res.Selected) == p.ContextSize {
			break
		}
		if c.Distance() < p.NoiseCeiling && (p.MinScore <= 0 || c.Score >= p.MinScore) {
			res.Selected = append(res.Selected, c)
		}
	}
	if len(res.Selected) > 0 {
		return res
	}

	strict := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Distance() < p.StrictDistance {
			strict = append(strict, c)
		}
	}
	sort.SliceStable(strict, func(i, j int) bool { return strict[i].Similarity > strict[j].Similarity })
	if len(strict) > p.ContextSize {
		strict = strict[:p.ContextSize]
	}
	res.Selected = strict
	res.Strict = len(strict) > 0
	return res
}
