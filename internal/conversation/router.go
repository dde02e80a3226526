package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"smartdoc/internal/apperr"
	"smartdoc/internal/consent"
	"smartdoc/internal/keyed"
	"smartdoc/internal/retrieval"
	"smartdoc/internal/text"
	"smartdoc/internal/vector"
)

const (
	topicLimit      = 6
	topicScanChunks = 40
)

type Ranker interface {
	Rank(ctx context.Context, docID, question string) (retrieval.Result, error)
}

// Indexer is satisfied by indexing.Coordinator.
type Indexer interface {
	StartAsync(ctx context.Context, docID string) bool
	Indexing(docID string) bool
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reply is the router's answer to one message.
type Reply struct {
	Answer              string           `json:"answer"`
	RequireConfirmation bool             `json:"requireConfirmation"`
	SensitiveSummary    *consent.Summary `json:"sensitiveSummary,omitempty"`
	Sources             []int            `json:"sources,omitempty"`
	FallbackOffered     bool             `json:"fallbackOffered,omitempty"`
}

type Router struct {
	gate       *consent.Gate
	fallbacks  *keyed.Store[FallbackRecord]
	store      vector.Store
	ranker     Ranker
	indexer    Indexer
	generator  Generator
	classifier AnswerClassifier
	policy     *Policy
}

func NewRouter(gate *consent.Gate, store vector.Store, ranker Ranker, indexer Indexer, gen Generator) *Router {
	return &Router{
		gate:       gate,
		fallbacks:  keyed.NewStore[FallbackRecord](),
		store:      store,
		ranker:     ranker,
		indexer:    indexer,
		generator:  gen,
		classifier: NewCueClassifier(),
		policy:     NewPolicy(nil),
	}
}

func (r *Router) WithClassifier(c AnswerClassifier) *Router {
	r.classifier = c
	return r
}

func (r *Router) WithPolicy(p *Policy) *Router {
	r.policy = p
	return r
}

// Fallback returns the pending general-knowledge offer for docID.
func (r *Router) Fallback(docID string) (FallbackRecord, bool) {
	return r.fallbacks.Get(docID)
}

// Forget drops the fallback slot of a deleted document.
func (r *Router) Forget(docID string) {
	r.fallbacks.Delete(docID)
}

func (r *Router) Ask(ctx context.Context, docID, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: Missing question", apperr.ErrInvalidInput)
	}

	if IsGreeting(question) {
		return &Reply{Answer: greetingMessage(r.topics(ctx, docID))}, nil
	}
	if err := r.policy.Check(question); err != nil {
		return nil, err
	}
	if docID == "" {
		return nil, fmt.Errorf("%w: Missing doc_id", apperr.ErrInvalidInput)
	}

	outcome, rec := r.advance(docID, question)
	slog.DebugContext(ctx, "conversation step", "doc_id", docID, "action", int(outcome.Action))

	switch outcome.Action {
	case ActionConsentGranted:
		return &Reply{Answer: msgConsentGranted}, nil
	case ActionConsentDeclined:
		return &Reply{Answer: msgConsentDeclined}, nil
	case ActionConsentPrompt:
		sum := rec.Summary
		return &Reply{Answer: msgConsentPrompt, RequireConfirmation: true, SensitiveSummary: &sum}, nil
	case ActionGeneralAnswer:
		return r.generalAnswer(ctx, outcome.Question), nil
	case ActionAskAgain:
		return &Reply{Answer: msgAskAgain}, nil
	case ActionFallbackDeclined:
		return &Reply{Answer: msgFallbackDeclined}, nil
	case ActionFallbackReprompt:
		return &Reply{Answer: msgFallbackReprompt, FallbackOffered: true}, nil
	}
	return r.retrieve(ctx, docID, question)
}

// advance runs Transition under the consent lock, then the fallback lock.
func (r *Router) advance(docID, msg string) (Outcome, consent.Record) {
	var out Outcome
	rec := r.gate.Update(docID, func(cur consent.Record, ok bool) consent.Record {
		r.fallbacks.Update(docID, func(fb FallbackRecord, _ bool) FallbackRecord {
			var next State
			next, out = Transition(State{Consent: cur, HasConsent: ok, Fallback: fb}, msg)
			cur = next.Consent
			return next.Fallback
		})
		return cur
	})
	return out, rec
}

func (r *Router) retrieve(ctx context.Context, docID, question string) (*Reply, error) {
	if !r.store.Has(ctx, docID) {
		if r.indexer.Indexing(docID) {
			slog.InfoContext(ctx, "question while indexing", "doc_id", docID)
		} else {
			r.indexer.StartAsync(ctx, docID)
		}
		return &Reply{Answer: msgIndexing}, nil
	}

	res, err := r.ranker.Rank(ctx, docID, question)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	if res.Empty() {
		r.offerFallback(docID, question)
		return &Reply{Answer: msgFallbackPrompt, FallbackOffered: true}, nil
	}

	answer, err := r.generator.Generate(ctx, contextPrompt(res.Texts(), question))
	if err != nil {
		if errors.Is(err, apperr.ErrUpstreamTimeout) {
			slog.WarnContext(ctx, "answer generation timed out", "doc_id", docID)
			return &Reply{Answer: msgAnswerTimeout}, nil
		}
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	if answer == "" {
		return &Reply{Answer: msgNoAnswer}, nil
	}

	if r.classifier.NotInContext(answer) {
		r.offerFallback(docID, question)
		return &Reply{
			Answer:          text.FormatAnswer(answer) + "\n\n" + msgFallbackPrompt,
			FallbackOffered: true,
		}, nil
	}

	sources := make([]int, 0, len(res.Selected))
	for _, c := range res.Selected {
		sources = append(sources, c.ChunkIndex)
	}
	return &Reply{Answer: text.FormatAnswer(answer), Sources: sources}, nil
}

func (r *Router) offerFallback(docID, question string) {
	r.fallbacks.Set(docID, FallbackRecord{Awaiting: true, PendingQuestion: question})
}

func (r *Router) generalAnswer(ctx context.Context, question string) *Reply {
	answer, err := r.generator.Generate(ctx, generalPrompt(question))
	if err != nil {
		slog.WarnContext(ctx, "general answer failed", "error", err)
		return &Reply{Answer: msgGeneralError}
	}
	if answer == "" {
		return &Reply{Answer: msgNoGeneralAnswer}
	}
	return &Reply{Answer: text.FormatAnswer(answer)}
}

// topics suggests section headings of an indexed, unblocked document.
func (r *Router) topics(ctx context.Context, docID string) []string {
	generic := text.GenericTopics[:topicLimit]
	if docID == "" {
		return generic
	}
	if rec, ok := r.gate.Get(docID); ok && rec.Blocked() {
		return generic
	}
	chunks := r.store.Texts(ctx, docID, topicScanChunks)
	if len(chunks) == 0 {
		return generic
	}
	if hs := text.ExtractHeadings(strings.Join(chunks, "\n"), topicLimit); len(hs) > 0 {
		return hs
	}
	return generic
}
