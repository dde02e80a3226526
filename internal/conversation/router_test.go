package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/adapter/memory"
	"smartdoc/internal/apperr"
	"smartdoc/internal/consent"
	"smartdoc/internal/conversation"
	"smartdoc/internal/retrieval"
	"smartdoc/internal/vector"
)

type stubRanker struct {
	result retrieval.Result
	err    error
	calls  int
}

func (r *stubRanker) Rank(ctx context.Context, docID, question string) (retrieval.Result, error) {
	r.calls++
	return r.result, r.err
}

type stubIndexer struct {
	mu      sync.Mutex
	started []string
	busy    bool
}

func (i *stubIndexer) StartAsync(ctx context.Context, docID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.started = append(i.started, docID)
	return true
}

func (i *stubIndexer) Indexing(docID string) bool { return i.busy }

type recordingGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

type fixture struct {
	gate    *consent.Gate
	store   *memory.Store
	ranker  *stubRanker
	indexer *stubIndexer
	gen     *recordingGenerator
	router  *conversation.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gate:    consent.NewGate(nil),
		store:   memory.NewStore(),
		ranker:  &stubRanker{},
		indexer: &stubIndexer{},
		gen:     &recordingGenerator{answer: "Refunds take 14 days."},
	}
	f.router = conversation.NewRouter(f.gate, f.store, f.ranker, f.indexer, f.gen)
	return f
}

func (f *fixture) index(t *testing.T, docID string, texts ...string) {
	t.Helper()
	recs := make([]vector.Record, len(texts))
	for i, s := range texts {
		recs[i] = vector.Record{ChunkIndex: i, Text: s, Embedding: []float32{1, float32(i)}}
	}
	_, err := f.store.Upsert(context.Background(), docID, docID+".pdf", recs)
	require.NoError(t, err)
}

func selected(texts ...string) retrieval.Result {
	res := retrieval.Result{Candidates: len(texts)}
	for i, s := range texts {
		res.Selected = append(res.Selected, retrieval.Candidate{Match: vector.Match{ChunkIndex: i, Text: s, Similarity: 0.9}})
	}
	return res
}

func TestAsk_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.Ask(ctx, "doc", "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.router.Ask(ctx, "", "what is covered?")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.router.Ask(ctx, "doc", "read https://evil.example")
	assert.ErrorIs(t, err, apperr.ErrContentPolicy)
	assert.Empty(t, f.gen.prompts)
}

func TestAsk_GreetingSuggestsHeadings(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc", "Refund Policy:\nrefunds take 14 days.", "SHIPPING OPTIONS\nwe ship worldwide.")

	reply, err := f.router.Ask(context.Background(), "doc", "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Answer, "Hello! 👋"))
	assert.Contains(t, reply.Answer, "- Refund Policy\n")
	assert.Contains(t, reply.Answer, "- SHIPPING OPTIONS")
	assert.Zero(t, f.ranker.calls)
}

func TestAsk_GreetingOnBlockedDocumentUsesGenericTopics(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc", "CONFIDENTIAL CONTACTS\nalice@example.com")
	f.gate.Observe("doc", f.gate.Scan("alice@example.com"))

	reply, err := f.router.Ask(context.Background(), "doc", "hi")
	require.NoError(t, err)
	assert.NotContains(t, reply.Answer, "CONFIDENTIAL")
	assert.Contains(t, reply.Answer, "- Introduction")
	assert.False(t, reply.RequireConfirmation)
}

func TestAsk_SensitiveConsentFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gate.Observe("doc", f.gate.Scan("mail alice@example.com"))

	reply, err := f.router.Ask(ctx, "doc", "what is the refund policy?")
	require.NoError(t, err)
	assert.True(t, reply.RequireConfirmation)
	require.NotNil(t, reply.SensitiveSummary)
	assert.Equal(t, map[string]int{"email": 1}, reply.SensitiveSummary.Matches)
	rec, _ := f.gate.Get("doc")
	assert.True(t, rec.Awaiting)
	assert.Zero(t, f.ranker.calls)

	reply, err = f.router.Ask(ctx, "doc", "y")
	require.NoError(t, err)
	assert.Equal(t, "Proceeding. You can now ask questions about this document.", reply.Answer)
	rec, _ = f.gate.Get("doc")
	assert.True(t, rec.Confirmed)
	assert.False(t, rec.Blocked())
}

func TestAsk_SensitiveConsentDeclined(t *testing.T) {
	f := newFixture(t)
	f.gate.Observe("doc", f.gate.Scan("alice@example.com"))

	reply, err := f.router.Ask(context.Background(), "doc", "no")
	require.NoError(t, err)
	assert.Contains(t, reply.Answer, "Chat cancelled")
	rec, _ := f.gate.Get("doc")
	assert.True(t, rec.Blocked())
}

func TestAsk_NotIndexedStartsBackgroundIndexing(t *testing.T) {
	f := newFixture(t)

	reply, err := f.router.Ask(context.Background(), "doc", "what is the refund policy?")
	require.NoError(t, err)
	assert.Contains(t, reply.Answer, "Indexing this document in the background")
	assert.Equal(t, []string{"doc"}, f.indexer.started)

	f.indexer.busy = true
	_, err = f.router.Ask(context.Background(), "doc", "what is the refund policy?")
	require.NoError(t, err)
	assert.Len(t, f.indexer.started, 1)
}

func TestAsk_AnswersFromContext(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc", "Refunds take 14 days.")
	f.ranker.result = selected("Refunds take 14 days.", "Contact support first.")

	reply, err := f.router.Ask(context.Background(), "doc", "How long do refunds take?")
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 14 days.", reply.Answer)
	assert.Equal(t, []int{0, 1}, reply.Sources)
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "Refunds take 14 days.\n\nContact support first.")
	assert.Contains(t, f.gen.prompts[0], "Question: How long do refunds take?")
}

func TestAsk_FallbackYesAnswersWithoutDocumentContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.index(t, "doc", "Refunds take 14 days.")

	reply, err := f.router.Ask(ctx, "doc", "Who won the 1998 world cup?")
	require.NoError(t, err)
	assert.True(t, reply.FallbackOffered)
	assert.Contains(t, reply.Answer, "general knowledge instead? (y/n)")
	fb, ok := f.router.Fallback("doc")
	require.True(t, ok)
	assert.Equal(t, conversation.FallbackRecord{Awaiting: true, PendingQuestion: "Who won the 1998 world cup?"}, fb)

	f.gen.answer = "France won the 1998 world cup."
	reply, err = f.router.Ask(ctx, "doc", "y")
	require.NoError(t, err)
	assert.Equal(t, "France won the 1998 world cup.", reply.Answer)
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "Question: Who won the 1998 world cup?")
	assert.NotContains(t, f.gen.prompts[0], "Refunds")
	assert.NotContains(t, f.gen.prompts[0], "Context:")
	assert.Equal(t, 1, f.ranker.calls)

	fb, _ = f.router.Fallback("doc")
	assert.False(t, fb.Awaiting)
}

func TestAsk_FallbackDeclinedAndReprompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.index(t, "doc", "Refunds take 14 days.")

	_, err := f.router.Ask(ctx, "doc", "Who won the 1998 world cup?")
	require.NoError(t, err)

	reply, err := f.router.Ask(ctx, "doc", "perhaps")
	require.NoError(t, err)
	assert.Contains(t, reply.Answer, `Reply "y" for yes or "n" for no.`)

	reply, err = f.router.Ask(ctx, "doc", "n")
	require.NoError(t, err)
	assert.Equal(t, "Okay, I won't answer that. Please ask a question based on the uploaded document.", reply.Answer)
	assert.Empty(t, f.gen.prompts)
}

func TestAsk_NotInContextAnswerOffersFallback(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc", "Refunds take 14 days.")
	f.ranker.result = selected("Refunds take 14 days.")
	f.gen.answer = "The context does not mention shipping costs."

	reply, err := f.router.Ask(context.Background(), "doc", "How much is shipping?")
	require.NoError(t, err)
	assert.True(t, reply.FallbackOffered)
	assert.True(t, strings.HasPrefix(reply.Answer, "The context does not mention shipping costs."))
	fb, _ := f.router.Fallback("doc")
	assert.Equal(t, "How much is shipping?", fb.PendingQuestion)
}

func TestAsk_GenerationErrors(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc", "Refunds take 14 days.")
	f.ranker.result = selected("Refunds take 14 days.")

	f.gen.err = apperr.ErrUpstreamTimeout
	reply, err := f.router.Ask(context.Background(), "doc", "How long do refunds take?")
	require.NoError(t, err)
	assert.Contains(t, reply.Answer, "took too long")

	f.gen.err = apperr.ErrUpstreamUnavailable
	_, err = f.router.Ask(context.Background(), "doc", "How long do refunds take?")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	f.gen.err = nil
	f.gen.answer = ""
	reply, err = f.router.Ask(context.Background(), "doc", "How long do refunds take?")
	require.NoError(t, err)
	assert.Equal(t, "⚠️ Could not generate answer.", reply.Answer)

	f.ranker.err = retrieval.ErrNoEmbedding
	_, err = f.router.Ask(context.Background(), "doc", "How long do refunds take?")
	assert.True(t, errors.Is(err, apperr.ErrUpstreamUnavailable))
}

func TestRouter_Forget(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc", "Refunds take 14 days.")
	_, err := f.router.Ask(context.Background(), "doc", "Who won the 1998 world cup?")
	require.NoError(t, err)

	f.router.Forget("doc")
	_, ok := f.router.Fallback("doc")
	assert.False(t, ok)
}
