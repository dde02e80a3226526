package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/apperr"
	"smartdoc/internal/retrieval"
	"smartdoc/internal/settings"
	"smartdoc/internal/vector"
)

type stubEmbedder struct{ ok bool }

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, bool) {
	if !s.ok {
		return nil, false
	}
	return []float32{1, 0}, true
}

type stubSettings struct {
	s   *settings.Settings
	err error
}

func (s stubSettings) Get(ctx context.Context) (*settings.Settings, error) { return s.s, s.err }

// stubStore returns fixed matches for every query.
type stubStore struct {
	vector.Store
	matches []vector.Match
	topK    int
}

func (s *stubStore) Query(ctx context.Context, docID string, emb []float32, topK int) []vector.Match {
	s.topK = topK
	return s.matches
}

func TestTokens(t *testing.T) {
	got := retrieval.Tokens("What is the Refund policy for 2024 orders? ok")
	assert.Equal(t, map[string]struct{}{"refund": {}, "policy": {}, "orders": {}}, got)
}

func TestSelect_LexicalTieBreak(t *testing.T) {
	matches := []vector.Match{
		{ChunkIndex: 0, Text: "Shipping takes five days", Similarity: 0.7},
		{ChunkIndex: 1, Text: "Our refund policy allows returns", Similarity: 0.7},
	}
	res := retrieval.Select("What is the refund policy?", matches, settings.Defaults())

	require.Len(t, res.Selected, 2)
	assert.Equal(t, 1, res.Selected[0].ChunkIndex)
	assert.Equal(t, 2, res.Selected[0].Overlap)
	assert.InDelta(t, 0.79, res.Selected[0].Score, 1e-9)
	assert.Equal(t, 0, res.Selected[1].ChunkIndex)
	assert.False(t, res.Strict)
}

func TestSelect_StableForEqualScores(t *testing.T) {
	matches := []vector.Match{
		{ChunkIndex: 5, Text: "alpha", Similarity: 0.8},
		{ChunkIndex: 2, Text: "beta", Similarity: 0.8},
		{ChunkIndex: 9, Text: "gamma", Similarity: 0.8},
	}
	res := retrieval.Select("unrelated question", matches, settings.Defaults())
	require.Len(t, res.Selected, 3)
	assert.Equal(t, []int{5, 2, 9}, []int{res.Selected[0].ChunkIndex, res.Selected[1].ChunkIndex, res.Selected[2].ChunkIndex})
}

func TestSelect_ContextSizeCap(t *testing.T) {
	var matches []vector.Match
	for i := 0; i < 12; i++ {
		matches = append(matches, vector.Match{ChunkIndex: i, Text: "x", Similarity: 0.9 - float64(i)*0.01})
	}
	res := retrieval.Select("q", matches, settings.Defaults())
	assert.Len(t, res.Selected, 5)
	assert.Equal(t, 12, res.Candidates)
}

func TestSelect_NoOverlapWithinNoiseCeiling(t *testing.T) {
	matches := []vector.Match{{ChunkIndex: 3, Text: "Customers may return goods within thirty days", Similarity: 0.5}}

	res := retrieval.Select("What is the refund policy?", matches, settings.Defaults())

	require.Len(t, res.Selected, 1)
	assert.Equal(t, 3, res.Selected[0].ChunkIndex)
	assert.InDelta(t, 0.35, res.Selected[0].Score, 1e-9)
	assert.False(t, res.Strict)
}

func TestSelect_StrictFallback(t *testing.T) {
	matches := []vector.Match{
		{ChunkIndex: 0, Text: "nothing shared", Similarity: 0.5},
		{ChunkIndex: 1, Text: "nothing shared either", Similarity: 0.56},
	}
	p := settings.Defaults()
	p.MinScore = 0.4
	res := retrieval.Select("refund policy", matches, p)
	require.Len(t, res.Selected, 1)
	assert.True(t, res.Strict)
	assert.Equal(t, 1, res.Selected[0].ChunkIndex)
}

func TestSelect_NothingRelevant(t *testing.T) {
	matches := []vector.Match{{ChunkIndex: 0, Text: "refund", Similarity: 0.3}}
	res := retrieval.Select("refund", matches, settings.Defaults())
	assert.True(t, res.Empty())
	assert.False(t, res.Strict)
}

func TestRanker_Rank(t *testing.T) {
	store := &stubStore{matches: []vector.Match{{ChunkIndex: 3, Text: "Refunds take ten days", Similarity: 0.8}}}
	var buf bytes.Buffer
	custom := settings.Defaults()
	custom.TopK = 7
	r := retrieval.NewRanker(stubEmbedder{ok: true}, store, stubSettings{s: &custom}, retrieval.NewQueryLogger(&buf))

	res, err := r.Rank(context.Background(), "doc-1", "how long do refunds take")
	require.NoError(t, err)
	assert.Equal(t, []string{"Refunds take ten days"}, res.Texts())
	assert.Equal(t, 7, store.topK)

	var entry retrieval.QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "doc-1", entry.DocID)
	assert.Equal(t, []int{3}, entry.Selected)
	assert.Equal(t, 1, entry.Candidates)
}

func TestRanker_SettingsErrorUsesDefaults(t *testing.T) {
	store := &stubStore{}
	r := retrieval.NewRanker(stubEmbedder{ok: true}, store, stubSettings{err: errors.New("db down")}, nil)

	res, err := r.Rank(context.Background(), "doc-1", "q")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, settings.Defaults().TopK, store.topK)
}

func TestRanker_NoEmbedding(t *testing.T) {
	r := retrieval.NewRanker(stubEmbedder{ok: false}, &stubStore{}, nil, nil)
	_, err := r.Rank(context.Background(), "doc-1", "q")
	assert.ErrorIs(t, err, retrieval.ErrNoEmbedding)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}
