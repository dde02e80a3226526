package weaviate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/adapter/weaviate"
	"smartdoc/internal/testutils"
	"smartdoc/internal/vector"
)

func TestWeaviateStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup(testutils.Weaviate)
	defer s.Teardown()

	store := weaviate.NewStore(s.Weaviate, "")
	ctx := context.Background()

	require.NoError(t, store.EnsureSchema(ctx))

	recs := []vector.Record{
		{ChunkIndex: 0, Section: "Page 1", Text: "Postgres is a database", Embedding: []float32{1, 0, 0}},
		{ChunkIndex: 1, Section: "Page 2", Text: "Weaviate stores vectors", Embedding: []float32{0, 1, 0}},
	}
	n, err := store.Upsert(ctx, "doc-1", "db.pdf", recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Rewriting the same chunk indices must not duplicate objects.
	_, err = store.Upsert(ctx, "doc-1", "db.pdf", recs)
	require.NoError(t, err)

	assert.True(t, store.Has(ctx, "doc-1"))
	assert.False(t, store.Has(ctx, "doc-2"))

	matches := store.Query(ctx, "doc-1", []float32{1, 0, 0}, 5)
	require.Len(t, matches, 2)
	assert.Equal(t, "Postgres is a database", matches[0].Text)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-3)

	assert.Equal(t, []string{"Postgres is a database", "Weaviate stores vectors"}, store.Texts(ctx, "doc-1", 10))

	docs := store.ListDocuments(ctx)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, docs[0].Chunks)

	require.NoError(t, store.Rename(ctx, "doc-1", "renamed.pdf"))
	docs = store.ListDocuments(ctx)
	require.Len(t, docs, 1)
	assert.Equal(t, "renamed.pdf", docs[0].Filename)

	require.NoError(t, store.Delete(ctx, "doc-1"))
	assert.False(t, store.Has(ctx, "doc-1"))

	assert.True(t, store.Health(ctx).OK)
}
