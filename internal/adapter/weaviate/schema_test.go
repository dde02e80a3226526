package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

type fakeSchema struct {
	existing *models.Class
	created  *models.Class
	added    []string
	err      error
}

func (f *fakeSchema) ClassExists(ctx context.Context, className string) (bool, error) {
	return f.existing != nil, f.err
}

func (f *fakeSchema) CreateClass(ctx context.Context, class *models.Class) error {
	f.created = class
	return nil
}

func (f *fakeSchema) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return f.existing, nil
}

func (f *fakeSchema) AddProperty(ctx context.Context, className string, property *models.Property) error {
	f.added = append(f.added, property.Name)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	api := &fakeSchema{}
	require.NoError(t, ensureSchema(context.Background(), api, "Chunks"))

	require.NotNil(t, api.created)
	assert.Equal(t, "Chunks", api.created.Class)
	assert.Equal(t, "none", api.created.Vectorizer)

	byName := map[string]*models.Property{}
	for _, p := range api.created.Properties {
		byName[p.Name] = p
	}
	assert.Equal(t, []string{"int"}, byName[propChunkIndex].DataType)
	assert.Equal(t, "field", byName[propDocID].Tokenization)
	assert.Contains(t, byName, propSection)
	assert.Contains(t, byName, propFilename)
}

func TestEnsureSchema_UpgradesOlderClass(t *testing.T) {
	api := &fakeSchema{existing: &models.Class{
		Class: "Chunks",
		Properties: []*models.Property{
			{Name: propContent, DataType: []string{"text"}},
			{Name: propDocID, DataType: []string{"text"}},
			{Name: propChunkIndex, DataType: []string{"int"}},
		},
	}}

	require.NoError(t, ensureSchema(context.Background(), api, "Chunks"))
	assert.Nil(t, api.created)
	assert.ElementsMatch(t, []string{propSection, propFilename}, api.added)
}

func TestEnsureSchema_TypeConflict(t *testing.T) {
	api := &fakeSchema{existing: &models.Class{
		Class: "Chunks",
		Properties: []*models.Property{
			{Name: propChunkIndex, DataType: []string{"text"}},
		},
	}}

	err := ensureSchema(context.Background(), api, "Chunks")
	assert.ErrorIs(t, err, ErrSchemaConflict)
	assert.ErrorContains(t, err, "Chunks.chunkIndex")
}

func TestEnsureSchema_PropagatesError(t *testing.T) {
	err := ensureSchema(context.Background(), &fakeSchema{err: errors.New("connection refused")}, DefaultClass)
	assert.ErrorContains(t, err, "connection refused")
}

// schemaServer answers the client's /v1/meta check and hands every other
// request to h.
func schemaServer(t *testing.T, h http.HandlerFunc) clientSchema {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			_, _ = w.Write([]byte(`{"version": "1.25.0"}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(ts.Close)

	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)
	return clientSchema{client: client}
}

func TestClientSchema_Endpoints(t *testing.T) {
	t.Run("ClassExists", func(t *testing.T) {
		api := schemaServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/schema/DocumentChunk", r.URL.Path)
			_ = json.NewEncoder(w).Encode(&models.Class{Class: "DocumentChunk"})
		})
		ok, err := api.ClassExists(context.Background(), "DocumentChunk")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ClassMissing", func(t *testing.T) {
		api := schemaServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		ok, err := api.ClassExists(context.Background(), "DocumentChunk")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CreateClass", func(t *testing.T) {
		api := schemaServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/schema", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
		})
		assert.NoError(t, api.CreateClass(context.Background(), &models.Class{Class: "Chunks"}))
	})

	t.Run("AddProperty", func(t *testing.T) {
		api := schemaServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/schema/DocumentChunk/properties", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
		})
		prop := &models.Property{Name: propSection, DataType: []string{"text"}}
		assert.NoError(t, api.AddProperty(context.Background(), "DocumentChunk", prop))
	})
}
