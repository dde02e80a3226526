package app_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/app"
	"smartdoc/internal/config"
	"smartdoc/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.AppConfig()
	cfg.IndexDispatch = config.DispatchNSQ

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	for _, table := range []string{"settings", "failed_jobs"} {
		var exists bool
		err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	assert.True(t, deps.VectorStore.Health(context.Background()).OK)
	require.NotNil(t, deps.NSQProducer)
	assert.NoError(t, deps.NSQProducer.Ping())
}

func TestBootstrap_MemoryBackend(t *testing.T) {
	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.AppConfig()
	cfg.VectorBackend = config.VectorBackendMemory
	cfg.WeaviateHost = "localhost:54322"

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	assert.Equal(t, "memory", deps.VectorStore.Health(context.Background()).Backend)
	assert.Nil(t, deps.NSQProducer)
}

func TestBootstrap_Resilience_WeaviateDown(t *testing.T) {
	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.AppConfig()
	cfg.WeaviateHost = "localhost:54322"
	cfg.BootstrapRetryAttempts = 2
	cfg.BootstrapRetryDelaySeconds = 1

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)
	duration := time.Since(start)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "weaviate schema error")
	assert.Greater(t, duration, 1*time.Second)
}

func TestApp_EndToEnd_Weaviate(t *testing.T) {
	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.AppConfig()
	cfg.QueryLogPath = filepath.Join(t.TempDir(), "query.log")

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	gen := &app.FakeGenerator{Answer: "Orders ship within two business days."}
	a, err := app.New(cfg, deps.DB, deps.VectorStore, nil, slog.New(slog.NewJSONHandler(os.Stdout, nil)), &app.Options{
		Embedder:  app.FakeEmbedder{},
		Generator: gen,
		Fetcher:   app.FakeFetcher{"policy": policyText},
	})
	require.NoError(t, err)
	defer a.Close()

	h := &harness{t: t, app: a, gen: gen}

	w, body := h.do(http.MethodPost, "/api/index-from-atlas", map[string]string{"documentId": "policy"})
	require.Equal(t, http.StatusOK, w.Code, body)

	// Weaviate batch writes become searchable shortly after the call returns.
	require.Eventually(t, func() bool {
		return deps.VectorStore.Has(context.Background(), "policy")
	}, 10*time.Second, 200*time.Millisecond)

	w, body = h.do(http.MethodPost, "/api/document/ask", map[string]string{
		"doc_id":   "policy",
		"question": "How fast do orders ship?",
	})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "Orders ship within two business days.", body["answer"])

	w, body = h.do(http.MethodPut, "/api/documents/policy", map[string]string{"name": "policy-v2.txt"})
	require.Equal(t, http.StatusOK, w.Code, body)

	w, body = h.do(http.MethodPut, "/settings", map[string]int{"top_k": 8})
	require.Equal(t, http.StatusOK, w.Code, body)

	w, body = h.do(http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, w.Code, body)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, body)
	assert.Equal(t, float64(8), data["top_k"])
}
