package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/logger"
	"smartdoc/internal/middleware"
	"smartdoc/internal/testutils"
)

func TestSmoke_ServeAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.AppConfig()
	cfg.ServerPort = 18081
	cfg.QueryLogPath = filepath.Join(t.TempDir(), "query.log")

	logs := &lockedBuffer{}
	log := logger.New(logs, slog.LevelInfo)
	prev := slog.Default()
	slog.SetDefault(log)
	defer slog.SetDefault(prev)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, log)
	}()

	base := fmt.Sprintf("http://localhost:%d", cfg.ServerPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 500*time.Millisecond)

	t.Run("health reports the vector backend", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, base+"/health", nil)
		require.NoError(t, err)
		req.Header.Set(middleware.HeaderCorrelationID, "smoke-1")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "smoke-1", resp.Header.Get(middleware.HeaderCorrelationID))
		var body struct {
			Status      string `json:"status"`
			VectorStore struct {
				OK      bool   `json:"ok"`
				Backend string `json:"backend"`
			} `json:"vectorStore"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
		assert.True(t, body.VectorStore.OK)
		assert.Equal(t, cfg.VectorBackend, body.VectorStore.Backend)
	})

	t.Run("failed job ledger starts empty", func(t *testing.T) {
		resp, err := http.Get(base + "/jobs/failed")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Zero(t, body.Meta.Count)
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, logs.String(), `"correlation_id":"smoke-1"`)
}

// lockedBuffer collects log output written from server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
