package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdoc/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
	assert.Equal(t, config.VectorBackendWeaviate, cfg.VectorBackend)
	assert.Equal(t, config.DispatchInline, cfg.IndexDispatch)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 64, cfg.IndexBatchSize)
	assert.Equal(t, 20, cfg.EmbedTimeoutSeconds)
	assert.Equal(t, 30, cfg.GenerateTimeoutSeconds)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FromEnvFile(t *testing.T) {
	require.NoError(t, os.WriteFile(".env", []byte("DB_HOST=loaded-from-file\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { _ = os.Remove(".env") })
	// godotenv never overrides variables already present in the process.
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DB_HOST", "")
	require.NoError(t, os.Unsetenv("DB_HOST"))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Toggles(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "memory")
	t.Setenv("INDEX_DISPATCH", "nsq")
	t.Setenv("ENABLE_INDEX_WORKER", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.VectorBackendMemory, cfg.VectorBackend)
	assert.Equal(t, config.DispatchNSQ, cfg.IndexDispatch)
	assert.True(t, cfg.EnableIndexWorker)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("INDEX_DISPATCH", "kafka")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestConfig_Origins(t *testing.T) {
	cfg := config.Config{FrontendOrigins: "http://localhost:3000, https://*.smartdoc.app,"}
	assert.Equal(t, []string{"http://localhost:3000", "https://*.smartdoc.app"}, cfg.Origins())
}
