// Package testutils starts the Postgres, Weaviate and NSQ containers the
// integration tests run against.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"smartdoc/internal/config"
)

const (
	dbName = "smartdoc_test"
	dbUser = "test"
	dbPass = "test"

	startupTimeout = 60 * time.Second
)

// Service names one backing container.
type Service int

const (
	Postgres Service = iota
	Weaviate
	NSQ
)

type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	pgHost       string
	pgPort       int
	migrations   string
	weaviateHost string
	nsqdAddr     string
	nsqdHTTP     string

	containers []testcontainers.Container
}

// NewIntegrationSuite skips the calling test under -short.
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	return &IntegrationSuite{T: t}
}

// Setup starts the given services, or all of them when none are named.
func (s *IntegrationSuite) Setup(services ...Service) {
	if len(services) == 0 {
		services = []Service{Postgres, Weaviate, NSQ}
	}
	ctx := context.Background()
	if slices.Contains(services, Postgres) {
		s.startPostgres(ctx)
	}
	if slices.Contains(services, Weaviate) {
		s.startWeaviate(ctx)
	}
	if slices.Contains(services, NSQ) {
		s.startNSQ(ctx)
	}
}

func (s *IntegrationSuite) startPostgres(ctx context.Context) {
	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout)),
	)
	require.NoError(s.T, err)
	s.containers = append(s.containers, pg)

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)
	s.DB, err = sql.Open("postgres", dsn)
	require.NoError(s.T, err)

	s.pgHost, err = pg.Host(ctx)
	require.NoError(s.T, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.pgPort = port.Int()

	_, file, _, _ := runtime.Caller(0)
	s.migrations = "file://" + filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	m, err := migrate.New(s.migrations, dsn)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) startWeaviate(ctx context.Context) {
	c := s.start(ctx, testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.25.0",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/.well-known/ready").WithPort("8080/tcp").WithStartupTimeout(startupTimeout),
	})
	s.weaviateHost = s.endpoint(ctx, c, "8080")

	var err error
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startNSQ(ctx context.Context) {
	c := s.start(ctx, testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(startupTimeout),
	})
	s.nsqdAddr = s.endpoint(ctx, c, "4150")
	s.nsqdHTTP = s.endpoint(ctx, c, "4151")

	var err error
	s.NSQ, err = nsq.NewProducer(s.nsqdAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) start(ctx context.Context, req testcontainers.ContainerRequest) testcontainers.Container {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err, "start %s", req.Image)
	s.containers = append(s.containers, c)
	return c
}

func (s *IntegrationSuite) endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) string {
	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(s.T, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// Reset empties the failed-job ledger between subtests. The settings row is
// kept; the repository recreates it if missing.
func (s *IntegrationSuite) Reset() {
	require.NotNil(s.T, s.DB, "Reset needs the Postgres service")
	_, err := s.DB.Exec(`TRUNCATE failed_jobs`)
	require.NoError(s.T, err)
}

// AppConfig points an application config at the suite's containers. The
// document store URL is unroutable; tests inject a fetcher instead.
func (s *IntegrationSuite) AppConfig() *config.Config {
	return &config.Config{
		DBHost:                     s.pgHost,
		DBPort:                     s.pgPort,
		DBUser:                     dbUser,
		DBPass:                     dbPass,
		DBName:                     dbName,
		MigrationPath:              s.migrations,
		VectorBackend:              config.VectorBackendWeaviate,
		WeaviateHost:               s.weaviateHost,
		WeaviateScheme:             "http",
		WeaviateClass:              "DocumentChunk",
		NSQDHost:                   s.nsqdAddr,
		NSQDHTTP:                   s.nsqdHTTP,
		IndexDispatch:              config.DispatchInline,
		GeminiTextModel:            "gemini-2.5-flash",
		GeminiEmbedModel:           "text-embedding-004",
		GeminiRPM:                  60,
		EmbedTimeoutSeconds:        5,
		GenerateTimeoutSeconds:     5,
		DocstoreURL:                "http://127.0.0.1:1",
		DocstoreTimeoutSeconds:     5,
		ChunkSize:                  1000,
		ChunkOverlap:               200,
		IndexBatchSize:             64,
		FrontendOrigins:            "http://localhost:3000",
		MaxUploadSizeMB:            25,
		LogLevel:                   "debug",
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
}

// Teardown stops everything Setup started, newest first.
func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
	for i := len(s.containers) - 1; i >= 0; i-- {
		if err := s.containers[i].Terminate(ctx); err != nil {
			s.T.Logf("terminate container: %v", err)
		}
	}
}
