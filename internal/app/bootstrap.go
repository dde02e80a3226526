package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"smartdoc/internal/adapter/memory"
	wstore "smartdoc/internal/adapter/weaviate"
	"smartdoc/internal/config"
	"smartdoc/internal/vector"
)

// SchemaEnsurer is implemented by vector stores that manage a remote schema.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

type Dependencies struct {
	DB          *sql.DB
	VectorStore vector.Store
	// NSQProducer is nil unless INDEX_DISPATCH=nsq.
	NSQProducer *nsq.Producer
}

// Close releases the connections opened by Bootstrap.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = retry(ctx, cfg.BootstrapRetryAttempts, retryDelay, func() error {
		return db.PingContext(ctx)
	}, func(attempt int, err error) {
		slog.Warn("failed to ping db, retrying...", "attempt", attempt, "max_attempts", cfg.BootstrapRetryAttempts, "error", err)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := migrateUp(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("migrations applied successfully")

	store, err := newVectorStore(ctx, cfg, retryDelay)
	if err != nil {
		db.Close()
		return nil, err
	}

	deps := &Dependencies{DB: db, VectorStore: store}

	if cfg.IndexDispatch == config.DispatchNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
	}
	if cfg.IndexDispatch == config.DispatchNSQ || cfg.EnableIndexWorker {
		createTopics(cfg.NSQDHTTP, config.TopicIndexDocument)
	}

	return deps, nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

func newVectorStore(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (vector.Store, error) {
	if cfg.VectorBackend == config.VectorBackendMemory {
		slog.Warn("using in-process vector store; chunks are lost on restart")
		return memory.NewStore(), nil
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	store := wstore.NewStore(client, cfg.WeaviateClass)
	if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}
	slog.Info("weaviate schema ensured", "class", cfg.WeaviateClass)
	return store, nil
}

// createTopics asks nsqd to create topics up front so consumers polling
// lookupd do not log 404s until the first publish.
func createTopics(nsqdHTTP string, topics ...string) {
	create := func(topic string) {
		u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		resp, err := http.Post(u, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		for _, t := range topics {
			create(t)
		}
	}()
}

// EnsureSchemaWithRetry calls store.EnsureSchema up to attempts times,
// waiting delay between tries. It gives up early when ctx is done.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, func() error {
		return store.EnsureSchema(ctx)
	}, func(attempt int, err error) {
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", attempt, "error", err)
	})
}

// retry runs op until it succeeds or attempts are used up, returning the
// last error. onFail is called after every failed attempt except the last.
func retry(ctx context.Context, attempts int, delay time.Duration, op func() error, onFail func(attempt int, err error)) error {
	attempts = max(attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		onFail(i, err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}
