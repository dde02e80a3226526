// Package app wires configuration, adapters and feature handlers into a
// runnable HTTP service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"smartdoc/features/chat"
	"smartdoc/features/document"
	"smartdoc/features/job"
	"smartdoc/features/stats"
	"smartdoc/features/study"
	"smartdoc/internal/adapter/gemini"
	"smartdoc/internal/config"
	"smartdoc/internal/consent"
	"smartdoc/internal/conversation"
	"smartdoc/internal/docstore"
	"smartdoc/internal/embedding"
	"smartdoc/internal/extract"
	"smartdoc/internal/indexing"
	"smartdoc/internal/middleware"
	"smartdoc/internal/retrieval"
	"smartdoc/internal/settings"
	"smartdoc/internal/vector"
	"smartdoc/internal/worker"
)

// Generator is satisfied by gemini.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Options replaces model and document-store adapters, mostly for tests.
// Nil fields fall back to the adapters built from config.
type Options struct {
	Embedder  embedding.Embedder
	Generator Generator
	Fetcher   indexing.Fetcher
}

type App struct {
	Handler       http.Handler
	Coordinator   *indexing.Coordinator
	Router        *conversation.Router
	Consent       *consent.Gate
	IndexConsumer *worker.IndexConsumer

	cfg      *config.Config
	consumer *nsq.Consumer
	closers  []io.Closer
}

func New(
	cfg *config.Config,
	db *sql.DB,
	store vector.Store,
	pub indexing.Publisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {
	if db == nil || store == nil {
		return nil, errors.New("app: db and vector store are required")
	}
	if opts == nil {
		opts = &Options{}
	}
	a := &App{cfg: cfg}

	// Settings
	settingsService := settings.NewService(settings.NewPostgresRepo(db))
	if seeded, err := settingsService.SeedAPIKey(context.Background(), cfg.GeminiAPIKey); err != nil {
		logger.Warn("failed to seed gemini api key", "error", err)
	} else if seeded {
		logger.Info("seeded gemini api key from environment")
	}
	settingsHandler := settings.NewHandler(settingsService)

	// Model adapters read the API key from settings on every call.
	embedder := opts.Embedder
	if embedder == nil {
		e := gemini.NewDynamicEmbedder(settingsService, cfg.GeminiEmbedModel)
		a.closers = append(a.closers, e)
		embedder = e
	}
	generator := opts.Generator
	if generator == nil {
		g := gemini.NewGenerator(settingsService, gemini.GeneratorConfig{
			Model:   cfg.GeminiTextModel,
			Timeout: time.Duration(cfg.GenerateTimeoutSeconds) * time.Second,
			RPM:     cfg.GeminiRPM,
		})
		a.closers = append(a.closers, g)
		generator = g
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = docstore.NewClient(cfg.DocstoreURL, cfg.ServiceToken,
			time.Duration(cfg.DocstoreTimeoutSeconds)*time.Second, cfg.MaxUploadSizeMB<<20)
	}

	gateway := embedding.NewGateway(embedder, time.Duration(cfg.EmbedTimeoutSeconds)*time.Second)
	extractor := extract.New()
	gate := consent.NewGate(nil)

	// Indexing + failed-run ledger
	jobRepo := job.NewPostgresRepo(db)
	coordinator := indexing.NewCoordinator(fetcher, extractor, gate, gateway, store, indexing.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.IndexBatchSize,
	})
	jobService := job.NewService(jobRepo, coordinator)
	coordinator.WithFailureRecorder(jobService)
	if cfg.IndexDispatch == config.DispatchNSQ {
		if pub == nil {
			return nil, fmt.Errorf("%w: INDEX_DISPATCH=nsq needs an NSQ producer", config.ErrMissingRequired)
		}
		coordinator.WithPublisher(pub)
	}

	// Retrieval + conversation
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	a.closers = append(a.closers, queryLogger)
	ranker := retrieval.NewRanker(gateway, store, settingsService, queryLogger)
	router := conversation.NewRouter(gate, store, ranker, coordinator, generator)

	// Handlers
	chatHandler := chat.NewHandler(router)
	documentHandler := document.NewHandler(coordinator, gate, store, router, cfg.MaxUploadSizeMB<<20)
	studyHandler := study.NewHandler(study.NewService(generator, store, fetcher, extractor, gate))
	jobHandler := job.NewHandler(jobService)
	statsHandler := stats.NewHandler(store, jobService, coordinator, gate)

	cors := middleware.CORS(cfg.Origins())
	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(cors(h))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /api/index-from-atlas", route(documentHandler.TriggerIndex))
	mux.Handle("POST /api/document/ask", route(chatHandler.Ask))
	mux.Handle("POST /api/document/consent", route(documentHandler.SetConsent))
	mux.Handle("POST /api/document/replace-text", route(documentHandler.ReplaceText))
	mux.Handle("POST /api/document/generate-quiz", route(studyHandler.GenerateQuiz))
	mux.Handle("POST /api/document/generate-flashcards", route(studyHandler.GenerateFlashcards))
	mux.Handle("POST /api/summarize", route(studyHandler.Summarize))

	mux.Handle("GET /api/documents", route(documentHandler.List))
	mux.Handle("PUT /api/documents/{id}", route(documentHandler.Rename))
	mux.Handle("DELETE /api/documents/{id}", route(documentHandler.Delete))
	mux.Handle("GET /health", route(documentHandler.Health))

	mux.Handle("GET /settings", route(settingsHandler.GetSettings))
	mux.Handle("PUT /settings", route(settingsHandler.UpdateSettings))
	mux.Handle("GET /jobs/failed", route(jobHandler.List))
	mux.Handle("POST /jobs/{id}/retry", route(jobHandler.Retry))
	mux.Handle("GET /stats", route(statsHandler.GetStats))

	// Method patterns never match OPTIONS, so preflights get their own route.
	mux.Handle("OPTIONS /", route(func(w http.ResponseWriter, r *http.Request) {}))

	if cfg.EnableIndexWorker {
		a.IndexConsumer = worker.NewIndexConsumer(coordinator, store)
	}

	a.Handler = middleware.Recover(mux)
	a.Coordinator = coordinator
	a.Router = router
	a.Consent = gate

	logger.Info("application wired",
		"vector_backend", cfg.VectorBackend,
		"index_dispatch", cfg.IndexDispatch,
		"index_worker", cfg.EnableIndexWorker,
	)
	return a, nil
}

// StartWorker connects the index consumer to lookupd. It is a no-op when
// ENABLE_INDEX_WORKER is off.
func (a *App) StartWorker() error {
	if a.IndexConsumer == nil {
		return nil
	}
	consumer, err := nsq.NewConsumer(config.TopicIndexDocument, config.ChannelIndexWorker, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.IndexConsumer)
	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return fmt.Errorf("connect to nsqlookupd: %w", err)
	}
	a.consumer = consumer
	slog.Info("index worker connected", "topic", config.TopicIndexDocument, "channel", config.ChannelIndexWorker)
	return nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// and stops the worker.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
		if a.consumer != nil {
			a.consumer.Stop()
			<-a.consumer.StopChan
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the model clients and the query log opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
