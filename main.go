package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"smartdoc/internal/app"
	"smartdoc/internal/config"
	"smartdoc/internal/indexing"
	"smartdoc/internal/logger"
)

func main() {
	var level slog.LevelVar
	log := logger.New(os.Stdout, &level)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// A nil *nsq.Producer must not become a non-nil Publisher.
	var pub indexing.Publisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}

	application, err := app.New(cfg, deps.DB, deps.VectorStore, pub, log, nil)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.StartWorker(); err != nil {
		return err
	}
	return application.Run(ctx)
}
