// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Api is the entry point for the Collectify crawler and recommendation
service.

The process owns a single SQLite file holding the bipartite
collector/item graph, two background workers that drain its work
queues against the Bandcamp remote, a progress manager that expands a
recommendation request into crawl work, and a small HTTP surface that
lets an operator request a user's status, trigger a crawl, and read
recommendations.

Usage:

	go run ./cmd/api --database ./collectify.db --address :8080 [--crawl]

Startup Sequence:

 1. Logger: Initialize structured JSON logging (slog).
 2. Config: Parse CLI flags (--database, --address, --crawl, ...).
 3. Storage: Open the SQLite pool and run pending migrations.
 4. Wiring: Construct the fetcher, store, workers, and HTTP handlers.
 5. Workers: Launch the collection worker, item worker, and progress
    manager as background goroutines.
 6. Server: Bind the HTTP listener and handle graceful shutdown.

No business logic lives here. This file is strictly for orchestration and wiring.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/taibuivan/collectify/internal/api"
	"github.com/taibuivan/collectify/internal/bandcamp"
	"github.com/taibuivan/collectify/internal/crawl"
	"github.com/taibuivan/collectify/internal/platform/config"
	"github.com/taibuivan/collectify/internal/platform/constants"
	"github.com/taibuivan/collectify/internal/platform/migration"
	"github.com/taibuivan/collectify/internal/platform/sqlitedb"
	"github.com/taibuivan/collectify/internal/progress"
	"github.com/taibuivan/collectify/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// # 1. Logger
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// # 2. Configuration
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parse configuration: %w", err)
	}

	if cfg.IsDevelopment() {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("database", cfg.Database),
		slog.String("address", cfg.Address),
		slog.Bool("crawl", cfg.Crawl),
	)

	// Root context for startup. A 30s deadline prevents the app from hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// # 3. Storage
	db, err := sqlitedb.Open(startupCtx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open sqlite pool: %w", err)
	}
	defer func() {
		log.Info("closing sqlite pool")
		if cerr := db.Close(); cerr != nil {
			log.Error("sqlite_pool_close_failed", slog.Any("error", cerr))
		}
	}()

	if err := migration.RunUp(cfg.Database, cfg.MigrationPath, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// # 4. Domain Wiring
	st := store.New(db)
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Error("store_close_failed", slog.Any("error", cerr))
		}
	}()

	fetcher := bandcamp.NewFetcher(&http.Client{Timeout: constants.DefaultWriteTimeout})
	collectionWorker := crawl.NewCollectionWorker(st, fetcher, log, cfg.Crawl)
	itemWorker := crawl.NewItemWorker(st, fetcher, log, cfg.Crawl)
	progressManager := progress.NewManager(st, log)

	// # 5. HTTP Wiring
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return st.Ping(context.Background())
		},
	}, log)

	catalogHdl := api.NewCatalogHandler(st, collectionWorker, log)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Catalog:   catalogHdl,
	}

	// Background context for the whole application lifecycle: workers and
	// the server both derive from it, and it is canceled once on shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	server := api.NewServer(appCtx, cfg, log, handlers)

	// # 6. Background Workers
	var workers sync.WaitGroup
	workers.Add(3)
	go func() { defer workers.Done(); collectionWorker.Run(appCtx) }()
	go func() { defer workers.Done(); itemWorker.Run(appCtx) }()
	go func() { defer workers.Done(); progressManager.Run(appCtx) }()

	// # 7. Lifecycle Handling
	shutdownErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr <- fmt.Errorf("http_server_crash: %w", err)
		}
	}()

	log.Info("collectify_api_running", slog.String("addr", cfg.Address))

	// Block until signal or error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-shutdownErr:
		appCancel()
		workers.Wait()
		return err
	}

	// Start graceful shutdown: stop accepting new work, let background
	// workers exit at their next tick boundary, then drain in-flight
	// HTTP requests.
	appCancel()

	log.Info("shutting_down_api_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		return fmt.Errorf("server_shutdown_failed: %w", err)
	}

	workers.Wait()
	log.Info("graceful_shutdown_complete")
	return nil
}
