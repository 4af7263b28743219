package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/docqa/internal/adapters/http"
	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/observability/logging"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

const serviceName = "docqa-api"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.EngineOptions{
		Service:       serviceName,
		Logger:        logger,
		QueryObserver: httpMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if loaded, err := app.ScopeUC.LoadSnapshot(ctx, domain.ScopeGlobal); err != nil {
		logger.Warn("snapshot_load_failed", "scope", domain.ScopeGlobal, "backend", app.Snapshots.Backend(), "error", err)
	} else {
		logger.Info("snapshot_restored", "scope", domain.ScopeGlobal, "loaded", loaded, "chunks", app.Index.Len())
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		runIngestWorker(ctx, app, logger)
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, app.IngestUC, app.QueryUC, app.Repo, app.ScopeUC,
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithLogger(logger),
	).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
	_ = metricsServer.Shutdown(shutdownCtx)
	<-workerDone
}

// runIngestWorker indexes uploaded documents in this process, since the
// embedding index lives in memory next to the query path.
func runIngestWorker(ctx context.Context, app *bootstrap.App, logger *slog.Logger) {
	logger.Info("ingest_worker_subscribed", "subject", app.Config.NATSSubject)
	err := app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		if doc, err := app.Repo.GetByID(handlerCtx, documentID); err == nil {
			app.Metrics.ObserveQueueLag(time.Since(doc.CreatedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, time.Duration(app.Config.IngestTimeoutSeconds)*time.Second)
		defer cancel()

		start := time.Now()
		app.Metrics.StartDocument()
		err := app.ProcessUC.ProcessByID(processCtx, documentID)
		app.Metrics.FinishDocument(time.Since(start), err)
		return err
	})
	if err != nil {
		logger.Error("ingest_worker_failed", "error", err)
	}
}
