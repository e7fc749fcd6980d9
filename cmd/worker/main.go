package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/labflow/internal/bootstrap"
	"github.com/kirillkom/labflow/internal/config"
	"github.com/kirillkom/labflow/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("labflow-worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "labflow-worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.WorkerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// A session run covers every batch call plus pacing pauses, so its
	// timeout is a multiple of the single-call timeout.
	sessionTimeout := 6 * time.Duration(cfg.ExtractionTimeoutSeconds) * time.Second

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeSessionUploaded(ctx, func(handlerCtx context.Context, sessionID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, sessionTimeout)
		defer cancel()

		// The session's updated_at was set when the upload was published,
		// so the gap to now approximates time spent in the queue.
		if session, err := app.ReportUC.GetSession(processCtx, sessionID); err == nil {
			app.WorkerMetrics.ObserveQueueLag("labflow-worker", time.Since(session.UpdatedAt))
		}

		app.WorkerMetrics.StartSession()
		start := time.Now()
		processErr := app.ProcessUC.ProcessSession(processCtx, sessionID)
		app.WorkerMetrics.FinishSession("labflow-worker", time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
