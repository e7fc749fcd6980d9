package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/labflow/internal/config"
	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/core/ports"
	"github.com/kirillkom/labflow/internal/core/usecase"
	"github.com/kirillkom/labflow/internal/infrastructure/converter"
	"github.com/kirillkom/labflow/internal/infrastructure/llm/extraction"
	"github.com/kirillkom/labflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/labflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/labflow/internal/infrastructure/resilience"
	"github.com/kirillkom/labflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/labflow/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	IngestUC  ports.SessionIngestor
	ProcessUC ports.SessionProcessor
	ReportUC  *usecase.ReportUseCase

	WorkerMetrics *metrics.WorkerMetrics
	HTTPMetrics   *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	if err := cfg.ApplyLimitsFile(); err != nil {
		return nil, fmt.Errorf("apply pipeline limits: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sessions := postgres.NewSessionRepository(db)
	if err := sessions.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	reports := postgres.NewReportRepository(db)
	registry := postgres.NewClientRegistry(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	callTimeout := time.Duration(cfg.ExtractionTimeoutSeconds) * time.Second
	extractionClient := extraction.New(cfg.ExtractionBaseURL, cfg.ExtractionAPIKey, cfg.ExtractionModel, extraction.Options{
		CallTimeout:       callTimeout,
		RequestsPerMinute: cfg.ExtractionRequestsPerMinute,
		Executor:          executor,
	})

	limits := domain.BatchLimits{
		MaxFiles:        cfg.MaxBatchFiles,
		MaxPayloadBytes: cfg.MaxBatchPayloadBytes,
		MaxTokens:       cfg.MaxBatchTokens,
	}
	estimator := usecase.NewPayloadEstimator(limits)
	planner := usecase.NewBatchPlanner(limits, estimator)
	filter := usecase.NewDocumentFilter(cfg.MaxFileBytes)
	retry := usecase.NewRetryController(extractionClient)
	delay := usecase.NewDelayController(usecase.DelayConfig{
		Fraction:      float64(cfg.DelayFractionPercent) / 100,
		MinDelay:      time.Duration(cfg.DelayMinMs) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.DelayMaxMs) * time.Millisecond,
		FastThreshold: time.Duration(cfg.DelayFastThresholdSeconds) * time.Second,
		CallTimeout:   callTimeout,
	})

	workerMetrics := metrics.NewWorkerMetrics(service)
	pipeline := usecase.NewPipeline(filter, planner, retry, delay, workerMetrics.BatchObserver(service))

	docConverter := converter.New(storage)

	ingestUC := usecase.NewIngestSessionUseCase(sessions, storage, queue)
	processUC := usecase.NewProcessSessionUseCase(sessions, reports, registry, docConverter, pipeline)
	reportUC := usecase.NewReportUseCase(sessions, reports)

	return &App{
		Config: cfg,
		Queue:  queue,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		ReportUC:  reportUC,

		WorkerMetrics: workerMetrics,
		HTTPMetrics:   metrics.NewHTTPServerMetrics(service),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
