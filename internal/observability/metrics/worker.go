package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/labflow/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	sessionTotal     *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	sessionInFlight  prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	batchTotal       *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	batchFiles       *prometheus.HistogramVec
	batchPayloadSize *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	sessionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labflow",
			Subsystem: "worker",
			Name:      "session_process_total",
			Help:      "Total processed upload sessions by status.",
		},
		[]string{"service", "status"},
	)
	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labflow",
			Subsystem: "worker",
			Name:      "session_process_duration_seconds",
			Help:      "Session processing duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "status"},
	)
	sessionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labflow",
			Subsystem: "worker",
			Name:      "session_process_in_flight",
			Help:      "Number of in-flight session processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labflow",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between session submission and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labflow",
			Subsystem: "extraction",
			Name:      "batch_total",
			Help:      "Total extraction batch calls by outcome and error type.",
		},
		[]string{"service", "outcome", "error_type"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labflow",
			Subsystem: "extraction",
			Name:      "batch_duration_seconds",
			Help:      "Extraction batch call duration in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 90, 150, 300},
		},
		[]string{"service", "outcome"},
	)
	batchFiles := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labflow",
			Subsystem: "extraction",
			Name:      "batch_files",
			Help:      "Distribution of documents per extraction batch.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"service"},
	)
	batchPayloadSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labflow",
			Subsystem: "extraction",
			Name:      "batch_payload_bytes",
			Help:      "Distribution of estimated payload size per batch.",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 10),
		},
		[]string{"service"},
	)

	registry.MustRegister(sessionTotal, sessionDuration, sessionInFlight, queueLag,
		batchTotal, batchDuration, batchFiles, batchPayloadSize)

	return &WorkerMetrics{
		registry:         registry,
		sessionTotal:     sessionTotal,
		sessionDuration:  sessionDuration,
		sessionInFlight:  sessionInFlight,
		queueLag:         queueLag,
		batchTotal:       batchTotal,
		batchDuration:    batchDuration,
		batchFiles:       batchFiles,
		batchPayloadSize: batchPayloadSize,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartSession() {
	m.sessionInFlight.Inc()
}

func (m *WorkerMetrics) FinishSession(service string, duration time.Duration, err error) {
	m.sessionInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.sessionTotal.WithLabelValues(service, status).Inc()
	m.sessionDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

// BatchObserver adapts WorkerMetrics to the pipeline's per-batch telemetry
// callback for a given service label.
type BatchObserver struct {
	metrics *WorkerMetrics
	service string
}

func (m *WorkerMetrics) BatchObserver(service string) *BatchObserver {
	return &BatchObserver{metrics: m, service: service}
}

func (o *BatchObserver) ObserveBatch(entry domain.BatchMetrics) {
	outcome := "success"
	if !entry.Success {
		outcome = "failure"
	}
	errType := string(entry.ErrorType)
	if errType == "" {
		errType = "none"
	}

	o.metrics.batchTotal.WithLabelValues(o.service, outcome, errType).Inc()
	o.metrics.batchDuration.WithLabelValues(o.service, outcome).Observe(float64(entry.DurationMs) / 1000)
	o.metrics.batchFiles.WithLabelValues(o.service).Observe(float64(entry.FileCount))
	o.metrics.batchPayloadSize.WithLabelValues(o.service).Observe(float64(entry.PayloadBytes))
}
