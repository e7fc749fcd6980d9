package usecase

import (
	"log/slog"
	"time"

	"github.com/kirillkom/labflow/internal/core/domain"
)

// TelemetryRecorder keeps an append-only log of batch observations for one
// pipeline run. Recording is best-effort: any internal panic is swallowed so
// telemetry can never fail the pipeline. The single active run is the only
// writer, so no locking is needed.
type TelemetryRecorder struct {
	entries []domain.BatchMetrics
}

func NewTelemetryRecorder() *TelemetryRecorder {
	return &TelemetryRecorder{}
}

func (t *TelemetryRecorder) Record(metrics domain.BatchMetrics) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("telemetry_record_panic", "panic", r)
		}
	}()

	if metrics.RecordedAt.IsZero() {
		metrics.RecordedAt = time.Now().UTC()
	}
	t.entries = append(t.entries, metrics)
}

// Recent returns the last n records, newest last.
func (t *TelemetryRecorder) Recent(n int) []domain.BatchMetrics {
	if n <= 0 || len(t.entries) == 0 {
		return nil
	}
	if n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]domain.BatchMetrics, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}

// All returns every recorded entry in order.
func (t *TelemetryRecorder) All() []domain.BatchMetrics {
	out := make([]domain.BatchMetrics, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *TelemetryRecorder) Aggregate() domain.TelemetryAggregate {
	agg := domain.TelemetryAggregate{BatchCount: len(t.entries)}
	if len(t.entries) == 0 {
		return agg
	}

	var successes int
	var totalDuration int64
	for _, entry := range t.entries {
		totalDuration += entry.DurationMs
		if entry.Success {
			successes++
			continue
		}
		agg.FailedBatchCount++
		switch entry.ErrorType {
		case domain.ErrorTimeout:
			agg.TimeoutCount++
		case domain.ErrorRateLimit:
			agg.RateLimitCount++
		}
	}
	agg.SuccessRate = float64(successes) / float64(len(t.entries))
	agg.AverageDurationMs = float64(totalDuration) / float64(len(t.entries))
	return agg
}
