package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/labflow/internal/core/domain"
)

// BatchObserver receives each batch observation as it is recorded. Used to
// export run telemetry to Prometheus; implementations must not block.
type BatchObserver interface {
	ObserveBatch(metrics domain.BatchMetrics)
}

// Pipeline is the extraction orchestrator: filter, plan, dispatch batches
// sequentially with adaptive pacing, and accumulate a partial-success
// outcome. Batches run one at a time because the remote service imposes a
// shared rate limit.
type Pipeline struct {
	filter   *DocumentFilter
	planner  *BatchPlanner
	retry    *RetryController
	delay    *DelayController
	observer BatchObserver
}

func NewPipeline(
	filter *DocumentFilter,
	planner *BatchPlanner,
	retry *RetryController,
	delay *DelayController,
	observer BatchObserver,
) *Pipeline {
	return &Pipeline{
		filter:   filter,
		planner:  planner,
		retry:    retry,
		delay:    delay,
		observer: observer,
	}
}

// PipelineRun carries the accumulating state of one session run. It is owned
// by the single Run invocation; there are no shared mutable singletons.
type PipelineRun struct {
	Outcome   domain.PipelineOutcome
	Telemetry *TelemetryRecorder
}

// Run executes the full pipeline over the session's converted documents.
// Cancellation is checked before each batch; every other failure is
// contained to the document or batch it originated from.
func (p *Pipeline) Run(ctx context.Context, docs []domain.ProcessedDocument) (*PipelineRun, error) {
	run := &PipelineRun{Telemetry: NewTelemetryRecorder()}

	processable, skipped := p.filter.Filter(docs)
	run.Outcome.SkippedFiles = skipped
	for _, skip := range skipped {
		slog.Info("document_skipped", "filename", skip.Filename, "reason", skip.Reason)
	}

	queue := p.planner.Plan(processable)
	slog.Info("batches_planned",
		"documents", len(processable),
		"batches", len(queue),
	)

	var lastDuration time.Duration
	first := true
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if !first {
			if err := p.pause(ctx, lastDuration); err != nil {
				return run, err
			}
		}
		first = false

		batch := queue[0]
		queue = queue[1:]

		if batch.Oversized {
			p.failOversized(run, batch)
			continue
		}

		duration, requeued := p.dispatch(ctx, run, batch)
		lastDuration = duration
		if len(requeued) > 0 {
			// Estimate/actual mismatch: the service rejected the combined
			// payload, so its documents go back as fresh singleton batches.
			queue = append(requeued, queue...)
		}
	}

	return run, nil
}

// dispatch runs one batch through the retry controller, records telemetry
// and folds the outcome into the run. It returns the call duration and any
// singleton batches to re-queue after a payload rejection.
func (p *Pipeline) dispatch(ctx context.Context, run *PipelineRun, batch domain.Batch) (time.Duration, []domain.Batch) {
	outcome := p.retry.Process(ctx, batch)

	run.Outcome.Results = append(run.Outcome.Results, outcome.Results...)
	run.Outcome.FailedFiles = append(run.Outcome.FailedFiles, outcome.Failed...)

	switch {
	case outcome.BatchErr == nil:
		p.record(run, batch, outcome.Duration, true, nil, successFiles(batch))
	case outcome.NeedsSplit:
		p.record(run, batch, outcome.Duration, false, outcome.BatchErr, nil)
		return outcome.Duration, p.splitIntoSingletons(batch)
	default:
		p.record(run, batch, outcome.Duration, false, outcome.BatchErr, fileOutcomes(batch, outcome.Failed))
	}
	return outcome.Duration, nil
}

func (p *Pipeline) splitIntoSingletons(batch domain.Batch) []domain.Batch {
	singles := make([]domain.Batch, 0, len(batch.Documents))
	for _, doc := range batch.Documents {
		singles = append(singles, domain.Batch{
			ID:        uuid.NewString(),
			Documents: []domain.ProcessedDocument{doc},
			Estimate:  p.planner.estimator.Estimate([]domain.ProcessedDocument{doc}),
			Type:      classifyBatch([]domain.ProcessedDocument{doc}),
			Requeued:  true,
		})
	}
	return singles
}

// failOversized resolves a flagged singleton batch without a network call:
// its document alone exceeds a hard ceiling and is never split or truncated.
func (p *Pipeline) failOversized(run *PipelineRun, batch domain.Batch) {
	for _, doc := range batch.Documents {
		run.Outcome.FailedFiles = append(run.Outcome.FailedFiles, domain.FailedFile{
			Filename:  doc.Filename,
			Error:     "document exceeds " + string(batch.Estimate.LimitType) + " ceiling",
			ErrorType: domain.ErrorPayloadTooLarge,
		})
	}
	p.record(run, batch, 0, false, domain.ErrPayloadTooLarge, nil)
}

func (p *Pipeline) pause(ctx context.Context, lastDuration time.Duration) error {
	wait := p.delay.NextDelay(lastDuration)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pipeline) record(run *PipelineRun, batch domain.Batch, duration time.Duration, success bool, err error, files []domain.FileMetric) {
	metrics := domain.BatchMetrics{
		BatchID:         batch.ID,
		FileCount:       batch.FileCount(),
		PayloadBytes:    batch.Estimate.TotalBytes,
		EstimatedTokens: batch.Estimate.EstimatedTokens,
		DurationMs:      duration.Milliseconds(),
		Success:         success,
		Files:           files,
	}
	if err != nil {
		metrics.ErrorType = domain.ClassifyError(err)
		metrics.StatusCode = domain.StatusCodeOf(err)
	}
	run.Telemetry.Record(metrics)
	if p.observer != nil {
		p.observer.ObserveBatch(metrics)
	}
}

func successFiles(batch domain.Batch) []domain.FileMetric {
	files := make([]domain.FileMetric, 0, len(batch.Documents))
	for _, doc := range batch.Documents {
		files = append(files, domain.FileMetric{Filename: doc.Filename, SizeBytes: doc.SizeBytes(), Success: true})
	}
	return files
}

func fileOutcomes(batch domain.Batch, failed []domain.FailedFile) []domain.FileMetric {
	failedNames := make(map[string]struct{}, len(failed))
	for _, f := range failed {
		failedNames[f.Filename] = struct{}{}
	}
	files := make([]domain.FileMetric, 0, len(batch.Documents))
	for _, doc := range batch.Documents {
		_, isFailed := failedNames[doc.Filename]
		files = append(files, domain.FileMetric{Filename: doc.Filename, SizeBytes: doc.SizeBytes(), Success: !isFailed})
	}
	return files
}
