package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/core/ports"
)

// batchState is the explicit per-batch lifecycle of the split-on-failure
// path: Pending -> BatchAttempted -> {Success | IndividualRetry | Resplit}
// -> Resolved.
type batchState string

const (
	statePending         batchState = "pending"
	stateBatchAttempted  batchState = "batch_attempted"
	stateSuccess         batchState = "success"
	stateIndividualRetry batchState = "individual_retry"
	stateResplit         batchState = "resplit"
	stateResolved        batchState = "resolved"
)

// BatchOutcome is the resolved result of one batch attempt.
type BatchOutcome struct {
	Results  []domain.ExtractionResult
	Failed   []domain.FailedFile
	BatchErr error
	Duration time.Duration

	// NeedsSplit is set when the service rejected the combined payload of a
	// multi-document batch; the caller re-queues the documents as singleton
	// batches instead of replaying them here.
	NeedsSplit bool
}

// RetryController converts an all-or-nothing batch failure into a partial,
// per-document outcome: on a hard batch error every document is replayed
// individually exactly once, and only documents whose replay also fails are
// given up on.
type RetryController struct {
	service ports.ExtractionService
}

func NewRetryController(service ports.ExtractionService) *RetryController {
	return &RetryController{service: service}
}

type batchRun struct {
	batch domain.Batch
	state batchState
}

func (r *batchRun) transition(to batchState) {
	slog.Debug("batch_state_transition", "batch_id", r.batch.ID, "from", string(r.state), "to", string(to))
	r.state = to
}

// Process attempts the whole batch in one round trip, falling back to
// individual replays on failure. Errors are absorbed into FailedFile records
// except for the payload-rejection split signal.
func (r *RetryController) Process(ctx context.Context, batch domain.Batch) BatchOutcome {
	run := &batchRun{batch: batch, state: statePending}

	run.transition(stateBatchAttempted)
	start := time.Now()
	results, err := r.service.ExtractBatch(ctx, batch)
	outcome := BatchOutcome{Duration: time.Since(start)}

	if err == nil {
		run.transition(stateSuccess)
		run.transition(stateResolved)
		outcome.Results = results
		return outcome
	}
	outcome.BatchErr = err

	slog.Warn("batch_extraction_failed",
		"batch_id", batch.ID,
		"file_count", batch.FileCount(),
		"error_type", string(domain.ClassifyError(err)),
		"error", err,
	)

	if domain.ClassifyError(err) == domain.ErrorPayloadTooLarge && batch.FileCount() > 1 && !batch.Requeued {
		run.transition(stateResplit)
		run.transition(stateResolved)
		outcome.NeedsSplit = true
		return outcome
	}

	run.transition(stateIndividualRetry)
	outcome.Results, outcome.Failed = r.replayIndividually(ctx, batch)
	run.transition(stateResolved)
	return outcome
}

func (r *RetryController) replayIndividually(ctx context.Context, batch domain.Batch) ([]domain.ExtractionResult, []domain.FailedFile) {
	var results []domain.ExtractionResult
	var failed []domain.FailedFile

	for _, doc := range batch.Documents {
		// A cancelled run stops replaying, but a timeout on one document
		// must not prevent the next from being attempted.
		if ctx.Err() != nil {
			failed = append(failed, domain.FailedFile{
				Filename:  doc.Filename,
				Error:     ctx.Err().Error(),
				ErrorType: domain.ClassifyError(ctx.Err()),
			})
			continue
		}

		result, err := r.service.ExtractDocument(ctx, doc)
		if err != nil {
			failed = append(failed, domain.FailedFile{
				Filename:   doc.Filename,
				Error:      err.Error(),
				ErrorType:  domain.ClassifyError(err),
				RetryCount: 1,
			})
			continue
		}
		if result.SourceFile == "" {
			result.SourceFile = doc.Filename
		}
		results = append(results, result)
	}
	return results, failed
}
