package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/labflow/internal/core/domain"
)

// scriptedService drives the pipeline through multi-call scenarios: the
// script decides each ExtractBatch outcome by call order.
type scriptedService struct {
	script     func(call int, batch domain.Batch) ([]domain.ExtractionResult, error)
	batchCalls int
	batches    []domain.Batch
	docCalls   []string
}

func (s *scriptedService) ExtractBatch(_ context.Context, batch domain.Batch) ([]domain.ExtractionResult, error) {
	s.batchCalls++
	s.batches = append(s.batches, batch)
	return s.script(s.batchCalls, batch)
}

func (s *scriptedService) ExtractDocument(_ context.Context, doc domain.ProcessedDocument) (domain.ExtractionResult, error) {
	s.docCalls = append(s.docCalls, doc.Filename)
	return domain.ExtractionResult{SourceFile: doc.Filename}, nil
}

func okBatch(batch domain.Batch) []domain.ExtractionResult {
	results := make([]domain.ExtractionResult, 0, len(batch.Documents))
	for _, doc := range batch.Documents {
		results = append(results, domain.ExtractionResult{
			SourceFile: doc.Filename,
			Biomarkers: []domain.Biomarker{{Name: "Glucose", Value: "5.5", Unit: "mmol/L"}},
		})
	}
	return results
}

type observerSpy struct {
	observed []domain.BatchMetrics
}

func (o *observerSpy) ObserveBatch(metrics domain.BatchMetrics) {
	o.observed = append(o.observed, metrics)
}

func newTestPipeline(service *scriptedService, limits domain.BatchLimits, observer BatchObserver) *Pipeline {
	estimator := NewPayloadEstimator(limits)
	return NewPipeline(
		NewDocumentFilter(0),
		NewBatchPlanner(limits, estimator),
		NewRetryController(service),
		NewDelayController(DelayConfig{MinDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		observer,
	)
}

func labText(marker string) string {
	return marker + " measured at 5.5 mmol/L against reference range 3.9-6.1 on 2026-03-01"
}

func TestPipelineRunAllBatchesSucceed(t *testing.T) {
	service := &scriptedService{
		script: func(_ int, batch domain.Batch) ([]domain.ExtractionResult, error) {
			return okBatch(batch), nil
		},
	}
	spy := &observerSpy{}
	pipeline := newTestPipeline(service, domain.BatchLimits{MaxFiles: 2}, spy)

	docs := []domain.ProcessedDocument{
		{Filename: "a.txt", ExtractedText: labText("glucose")},
		{Filename: "b.txt", ExtractedText: labText("cholesterol")},
		{Filename: "c.txt", ExtractedText: labText("ferritin")},
	}

	run, err := pipeline.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(run.Outcome.Results) != 3 {
		t.Errorf("results = %d, want 3", len(run.Outcome.Results))
	}
	if len(run.Outcome.FailedFiles) != 0 || len(run.Outcome.SkippedFiles) != 0 {
		t.Errorf("unexpected failures/skips: %+v", run.Outcome)
	}
	if service.batchCalls != 2 {
		t.Errorf("batch calls = %d, want 2 (files ceiling of 2)", service.batchCalls)
	}
	if agg := run.Telemetry.Aggregate(); agg.BatchCount != 2 || agg.SuccessRate != 1.0 {
		t.Errorf("aggregate = %+v, want 2 successful batches", agg)
	}
	if len(spy.observed) != 2 {
		t.Errorf("observer saw %d batches, want 2", len(spy.observed))
	}
}

func TestPipelineRunPartialFailureIsolatesDocuments(t *testing.T) {
	service := &scriptedService{
		script: func(call int, batch domain.Batch) ([]domain.ExtractionResult, error) {
			if call == 1 {
				return nil, errors.New("upstream error")
			}
			return okBatch(batch), nil
		},
	}
	pipeline := newTestPipeline(service, domain.BatchLimits{MaxFiles: 2}, nil)

	docs := []domain.ProcessedDocument{
		{Filename: "a.txt", ExtractedText: labText("glucose")},
		{Filename: "b.txt", ExtractedText: labText("cholesterol")},
		{Filename: "c.txt", ExtractedText: labText("ferritin")},
	}

	run, err := pipeline.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// First batch fails, its two documents replay individually and succeed;
	// the second batch succeeds directly.
	if len(run.Outcome.Results) != 3 {
		t.Errorf("results = %d, want 3 after individual recovery", len(run.Outcome.Results))
	}
	if len(run.Outcome.FailedFiles) != 0 {
		t.Errorf("failed = %+v, want none", run.Outcome.FailedFiles)
	}
	if len(service.docCalls) != 2 {
		t.Errorf("individual replays = %v, want the first batch's documents", service.docCalls)
	}
	agg := run.Telemetry.Aggregate()
	if agg.FailedBatchCount != 1 {
		t.Errorf("failed batch count = %d, want 1", agg.FailedBatchCount)
	}
}

func TestPipelineRunPayloadRejectionRequeuesSingletons(t *testing.T) {
	payloadErr := &domain.ExtractionError{
		Operation:  "extract_batch",
		StatusCode: 413,
		Type:       domain.ErrorPayloadTooLarge,
		Err:        errors.New("payload too large"),
	}
	service := &scriptedService{
		script: func(call int, batch domain.Batch) ([]domain.ExtractionResult, error) {
			if call == 1 {
				return nil, payloadErr
			}
			return okBatch(batch), nil
		},
	}
	pipeline := newTestPipeline(service, domain.BatchLimits{MaxFiles: 3}, nil)

	docs := []domain.ProcessedDocument{
		{Filename: "a.txt", ExtractedText: labText("glucose")},
		{Filename: "b.txt", ExtractedText: labText("cholesterol")},
	}

	run, err := pipeline.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(run.Outcome.Results) != 2 {
		t.Fatalf("results = %d, want both documents recovered via requeue", len(run.Outcome.Results))
	}
	// One combined attempt plus one call per requeued singleton.
	if service.batchCalls != 3 {
		t.Errorf("batch calls = %d, want 3", service.batchCalls)
	}
	for _, batch := range service.batches[1:] {
		if !batch.Requeued || batch.FileCount() != 1 {
			t.Errorf("requeued batch = %+v, want singleton with Requeued set", batch)
		}
	}
	if len(service.docCalls) != 0 {
		t.Errorf("payload rejection must requeue, not replay: %v", service.docCalls)
	}
}

func TestPipelineRunOversizedDocumentFailsWithoutNetworkCall(t *testing.T) {
	service := &scriptedService{
		script: func(_ int, batch domain.Batch) ([]domain.ExtractionResult, error) {
			return okBatch(batch), nil
		},
	}
	limits := domain.BatchLimits{MaxPayloadBytes: 2048}
	pipeline := newTestPipeline(service, limits, nil)

	docs := []domain.ProcessedDocument{
		{Filename: "ok.txt", ExtractedText: labText("glucose")},
		{Filename: "huge.txt", ExtractedText: labText("cholesterol") + strings.Repeat("x", 4096)},
	}

	run, err := pipeline.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(run.Outcome.Results) != 1 {
		t.Errorf("results = %d, want 1", len(run.Outcome.Results))
	}
	if len(run.Outcome.FailedFiles) != 1 {
		t.Fatalf("failed = %d, want 1", len(run.Outcome.FailedFiles))
	}
	failed := run.Outcome.FailedFiles[0]
	if failed.Filename != "huge.txt" || failed.ErrorType != domain.ErrorPayloadTooLarge {
		t.Errorf("failed file = %+v", failed)
	}
	for _, batch := range service.batches {
		for _, doc := range batch.Documents {
			if doc.Filename == "huge.txt" {
				t.Error("oversized document reached the extraction service")
			}
		}
	}
}

func TestPipelineRunStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	service := &scriptedService{
		script: func(_ int, batch domain.Batch) ([]domain.ExtractionResult, error) {
			cancel()
			return okBatch(batch), nil
		},
	}
	pipeline := newTestPipeline(service, domain.BatchLimits{MaxFiles: 1}, nil)

	docs := []domain.ProcessedDocument{
		{Filename: "a.txt", ExtractedText: labText("glucose")},
		{Filename: "b.txt", ExtractedText: labText("cholesterol")},
	}

	run, err := pipeline.Run(ctx, docs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(run.Outcome.Results) != 1 {
		t.Errorf("results = %d, want the batch completed before cancellation", len(run.Outcome.Results))
	}
	if service.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1", service.batchCalls)
	}
}

func TestPipelineRunSkipsUnusableDocuments(t *testing.T) {
	service := &scriptedService{
		script: func(_ int, batch domain.Batch) ([]domain.ExtractionResult, error) {
			return okBatch(batch), nil
		},
	}
	pipeline := newTestPipeline(service, domain.BatchLimits{MaxFiles: 10}, nil)

	docs := []domain.ProcessedDocument{
		{Filename: "empty.txt", ExtractedText: "hi"},
		{Filename: "real.txt", ExtractedText: labText("glucose")},
	}

	run, err := pipeline.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(run.Outcome.SkippedFiles) != 1 || run.Outcome.SkippedFiles[0].Filename != "empty.txt" {
		t.Errorf("skipped = %+v, want empty.txt", run.Outcome.SkippedFiles)
	}
	if len(run.Outcome.Results) != 1 {
		t.Errorf("results = %d, want 1", len(run.Outcome.Results))
	}
}
