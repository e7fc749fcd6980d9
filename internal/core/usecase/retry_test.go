package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/labflow/internal/core/domain"
)

type fakeExtractionService struct {
	batchResults []domain.ExtractionResult
	batchErr     error
	batchCalls   int

	docErr   map[string]error
	docCalls []string
}

func (f *fakeExtractionService) ExtractBatch(_ context.Context, _ domain.Batch) ([]domain.ExtractionResult, error) {
	f.batchCalls++
	return f.batchResults, f.batchErr
}

func (f *fakeExtractionService) ExtractDocument(_ context.Context, doc domain.ProcessedDocument) (domain.ExtractionResult, error) {
	f.docCalls = append(f.docCalls, doc.Filename)
	if err, ok := f.docErr[doc.Filename]; ok && err != nil {
		return domain.ExtractionResult{}, err
	}
	return domain.ExtractionResult{SourceFile: doc.Filename}, nil
}

func threeDocBatch() domain.Batch {
	return domain.Batch{
		ID: "batch-1",
		Documents: []domain.ProcessedDocument{
			{Filename: "a.txt", ExtractedText: "glucose 5.5"},
			{Filename: "b.txt", ExtractedText: "hdl 1.2"},
			{Filename: "c.txt", ExtractedText: "tsh 2.0"},
		},
	}
}

func TestProcessBatchSuccess(t *testing.T) {
	service := &fakeExtractionService{
		batchResults: []domain.ExtractionResult{
			{SourceFile: "a.txt"}, {SourceFile: "b.txt"}, {SourceFile: "c.txt"},
		},
	}
	controller := NewRetryController(service)

	outcome := controller.Process(context.Background(), threeDocBatch())

	if outcome.BatchErr != nil {
		t.Fatalf("BatchErr = %v", outcome.BatchErr)
	}
	if len(outcome.Results) != 3 || len(outcome.Failed) != 0 {
		t.Errorf("results=%d failed=%d, want 3/0", len(outcome.Results), len(outcome.Failed))
	}
	if len(service.docCalls) != 0 {
		t.Errorf("individual replays on success: %v", service.docCalls)
	}
}

func TestProcessBatchFailureReplaysIndividually(t *testing.T) {
	service := &fakeExtractionService{
		batchErr: errors.New("upstream exploded"),
		docErr:   map[string]error{"b.txt": errors.New("still failing")},
	}
	controller := NewRetryController(service)

	outcome := controller.Process(context.Background(), threeDocBatch())

	if outcome.BatchErr == nil {
		t.Fatal("expected BatchErr to carry the batch failure")
	}
	if outcome.NeedsSplit {
		t.Error("generic failure should not request a split")
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("results = %d, want 2 recovered documents", len(outcome.Results))
	}
	if len(outcome.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(outcome.Failed))
	}
	failed := outcome.Failed[0]
	if failed.Filename != "b.txt" || failed.RetryCount != 1 {
		t.Errorf("failed file = %+v, want b.txt with RetryCount 1", failed)
	}
	if len(service.docCalls) != 3 {
		t.Errorf("replay calls = %v, want each document once", service.docCalls)
	}
}

func TestProcessPayloadRejectionRequestsSplit(t *testing.T) {
	service := &fakeExtractionService{
		batchErr: &domain.ExtractionError{
			Operation:  "extract_batch",
			StatusCode: 413,
			Type:       domain.ErrorPayloadTooLarge,
			Err:        errors.New("payload too large"),
		},
	}
	controller := NewRetryController(service)

	outcome := controller.Process(context.Background(), threeDocBatch())

	if !outcome.NeedsSplit {
		t.Fatal("expected NeedsSplit for multi-document payload rejection")
	}
	if len(outcome.Results) != 0 || len(outcome.Failed) != 0 {
		t.Errorf("split outcome should carry no per-document verdicts: %+v", outcome)
	}
	if len(service.docCalls) != 0 {
		t.Errorf("split path must not replay individually: %v", service.docCalls)
	}
}

func TestProcessPayloadRejectionOnRequeuedBatchReplays(t *testing.T) {
	service := &fakeExtractionService{
		batchErr: &domain.ExtractionError{
			Operation:  "extract_batch",
			StatusCode: 413,
			Type:       domain.ErrorPayloadTooLarge,
			Err:        errors.New("payload too large"),
		},
		docErr: map[string]error{"solo.txt": errors.New("payload too large")},
	}
	controller := NewRetryController(service)

	batch := domain.Batch{
		ID:        "requeued-1",
		Documents: []domain.ProcessedDocument{{Filename: "solo.txt", ExtractedText: "x"}},
		Requeued:  true,
	}
	outcome := controller.Process(context.Background(), batch)

	if outcome.NeedsSplit {
		t.Fatal("requeued singleton must never split again")
	}
	if len(outcome.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(outcome.Failed))
	}
}

func TestProcessCancelledReplayStops(t *testing.T) {
	service := &fakeExtractionService{batchErr: errors.New("boom")}
	controller := NewRetryController(service)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := controller.Process(ctx, threeDocBatch())

	if len(outcome.Failed) != 3 {
		t.Fatalf("failed = %d, want all 3 on cancellation", len(outcome.Failed))
	}
	for _, failed := range outcome.Failed {
		if failed.RetryCount != 0 {
			t.Errorf("cancelled document %s counted a retry that never ran", failed.Filename)
		}
	}
	if len(service.docCalls) != 0 {
		t.Errorf("cancelled context must not issue replays: %v", service.docCalls)
	}
}
