package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/labflow/internal/core/domain"
)

func replyWith(text string) string {
	payload := map[string]any{
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, "test-key", "test-model", Options{})
}

func TestExtractDocumentParsesProseWrappedJSON(t *testing.T) {
	reply := "Here is the extracted data:\n```json\n" + `{
		"source_file": "report.pdf",
		"biomarkers": [
			{"name": "Glucose", "value": 5.5, "unit": "mmol/L"},
			{"name": "TSH", "value": "2.1", "unit": null}
		],
		"patient_info": {"name": "Jane Doe", "date_of_birth": "1985-04-12"}
	}` + "\n```\nLet me know if you need anything else."

	var gotVersion, gotKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte(replyWith(reply)))
	})

	result, err := client.ExtractDocument(context.Background(), domain.ProcessedDocument{
		Filename:      "report.pdf",
		ExtractedText: "glucose 5.5",
	})
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}

	if gotVersion != "2023-06-01" || gotKey != "test-key" {
		t.Errorf("headers version=%q key=%q", gotVersion, gotKey)
	}
	if len(result.Biomarkers) != 2 {
		t.Fatalf("biomarkers = %d, want 2", len(result.Biomarkers))
	}
	if result.Biomarkers[0].Value != "5.5" {
		t.Errorf("numeric value not coerced to string: %q", result.Biomarkers[0].Value)
	}
	if result.Biomarkers[1].Unit != "" {
		t.Errorf("null unit not coerced to empty: %q", result.Biomarkers[1].Unit)
	}
	if result.PatientInfo.Name != "Jane Doe" {
		t.Errorf("patient name = %q", result.PatientInfo.Name)
	}
	if result.SourceFile != "report.pdf" {
		t.Errorf("source file = %q", result.SourceFile)
	}
}

func TestExtractDocumentNoJSONIsSoftEmptyFindings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(replyWith("This document does not appear to be a lab report.")))
	})

	result, err := client.ExtractDocument(context.Background(), domain.ProcessedDocument{
		Filename: "memo.txt", ExtractedText: "hello",
	})
	if err != nil {
		t.Fatalf("no-JSON reply must not be an error: %v", err)
	}
	if len(result.Biomarkers) != 0 {
		t.Errorf("biomarkers = %d, want 0", len(result.Biomarkers))
	}
	if result.Biomarkers == nil {
		t.Error("empty findings must carry a non-nil biomarkers slice")
	}
	if result.Diagnostic == "" {
		t.Error("diagnostic missing on empty-findings result")
	}
}

func TestExtractDocumentMalformedJSONIsHardError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(replyWith(`{"biomarkers": [truncated`)))
	})

	_, err := client.ExtractDocument(context.Background(), domain.ProcessedDocument{
		Filename: "bad.pdf", ExtractedText: "glucose",
	})
	if err == nil {
		t.Fatal("expected hard error for malformed JSON span")
	}
	var extErr *domain.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %T, want *domain.ExtractionError", err)
	}
}

func TestExtractDocumentMissingBiomarkersArrayIsHardError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(replyWith(`{"patient_info": {"name": "Jane"}}`)))
	})

	_, err := client.ExtractDocument(context.Background(), domain.ProcessedDocument{
		Filename: "odd.pdf", ExtractedText: "glucose",
	})
	if err == nil {
		t.Fatal("expected hard error for reply without biomarkers array")
	}
}

func TestExtractDocumentCamelCasePatientKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(replyWith(`{"biomarkers": [], "patientInfo": {"name": "Jane Doe"}}`)))
	})

	result, err := client.ExtractDocument(context.Background(), domain.ProcessedDocument{
		Filename: "camel.pdf", ExtractedText: "glucose",
	})
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if result.PatientInfo.Name != "Jane Doe" {
		t.Errorf("camelCase patient key not honored: %+v", result.PatientInfo)
	}
}

func TestExtractBatchMapsResultsBySourceFile(t *testing.T) {
	reply := `{"documents": [
		{"source_file": "b.txt", "biomarkers": [{"name": "LDL", "value": "3.0"}]},
		{"source_file": "a.txt", "biomarkers": [{"name": "HDL", "value": "1.4"}]}
	]}`
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(replyWith(reply)))
	})

	batch := domain.Batch{
		ID: "batch-1",
		Documents: []domain.ProcessedDocument{
			{Filename: "a.txt", ExtractedText: "hdl"},
			{Filename: "b.txt", ExtractedText: "ldl"},
		},
	}
	results, err := client.ExtractBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].SourceFile != "a.txt" || results[0].Biomarkers[0].Name != "HDL" {
		t.Errorf("results not remapped by source file: %+v", results[0])
	}
	if results[1].SourceFile != "b.txt" || results[1].Biomarkers[0].Name != "LDL" {
		t.Errorf("results not remapped by source file: %+v", results[1])
	}
}

func TestExtractBatchOmittedDocumentBecomesEmptyFindings(t *testing.T) {
	reply := `{"documents": [
		{"source_file": "a.txt", "biomarkers": [{"name": "HDL", "value": "1.4"}]},
		{"source_file": "b.txt", "biomarkers": []}
	]}`
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(replyWith(reply)))
	})

	batch := domain.Batch{
		Documents: []domain.ProcessedDocument{
			{Filename: "a.txt", ExtractedText: "x"},
			{Filename: "b.txt", ExtractedText: "y"},
			{Filename: "c.txt", ExtractedText: "z"},
		},
	}
	results, err := client.ExtractBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want one per input document", len(results))
	}
	last := results[2]
	if last.SourceFile != "c.txt" || last.Diagnostic == "" || len(last.Biomarkers) != 0 {
		t.Errorf("omitted document result = %+v, want empty findings", last)
	}
}

func TestExtractBatchSingleDocumentDelegates(t *testing.T) {
	var requests int
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.Write([]byte(replyWith(`{"biomarkers": [{"name": "TSH", "value": "2.1"}]}`)))
	})

	batch := domain.Batch{
		Documents: []domain.ProcessedDocument{{Filename: "only.txt", ExtractedText: "tsh"}},
	}
	results, err := client.ExtractBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	if requests != 1 || len(results) != 1 {
		t.Errorf("requests=%d results=%d, want 1/1", requests, len(results))
	}
	if results[0].SourceFile != "only.txt" {
		t.Errorf("source file = %q", results[0].SourceFile)
	}
}

func TestExtractErrorCarriesStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   domain.ErrorType
	}{
		{http.StatusRequestTimeout, domain.ErrorTimeout},
		{http.StatusTooManyRequests, domain.ErrorRateLimit},
		{http.StatusRequestEntityTooLarge, domain.ErrorPayloadTooLarge},
		{http.StatusGatewayTimeout, domain.ErrorGatewayTimeout},
		{http.StatusInternalServerError, domain.ErrorServer},
		{http.StatusBadRequest, domain.ErrorClient},
	}

	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		})

		_, err := client.ExtractDocument(context.Background(), domain.ProcessedDocument{
			Filename: "x.txt", ExtractedText: "glucose",
		})
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if got := domain.ClassifyError(err); got != tt.want {
			t.Errorf("status %d classified as %q, want %q", tt.status, got, tt.want)
		}
		if domain.StatusCodeOf(err) != tt.status {
			t.Errorf("status code lost: got %d", domain.StatusCodeOf(err))
		}
	}
}
