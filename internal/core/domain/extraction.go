package domain

import "time"

// Biomarker is one measurement the extraction service pulled out of a report.
type Biomarker struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// PatientInfo mirrors the loosely-typed patient block of a service response.
// Empty strings mean the field was absent or null in the reply.
type PatientInfo struct {
	Name        string `json:"name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	TestDate    string `json:"test_date,omitempty"`
}

func (p PatientInfo) IsZero() bool {
	return p.Name == "" && p.DateOfBirth == "" && p.Gender == "" && p.TestDate == ""
}

// ExtractionResult is one document's parsed extraction output. A result with
// an empty biomarker slice and a non-empty Diagnostic is a soft "no findings"
// outcome, not a failure.
type ExtractionResult struct {
	SourceFile  string      `json:"source_file"`
	Biomarkers  []Biomarker `json:"biomarkers"`
	PatientInfo PatientInfo `json:"patient_info"`
	PanelName   string      `json:"panel_name,omitempty"`
	Diagnostic  string      `json:"diagnostic,omitempty"`
}

type ErrorType string

const (
	ErrorTimeout         ErrorType = "timeout"
	ErrorRateLimit       ErrorType = "rate_limit"
	ErrorPayloadTooLarge ErrorType = "payload_too_large"
	ErrorGatewayTimeout  ErrorType = "gateway_timeout"
	ErrorServer          ErrorType = "server_error"
	ErrorClient          ErrorType = "client_error"
	ErrorUnknown         ErrorType = "unknown"
)

// FailedFile records a document that failed both the batch attempt and its
// individual retry.
type FailedFile struct {
	Filename   string    `json:"filename"`
	Error      string    `json:"error"`
	ErrorType  ErrorType `json:"error_type"`
	RetryCount int       `json:"retry_count"`
}

// FileMetric is the per-document slice of a batch observation.
type FileMetric struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Success   bool   `json:"success"`
}

// BatchMetrics is one append-only telemetry record per extraction attempt.
type BatchMetrics struct {
	BatchID         string       `json:"batch_id"`
	FileCount       int          `json:"file_count"`
	PayloadBytes    int64        `json:"payload_bytes"`
	EstimatedTokens int          `json:"estimated_tokens"`
	DurationMs      int64        `json:"duration_ms"`
	Success         bool         `json:"success"`
	StatusCode      int          `json:"status_code,omitempty"`
	ErrorType       ErrorType    `json:"error_type,omitempty"`
	Files           []FileMetric `json:"files,omitempty"`
	RecordedAt      time.Time    `json:"recorded_at"`
}

// TelemetryAggregate summarizes every batch recorded during a run.
type TelemetryAggregate struct {
	BatchCount        int     `json:"batch_count"`
	SuccessRate       float64 `json:"success_rate"`
	AverageDurationMs float64 `json:"average_duration_ms"`
	TimeoutCount      int     `json:"timeout_count"`
	RateLimitCount    int     `json:"rate_limit_count"`
	FailedBatchCount  int     `json:"failed_batch_count"`
}

// PipelineOutcome is the combined, partial-success-friendly result of one
// session run.
type PipelineOutcome struct {
	Results      []ExtractionResult `json:"results"`
	FailedFiles  []FailedFile       `json:"failed_files"`
	SkippedFiles []SkippedDocument  `json:"skipped_files"`
}
