package domain

import "time"

type SessionStatus string

const (
	SessionUploaded   SessionStatus = "uploaded"
	SessionProcessing SessionStatus = "processing"
	SessionReady      SessionStatus = "ready"
	SessionFailed     SessionStatus = "failed"
)

// UploadSession groups the documents of one user upload. All documents of a
// session are assumed to belong to the same patient.
type UploadSession struct {
	ID            string        `json:"id"`
	Status        SessionStatus `json:"status"`
	DocumentCount int           `json:"document_count"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SessionDocument is the stored metadata of one uploaded file.
type SessionDocument struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProcessedDocument is the conversion collaborator's output: plain text or
// page images ready for the extraction service. Immutable after creation.
type ProcessedDocument struct {
	Filename      string
	MimeType      string
	ExtractedText string
	ImagePages    [][]byte
	PageCount     int
}

func (d ProcessedDocument) HasImages() bool {
	return len(d.ImagePages) > 0
}

// SizeBytes approximates the serialized size of the document payload.
func (d ProcessedDocument) SizeBytes() int64 {
	total := int64(len(d.ExtractedText))
	for _, page := range d.ImagePages {
		total += int64(len(page))
	}
	return total
}

const (
	SkipReasonEmpty        = "empty document"
	SkipReasonNoIndicators = "insufficient lab indicators"
	SkipReasonTooLarge     = "file too large"
)

// SkippedDocument is the filter verdict for a document excluded before any
// network call.
type SkippedDocument struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}
