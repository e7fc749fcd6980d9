package ports

import (
	"context"
	"io"

	"github.com/kirillkom/labflow/internal/core/domain"
)

// SessionRepository persists upload sessions and their document metadata.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.UploadSession) error
	GetSession(ctx context.Context, id string) (*domain.UploadSession, error)
	UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, errMessage string) error
	AddDocument(ctx context.Context, doc *domain.SessionDocument) error
	ListDocuments(ctx context.Context, sessionID string) ([]domain.SessionDocument, error)
}

// ObjectStorage stores raw uploaded files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes session processing events.
type MessageQueue interface {
	PublishSessionUploaded(ctx context.Context, sessionID string) error
	SubscribeSessionUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentConverter turns a stored upload into extraction-service input.
// Conversion itself (OCR, rasterization, text layers) is a collaborator
// concern; the pipeline only depends on the ProcessedDocument shape.
type DocumentConverter interface {
	Convert(ctx context.Context, doc domain.SessionDocument) (domain.ProcessedDocument, error)
}

// ExtractionService is the remote model boundary. ExtractBatch performs
// exactly one round trip for the whole batch; ExtractDocument is the
// single-document replay used by the split-on-failure path.
type ExtractionService interface {
	ExtractBatch(ctx context.Context, batch domain.Batch) ([]domain.ExtractionResult, error)
	ExtractDocument(ctx context.Context, doc domain.ProcessedDocument) (domain.ExtractionResult, error)
}

// ClientRegistry reads the existing client base the matcher scores against.
type ClientRegistry interface {
	ListClients(ctx context.Context) ([]domain.ClientRecord, error)
}

// ReportRepository persists consolidated reports and per-batch telemetry for
// the human confirmation step.
type ReportRepository interface {
	SaveReport(ctx context.Context, report *domain.SessionReport) error
	GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error)
	ConfirmClient(ctx context.Context, sessionID, clientID string) error
	SaveBatchMetrics(ctx context.Context, sessionID string, metrics []domain.BatchMetrics) error
	ListBatchMetrics(ctx context.Context, sessionID string) ([]domain.BatchMetrics, error)
}
