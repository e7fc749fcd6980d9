package ports

import (
	"context"
	"io"

	"github.com/kirillkom/labflow/internal/core/domain"
)

// SessionIngestor is the inbound contract for upload orchestration.
type SessionIngestor interface {
	CreateSession(ctx context.Context) (*domain.UploadSession, error)
	AddDocument(ctx context.Context, sessionID, filename, mimeType string, body io.Reader) (*domain.SessionDocument, error)
	StartProcessing(ctx context.Context, sessionID string) error
}

// SessionProcessor is the inbound contract for asynchronous session runs.
type SessionProcessor interface {
	ProcessSession(ctx context.Context, sessionID string) error
}

// SessionReader is the inbound read model for session state and results.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*domain.UploadSession, error)
	GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error)
	ListBatchMetrics(ctx context.Context, sessionID string) ([]domain.BatchMetrics, error)
}
