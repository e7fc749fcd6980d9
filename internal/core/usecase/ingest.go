package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/core/ports"
)

type IngestSessionUseCase struct {
	repo    ports.SessionRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestSessionUseCase(
	repo ports.SessionRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestSessionUseCase {
	return &IngestSessionUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestSessionUseCase) CreateSession(ctx context.Context) (*domain.UploadSession, error) {
	now := time.Now().UTC()
	session := &domain.UploadSession{
		ID:        uuid.NewString(),
		Status:    domain.SessionUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (uc *IngestSessionUseCase) AddDocument(
	ctx context.Context,
	sessionID, filename, mimeType string,
	body io.Reader,
) (*domain.SessionDocument, error) {
	session, err := uc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if session.Status != domain.SessionUploaded {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add document",
			fmt.Errorf("session %s is %s, uploads closed", sessionID, session.Status))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", sessionID, id, sanitizeFilename(filename))

	counted := &countingReader{reader: body}
	if err := uc.storage.Save(ctx, storageKey, counted); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.SessionDocument{
		ID:          id,
		SessionID:   sessionID,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		SizeBytes:   counted.read,
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.repo.AddDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	return doc, nil
}

// StartProcessing closes the session for uploads and hands it to the worker.
func (uc *IngestSessionUseCase) StartProcessing(ctx context.Context, sessionID string) error {
	docs, err := uc.repo.ListDocuments(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list session documents: %w", err)
	}
	if len(docs) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "start processing", errors.New("session has no documents"))
	}

	if err := uc.repo.UpdateStatus(ctx, sessionID, domain.SessionProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}
	if err := uc.queue.PublishSessionUploaded(ctx, sessionID); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

type countingReader struct {
	reader io.Reader
	read   int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.read += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
