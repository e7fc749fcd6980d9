package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/labflow/internal/core/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_documents (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_reports (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	patient_info JSONB NOT NULL DEFAULT '{}'::jsonb,
	biomarkers JSONB NOT NULL DEFAULT '[]'::jsonb,
	candidates JSONB NOT NULL DEFAULT '[]'::jsonb,
	failed_files JSONB NOT NULL DEFAULT '[]'::jsonb,
	skipped_files JSONB NOT NULL DEFAULT '[]'::jsonb,
	confirmed_client_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_batches (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	batch_id TEXT NOT NULL,
	file_count INT NOT NULL,
	payload_bytes BIGINT NOT NULL,
	estimated_tokens INT NOT NULL,
	duration_ms BIGINT NOT NULL,
	success BOOLEAN NOT NULL,
	status_code INT NOT NULL DEFAULT 0,
	error_type TEXT NOT NULL DEFAULT '',
	files JSONB NOT NULL DEFAULT '[]'::jsonb,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	date_of_birth TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_session_documents_session ON session_documents(session_id);
CREATE INDEX IF NOT EXISTS idx_session_batches_session ON session_batches(session_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *domain.UploadSession) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (id, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
`,
		session.ID, string(session.Status), session.Error, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT s.id, s.status, s.error_message,
	(SELECT COUNT(*) FROM session_documents d WHERE d.session_id = s.id),
	s.created_at, s.updated_at
FROM sessions s
WHERE s.id = $1
`, id)

	var session domain.UploadSession
	var status string
	err := row.Scan(&session.ID, &status, &session.Error, &session.DocumentCount, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	return &session, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE sessions SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "update session status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *SessionRepository) AddDocument(ctx context.Context, doc *domain.SessionDocument) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO session_documents (id, session_id, filename, mime_type, storage_path, size_bytes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		doc.ID, doc.SessionID, doc.Filename, doc.MimeType, doc.StoragePath, doc.SizeBytes, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session document: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListDocuments(ctx context.Context, sessionID string) ([]domain.SessionDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, filename, mime_type, storage_path, size_bytes, created_at
FROM session_documents
WHERE session_id = $1
ORDER BY created_at, id
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select session documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.SessionDocument
	for rows.Next() {
		var doc domain.SessionDocument
		if err := rows.Scan(&doc.ID, &doc.SessionID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.SizeBytes, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session documents: %w", err)
	}
	return docs, nil
}
