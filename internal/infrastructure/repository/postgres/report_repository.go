package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/labflow/internal/core/domain"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) SaveReport(ctx context.Context, report *domain.SessionReport) error {
	patientJSON, err := json.Marshal(report.PatientInfo)
	if err != nil {
		return fmt.Errorf("marshal patient info: %w", err)
	}
	biomarkersJSON, err := json.Marshal(orEmptySlice(report.Biomarkers))
	if err != nil {
		return fmt.Errorf("marshal biomarkers: %w", err)
	}
	candidatesJSON, err := json.Marshal(orEmptySlice(report.Candidates))
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	failedJSON, err := json.Marshal(orEmptySlice(report.FailedFiles))
	if err != nil {
		return fmt.Errorf("marshal failed files: %w", err)
	}
	skippedJSON, err := json.Marshal(orEmptySlice(report.SkippedFiles))
	if err != nil {
		return fmt.Errorf("marshal skipped files: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO session_reports (session_id, patient_info, biomarkers, candidates, failed_files, skipped_files, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (session_id) DO UPDATE SET
	patient_info = EXCLUDED.patient_info,
	biomarkers = EXCLUDED.biomarkers,
	candidates = EXCLUDED.candidates,
	failed_files = EXCLUDED.failed_files,
	skipped_files = EXCLUDED.skipped_files,
	created_at = EXCLUDED.created_at
`,
		report.SessionID, patientJSON, biomarkersJSON, candidatesJSON, failedJSON, skippedJSON, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session report: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT session_id, patient_info, biomarkers, candidates, failed_files, skipped_files, confirmed_client_id, created_at
FROM session_reports
WHERE session_id = $1
`, sessionID)

	var report domain.SessionReport
	var patientRaw, biomarkersRaw, candidatesRaw, failedRaw, skippedRaw []byte
	var confirmed sql.NullString

	err := row.Scan(&report.SessionID, &patientRaw, &biomarkersRaw, &candidatesRaw, &failedRaw, &skippedRaw, &confirmed, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrReportNotFound, "get report", fmt.Errorf("session=%s", sessionID))
		}
		return nil, fmt.Errorf("select session report: %w", err)
	}

	if err := json.Unmarshal(patientRaw, &report.PatientInfo); err != nil {
		return nil, fmt.Errorf("unmarshal patient info: %w", err)
	}
	if err := json.Unmarshal(biomarkersRaw, &report.Biomarkers); err != nil {
		return nil, fmt.Errorf("unmarshal biomarkers: %w", err)
	}
	if err := json.Unmarshal(candidatesRaw, &report.Candidates); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}
	if err := json.Unmarshal(failedRaw, &report.FailedFiles); err != nil {
		return nil, fmt.Errorf("unmarshal failed files: %w", err)
	}
	if err := json.Unmarshal(skippedRaw, &report.SkippedFiles); err != nil {
		return nil, fmt.Errorf("unmarshal skipped files: %w", err)
	}
	report.ConfirmedClientID = confirmed.String
	return &report, nil
}

func (r *ReportRepository) ConfirmClient(ctx context.Context, sessionID, clientID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE session_reports SET confirmed_client_id = $2 WHERE session_id = $1
`, sessionID, clientID)
	if err != nil {
		return fmt.Errorf("confirm client: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm client rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrReportNotFound, "confirm client", fmt.Errorf("session=%s", sessionID))
	}
	return nil
}

func (r *ReportRepository) SaveBatchMetrics(ctx context.Context, sessionID string, metrics []domain.BatchMetrics) error {
	for _, entry := range metrics {
		filesJSON, err := json.Marshal(orEmptySlice(entry.Files))
		if err != nil {
			return fmt.Errorf("marshal batch files: %w", err)
		}
		_, err = r.db.ExecContext(ctx, `
INSERT INTO session_batches (session_id, batch_id, file_count, payload_bytes, estimated_tokens, duration_ms, success, status_code, error_type, files, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			sessionID, entry.BatchID, entry.FileCount, entry.PayloadBytes, entry.EstimatedTokens,
			entry.DurationMs, entry.Success, entry.StatusCode, string(entry.ErrorType), filesJSON, entry.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert batch metrics: %w", err)
		}
	}
	return nil
}

func (r *ReportRepository) ListBatchMetrics(ctx context.Context, sessionID string) ([]domain.BatchMetrics, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT batch_id, file_count, payload_bytes, estimated_tokens, duration_ms, success, status_code, error_type, files, recorded_at
FROM session_batches
WHERE session_id = $1
ORDER BY recorded_at, id
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select batch metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.BatchMetrics
	for rows.Next() {
		var entry domain.BatchMetrics
		var errType string
		var filesRaw []byte
		if err := rows.Scan(&entry.BatchID, &entry.FileCount, &entry.PayloadBytes, &entry.EstimatedTokens,
			&entry.DurationMs, &entry.Success, &entry.StatusCode, &errType, &filesRaw, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan batch metrics: %w", err)
		}
		entry.ErrorType = domain.ErrorType(errType)
		if err := json.Unmarshal(filesRaw, &entry.Files); err != nil {
			return nil, fmt.Errorf("unmarshal batch files: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch metrics: %w", err)
	}
	return out, nil
}

// orEmptySlice keeps JSONB columns as [] instead of null.
func orEmptySlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
