package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/labflow/internal/core/domain"
)

func newReportRepoMock(t *testing.T) (*ReportRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewReportRepository(db), mock
}

func TestSaveReportMarshalsEmptySlices(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	now := time.Now().UTC()
	report := &domain.SessionReport{
		SessionID: "s1",
		PatientInfo: domain.ConsolidatedPatientInfo{
			Name: "Jane Doe",
		},
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO session_reports").
		WithArgs("s1",
			sqlmock.AnyArg(),
			[]byte("[]"), // nil biomarkers persist as an empty JSON array
			[]byte("[]"),
			[]byte("[]"),
			[]byte("[]"),
			now,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveReport(context.Background(), report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetReportNotFound(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	mock.ExpectQuery("SELECT session_id, patient_info").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "patient_info", "biomarkers", "candidates",
			"failed_files", "skipped_files", "confirmed_client_id", "created_at",
		}))

	_, err := repo.GetReport(context.Background(), "s1")
	if !domain.IsKind(err, domain.ErrReportNotFound) {
		t.Fatalf("err = %v, want report-not-found kind", err)
	}
}

func TestGetReportRoundTrip(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"session_id", "patient_info", "biomarkers", "candidates",
		"failed_files", "skipped_files", "confirmed_client_id", "created_at",
	}).AddRow(
		"s1",
		[]byte(`{"name":"Jane Doe"}`),
		[]byte(`[{"name":"Glucose","value":"5.5","unit":"mmol/L"}]`),
		[]byte(`[{"client_id":"c1","client_name":"Jane Doe","score":1,"tier":"high","dob_matched":true}]`),
		[]byte(`[]`),
		[]byte(`[]`),
		nil,
		now,
	)
	mock.ExpectQuery("SELECT session_id, patient_info").WithArgs("s1").WillReturnRows(rows)

	report, err := repo.GetReport(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if report.PatientInfo.Name != "Jane Doe" {
		t.Errorf("patient = %+v", report.PatientInfo)
	}
	if len(report.Biomarkers) != 1 || report.Biomarkers[0].Name != "Glucose" {
		t.Errorf("biomarkers = %+v", report.Biomarkers)
	}
	if len(report.Candidates) != 1 || report.Candidates[0].ClientID != "c1" {
		t.Errorf("candidates = %+v", report.Candidates)
	}
	if report.ConfirmedClientID != "" {
		t.Errorf("confirmed = %q, want empty", report.ConfirmedClientID)
	}
}

func TestConfirmClientMissingReport(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	mock.ExpectExec("UPDATE session_reports SET confirmed_client_id").
		WithArgs("s1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ConfirmClient(context.Background(), "s1", "c1")
	if !domain.IsKind(err, domain.ErrReportNotFound) {
		t.Fatalf("err = %v, want report-not-found kind", err)
	}
}

func TestSaveBatchMetricsOneInsertPerEntry(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	now := time.Now().UTC()
	metrics := []domain.BatchMetrics{
		{BatchID: "b1", FileCount: 2, Success: true, RecordedAt: now},
		{BatchID: "b2", FileCount: 1, Success: false, ErrorType: domain.ErrorTimeout, RecordedAt: now},
	}

	mock.ExpectExec("INSERT INTO session_batches").
		WithArgs("s1", "b1", 2, int64(0), 0, int64(0), true, 0, "", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO session_batches").
		WithArgs("s1", "b2", 1, int64(0), 0, int64(0), false, 0, "timeout", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveBatchMetrics(context.Background(), "s1", metrics); err != nil {
		t.Fatalf("SaveBatchMetrics: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListBatchMetrics(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"batch_id", "file_count", "payload_bytes", "estimated_tokens",
		"duration_ms", "success", "status_code", "error_type", "files", "recorded_at",
	}).AddRow("b1", 2, int64(1024), 300, int64(4500), true, 0, "", []byte(`[{"filename":"a.txt","size_bytes":100,"success":true}]`), now)
	mock.ExpectQuery("SELECT batch_id, file_count").WithArgs("s1").WillReturnRows(rows)

	entries, err := repo.ListBatchMetrics(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListBatchMetrics: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.BatchID != "b1" || entry.DurationMs != 4500 || len(entry.Files) != 1 {
		t.Errorf("entry = %+v", entry)
	}
}
