package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/core/ports"
)

// ReportUseCase is the read side of a session: status, consolidated report,
// per-batch telemetry, and operator confirmation of the matched client.
type ReportUseCase struct {
	sessions ports.SessionRepository
	reports  ports.ReportRepository
}

func NewReportUseCase(sessions ports.SessionRepository, reports ports.ReportRepository) *ReportUseCase {
	return &ReportUseCase{sessions: sessions, reports: reports}
}

func (uc *ReportUseCase) GetSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	return uc.sessions.GetSession(ctx, id)
}

func (uc *ReportUseCase) GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	if _, err := uc.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return uc.reports.GetReport(ctx, sessionID)
}

func (uc *ReportUseCase) ListBatchMetrics(ctx context.Context, sessionID string) ([]domain.BatchMetrics, error) {
	if _, err := uc.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return uc.reports.ListBatchMetrics(ctx, sessionID)
}

// ConfirmClient records the operator's choice among the match candidates.
// The chosen client must be one of the candidates proposed in the report.
func (uc *ReportUseCase) ConfirmClient(ctx context.Context, sessionID, clientID string) error {
	report, err := uc.reports.GetReport(ctx, sessionID)
	if err != nil {
		return err
	}

	found := false
	for _, candidate := range report.Candidates {
		if candidate.ClientID == clientID {
			found = true
			break
		}
	}
	if !found {
		return domain.WrapError(domain.ErrInvalidInput, "confirm client",
			fmt.Errorf("client %s is not a candidate for session %s", clientID, sessionID))
	}

	return uc.reports.ConfirmClient(ctx, sessionID, clientID)
}
