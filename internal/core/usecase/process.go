package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/core/ports"
)

// ProcessSessionUseCase runs the full extraction pipeline for one upload
// session: convert stored files, run the batch pipeline, consolidate,
// match against the client registry and persist the report proposal.
type ProcessSessionUseCase struct {
	sessions  ports.SessionRepository
	reports   ports.ReportRepository
	registry  ports.ClientRegistry
	converter ports.DocumentConverter
	pipeline  *Pipeline

	consolidator *Consolidator
	matcher      *ClientMatcher
}

func NewProcessSessionUseCase(
	sessions ports.SessionRepository,
	reports ports.ReportRepository,
	registry ports.ClientRegistry,
	converter ports.DocumentConverter,
	pipeline *Pipeline,
) *ProcessSessionUseCase {
	return &ProcessSessionUseCase{
		sessions:     sessions,
		reports:      reports,
		registry:     registry,
		converter:    converter,
		pipeline:     pipeline,
		consolidator: NewConsolidator(),
		matcher:      NewClientMatcher(),
	}
}

func (uc *ProcessSessionUseCase) ProcessSession(ctx context.Context, sessionID string) error {
	if err := uc.sessions.UpdateStatus(ctx, sessionID, domain.SessionProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	report, run, err := uc.processPipeline(ctx, sessionID)
	if err != nil {
		if failErr := uc.sessions.UpdateStatus(ctx, sessionID, domain.SessionFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.persist(ctx, sessionID, report, run); err != nil {
		if failErr := uc.sessions.UpdateStatus(ctx, sessionID, domain.SessionFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.sessions.UpdateStatus(ctx, sessionID, domain.SessionReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessSessionUseCase) processPipeline(ctx context.Context, sessionID string) (*domain.SessionReport, *PipelineRun, error) {
	stored, err := uc.sessions.ListDocuments(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("list session documents: %w", err)
	}

	processed, unreadable := uc.convertAll(ctx, stored)

	run, err := uc.pipeline.Run(ctx, processed)
	if err != nil {
		return nil, nil, fmt.Errorf("run extraction pipeline: %w", err)
	}
	run.Outcome.SkippedFiles = append(run.Outcome.SkippedFiles, unreadable...)

	patientInfo, markers := uc.consolidator.Consolidate(run.Outcome.Results)

	candidates, err := uc.matchClients(ctx, patientInfo)
	if err != nil {
		return nil, nil, err
	}

	report := &domain.SessionReport{
		SessionID:    sessionID,
		PatientInfo:  patientInfo,
		Biomarkers:   sortedBiomarkers(markers),
		Candidates:   candidates,
		FailedFiles:  run.Outcome.FailedFiles,
		SkippedFiles: run.Outcome.SkippedFiles,
		CreatedAt:    time.Now().UTC(),
	}
	return report, run, nil
}

// convertAll turns stored uploads into pipeline input. A file the converter
// cannot read is reported as skipped, not fatal.
func (uc *ProcessSessionUseCase) convertAll(ctx context.Context, stored []domain.SessionDocument) ([]domain.ProcessedDocument, []domain.SkippedDocument) {
	processed := make([]domain.ProcessedDocument, 0, len(stored))
	var unreadable []domain.SkippedDocument

	for _, doc := range stored {
		converted, err := uc.converter.Convert(ctx, doc)
		if err != nil {
			slog.Warn("document_conversion_failed", "session_id", doc.SessionID, "filename", doc.Filename, "error", err)
			unreadable = append(unreadable, domain.SkippedDocument{
				Filename: doc.Filename,
				Reason:   fmt.Sprintf("unreadable document: %v", err),
			})
			continue
		}
		processed = append(processed, converted)
	}
	return processed, unreadable
}

func (uc *ProcessSessionUseCase) matchClients(ctx context.Context, info domain.ConsolidatedPatientInfo) ([]domain.ClientMatchCandidate, error) {
	if info.Name == "" {
		return nil, nil
	}
	clients, err := uc.registry.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list client registry: %w", err)
	}
	return uc.matcher.Match(info, clients), nil
}

func (uc *ProcessSessionUseCase) persist(ctx context.Context, sessionID string, report *domain.SessionReport, run *PipelineRun) error {
	if err := uc.reports.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("save session report: %w", err)
	}
	if err := uc.reports.SaveBatchMetrics(ctx, sessionID, run.Telemetry.All()); err != nil {
		return fmt.Errorf("save batch telemetry: %w", err)
	}

	agg := run.Telemetry.Aggregate()
	slog.Info("session_processed",
		"session_id", sessionID,
		"results", len(report.Biomarkers),
		"failed_files", len(report.FailedFiles),
		"skipped_files", len(report.SkippedFiles),
		"batches", agg.BatchCount,
		"success_rate", agg.SuccessRate,
		"avg_duration_ms", agg.AverageDurationMs,
	)
	return nil
}

func sortedBiomarkers(set domain.ConsolidatedBiomarkerSet) []domain.ConsolidatedBiomarker {
	out := make([]domain.ConsolidatedBiomarker, 0, len(set))
	for _, marker := range set {
		out = append(out, marker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
