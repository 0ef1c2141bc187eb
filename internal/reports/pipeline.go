// Package reports runs the report pipeline: an explicit
// Pending -> Processing -> Completed|Failed state machine with a rendered
// artifact, a completion email, a reports-group event and a cleanup
// continuation.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"monitord/internal/db"
	"monitord/internal/hub"
	"monitord/internal/jobs"
	"monitord/internal/metrics"
	"monitord/internal/models"
	"monitord/internal/notifier"
)

// Job kinds owned by this package.
const (
	KindGenerate = "report-generation"
	KindCleanup  = "report-cleanup"
)

type GeneratePayload struct {
	ReportID int64 `json:"reportId"`
}

type Service struct {
	repo      *db.Repository
	store     FileStore
	hub       *hub.Hub
	email     *notifier.Email
	sched     *jobs.Scheduler
	log       *slog.Logger
	retention int
	now       func() time.Time
}

func NewService(repo *db.Repository, store FileStore, h *hub.Hub, email *notifier.Email, sched *jobs.Scheduler, retentionDays int, logger *slog.Logger) *Service {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Service{repo: repo, store: store, hub: h, email: email, sched: sched, log: logger, retention: retentionDays, now: time.Now}
}

// Register binds the pipeline's job kinds to the scheduler.
func (s *Service) Register() {
	s.sched.Register(KindGenerate, s.Generate)
	s.sched.Register(KindCleanup, s.Cleanup)
}

// Request creates a Pending report and queues generation plus the
// cleanup continuation. The continuation is linked at request time and
// fires whichever way generation ends.
func (s *Service) Request(ctx context.Context, serverID int64, start, end time.Time) (reportID int64, jobID string, err error) {
	if _, err := s.repo.GetServer(ctx, serverID); err != nil {
		return 0, "", err
	}
	reportID, err = s.repo.CreateReport(ctx, models.Report{
		ServerID:  serverID,
		StartTime: start,
		EndTime:   end,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return 0, "", err
	}
	payload := GeneratePayload{ReportID: reportID}
	jobID, err = s.sched.EnqueueImmediate(ctx, KindGenerate, payload)
	if err != nil {
		return 0, "", err
	}
	if _, err := s.sched.ContinueWith(ctx, jobID, KindCleanup, payload); err != nil {
		s.log.Error("queue cleanup continuation", "report_id", reportID, "err", err)
	}
	return reportID, jobID, nil
}

// Generate runs the pipeline for one report. Any failure after the
// Processing transition marks the report Failed, publishes the status
// event without a file path and swallows the error so the scheduler sees
// a clean terminal state for the job.
func (s *Service) Generate(ctx context.Context, inv jobs.Invocation) error {
	var p GeneratePayload
	if err := json.Unmarshal(inv.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	report, err := s.repo.GetReport(ctx, p.ReportID)
	if err == db.ErrNotFound {
		// Deleted between request and execution; nothing to do.
		s.log.Warn("report vanished before generation", "report_id", p.ReportID)
		return nil
	}
	if err != nil {
		return err
	}
	server, err := s.repo.GetServer(ctx, report.ServerID)
	if err == db.ErrNotFound {
		s.log.Warn("server vanished before generation", "report_id", report.ID, "server_id", report.ServerID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.repo.UpdateReportStatus(ctx, report.ID, models.ReportProcessing); err != nil {
		return err
	}

	if err := s.render(ctx, report, server); err != nil {
		s.log.Error("report generation failed", "report_id", report.ID, "err", err)
		if uerr := s.repo.UpdateReportStatus(ctx, report.ID, models.ReportFailed); uerr != nil {
			s.log.Error("mark report failed", "report_id", report.ID, "err", uerr)
		}
		metrics.ReportsGenerated.WithLabelValues(models.ReportFailed).Inc()
		s.hub.Publish(hub.GroupReports, models.EventReportStatus, models.ReportStatusEvent{
			ReportID: report.ID,
			Status:   models.ReportFailed,
			FilePath: nil,
		})
		return nil
	}
	return nil
}

func (s *Service) render(ctx context.Context, report models.Report, server models.Server) error {
	rows, err := s.repo.MetricsInRange(ctx, report.ServerID, report.StartTime, report.EndTime)
	if err != nil {
		return fmt.Errorf("query metrics: %w", err)
	}

	now := s.now().UTC()
	data := ArtifactData{
		Report:      report,
		ServerName:  server.Name,
		GeneratedAt: now,
		Metrics:     rows,
	}
	data.AvgCPU, data.AvgMemory, data.AvgDisk, data.AvgResponse = averages(rows)

	path, err := s.store.WriteReport(report, data)
	if err != nil {
		return err
	}
	if err := s.repo.CompleteReport(ctx, report.ID, path, now); err != nil {
		return fmt.Errorf("complete report: %w", err)
	}

	s.email.ReportCompleted(ctx, report.ID, server.Name, path)
	metrics.ReportsGenerated.WithLabelValues(models.ReportCompleted).Inc()
	s.hub.Publish(hub.GroupReports, models.EventReportStatus, models.ReportStatusEvent{
		ReportID: report.ID,
		Status:   models.ReportCompleted,
		FilePath: &path,
	})
	return nil
}

// Cleanup is the continuation queued with every generation job. It
// prunes terminal reports older than the retention window, artifacts
// included, regardless of how the parent ended.
func (s *Service) Cleanup(ctx context.Context, inv jobs.Invocation) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retention)
	stale, err := s.repo.StaleReports(ctx, cutoff)
	if err != nil {
		return err
	}
	removed := 0
	for _, rep := range stale {
		if err := s.store.Remove(rep.FilePath); err != nil {
			s.log.Warn("remove report artifact", "report_id", rep.ID, "path", rep.FilePath, "err", err)
			continue
		}
		if err := s.repo.DeleteReport(ctx, rep.ID); err != nil {
			s.log.Error("delete report row", "report_id", rep.ID, "err", err)
			continue
		}
		removed++
	}
	s.log.Info("report cleanup done", "parent_status", inv.ParentStatus, "removed", removed, "cutoff", cutoff)
	return nil
}

func averages(rows []models.Metric) (cpu, mem, disk, resp float64) {
	if len(rows) == 0 {
		return 0, 0, 0, 0
	}
	for _, m := range rows {
		cpu += m.CPUUsage
		mem += m.MemoryUsage
		disk += m.DiskUsage
		resp += m.ResponseTime
	}
	n := float64(len(rows))
	return cpu / n, mem / n, disk / n, resp / n
}
