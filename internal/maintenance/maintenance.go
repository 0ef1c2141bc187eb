// Package maintenance schedules one-shot maintenance windows: at the
// requested time the server is flipped into Maintenance status and every
// connected client is notified.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"monitord/internal/db"
	"monitord/internal/hub"
	"monitord/internal/jobs"
	"monitord/internal/models"
	"monitord/internal/notifier"
)

const Kind = "maintenance-notification"

type Payload struct {
	ServerID        int64     `json:"serverId"`
	MaintenanceTime time.Time `json:"maintenanceTime"`
}

type Service struct {
	repo  *db.Repository
	hub   *hub.Hub
	email *notifier.Email
	sched *jobs.Scheduler
	log   *slog.Logger
	now   func() time.Time
}

func NewService(repo *db.Repository, h *hub.Hub, email *notifier.Email, sched *jobs.Scheduler, logger *slog.Logger) *Service {
	return &Service{repo: repo, hub: h, email: email, sched: sched, log: logger, now: time.Now}
}

func (s *Service) Register() {
	s.sched.Register(Kind, s.Execute)
}

// Schedule queues the maintenance job for at. Times at or before now are
// rejected with jobs.ErrInvalidSchedule and nothing is enqueued.
func (s *Service) Schedule(ctx context.Context, serverID int64, at time.Time) (string, error) {
	if !at.After(s.now()) {
		return "", fmt.Errorf("maintenance for server %d: %w", serverID, jobs.ErrInvalidSchedule)
	}
	if _, err := s.repo.GetServer(ctx, serverID); err != nil {
		return "", err
	}
	return s.sched.ScheduleDelayed(ctx, Kind, Payload{ServerID: serverID, MaintenanceTime: at}, at)
}

// Execute fires at the maintenance time. A server deleted in the
// meantime is logged and the job ends cleanly.
func (s *Service) Execute(ctx context.Context, inv jobs.Invocation) error {
	var p Payload
	if err := json.Unmarshal(inv.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	server, err := s.repo.GetServer(ctx, p.ServerID)
	if err == db.ErrNotFound {
		s.log.Warn("server not found for maintenance", "server_id", p.ServerID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.repo.UpdateServerStatus(ctx, server.ID, models.StatusMaintenance); err != nil {
		return err
	}
	s.log.Info("server entering maintenance", "server_id", server.ID, "server", server.Name, "at", p.MaintenanceTime)

	s.hub.PublishAll(models.EventMaintenanceAlert, models.MaintenanceAlertEvent{
		ServerID:        server.ID,
		ServerName:      server.Name,
		MaintenanceTime: p.MaintenanceTime,
		Message:         fmt.Sprintf("Server %s entering maintenance mode", server.Name),
	})
	s.email.MaintenanceScheduled(ctx, server.Name, p.MaintenanceTime)
	return nil
}
