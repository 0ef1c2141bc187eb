// Package collector samples one metric snapshot per server per cycle,
// persists it, updates the server's status and pushes the reading to the
// per-server hub group.
package collector

import (
	"context"
	"log/slog"
	"time"

	"monitord/internal/db"
	"monitord/internal/hub"
	"monitord/internal/metrics"
	"monitord/internal/models"
)

type Service struct {
	repo   *db.Repository
	source MetricsSource
	hub    *hub.Hub
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo *db.Repository, source MetricsSource, h *hub.Hub, logger *slog.Logger) *Service {
	return &Service{repo: repo, source: source, hub: h, log: logger, now: time.Now}
}

// RunCycle samples every known server. Servers are independent: a
// sampling or persistence failure for one is logged and the cycle moves
// on to the next. No retries inside a cycle.
func (s *Service) RunCycle(ctx context.Context) error {
	servers, err := s.repo.ListServers(ctx)
	if err != nil {
		return err
	}
	for _, srv := range servers {
		s.collectOne(ctx, srv)
	}
	return nil
}

func (s *Service) collectOne(ctx context.Context, srv models.Server) {
	snap, err := s.source.Sample(ctx, srv.ID)
	if err != nil {
		s.log.Warn("sample failed", "server_id", srv.ID, "server", srv.Name, "err", err)
		metrics.CollectFailures.Inc()
		return
	}
	m := models.Metric{
		ServerID:     srv.ID,
		CPUUsage:     snap.CPUUsage,
		MemoryUsage:  snap.MemoryUsage,
		DiskUsage:    snap.DiskUsage,
		ResponseTime: snap.ResponseTime,
		Status:       snap.Status,
		Timestamp:    s.now().UTC(),
	}
	if _, err := s.repo.InsertMetric(ctx, m); err != nil {
		s.log.Error("insert metric", "server_id", srv.ID, "err", err)
		return
	}
	if err := s.repo.UpdateServerStatus(ctx, srv.ID, snap.Status); err != nil {
		s.log.Error("update server status", "server_id", srv.ID, "err", err)
	}
	metrics.MetricsCollected.Inc()
	s.hub.Publish(hub.ServerGroup(srv.ID), models.EventMetricUpdate, models.MetricUpdateEvent{
		ServerID:     srv.ID,
		CPUUsage:     m.CPUUsage,
		MemoryUsage:  m.MemoryUsage,
		DiskUsage:    m.DiskUsage,
		ResponseTime: m.ResponseTime,
		Status:       m.Status,
		Timestamp:    m.Timestamp,
	})
}
