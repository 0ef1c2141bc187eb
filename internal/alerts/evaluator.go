// Package alerts evaluates the latest metric of every server against
// fixed thresholds and raises Triggered alerts, suppressing duplicates
// for the same (server, metric type) inside the dedup window.
package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"monitord/internal/cache"
	"monitord/internal/db"
	"monitord/internal/hub"
	"monitord/internal/metrics"
	"monitord/internal/models"
)

// Static thresholds, percent of capacity.
const (
	CPUThreshold    = 80.0
	MemoryThreshold = 90.0
	DiskThreshold   = 85.0
)

type Evaluator struct {
	repo        *db.Repository
	hub         *hub.Hub
	cache       *cache.Cache
	log         *slog.Logger
	dedupWindow time.Duration
	now         func() time.Time

	// Serializes whole runs. Check-then-insert on the alerts table is
	// only safe while no concurrent evaluation can interleave.
	mu sync.Mutex
}

func NewEvaluator(repo *db.Repository, h *hub.Hub, c *cache.Cache, dedupWindow time.Duration, logger *slog.Logger) *Evaluator {
	if dedupWindow <= 0 {
		dedupWindow = 15 * time.Minute
	}
	return &Evaluator{repo: repo, hub: h, cache: c, log: logger, dedupWindow: dedupWindow, now: time.Now}
}

// RunCycle checks the most recent metric of every server. Servers with
// no metrics yet are skipped.
func (e *Evaluator) RunCycle(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	servers, err := e.repo.ListServers(ctx)
	if err != nil {
		return err
	}
	for _, srv := range servers {
		m, err := e.repo.LatestMetric(ctx, srv.ID)
		if err == db.ErrNotFound {
			continue
		}
		if err != nil {
			e.log.Error("latest metric", "server_id", srv.ID, "err", err)
			continue
		}
		e.check(ctx, srv.ID, models.MetricCPU, m.CPUUsage, CPUThreshold)
		e.check(ctx, srv.ID, models.MetricMemory, m.MemoryUsage, MemoryThreshold)
		e.check(ctx, srv.ID, models.MetricDisk, m.DiskUsage, DiskThreshold)
	}
	return nil
}

func (e *Evaluator) check(ctx context.Context, serverID int64, metricType string, value, threshold float64) {
	if value <= threshold {
		return
	}
	now := e.now().UTC()

	// Redis fast path first; the alerts table stays authoritative.
	key := cache.AlertDedupKey(serverID, metricType)
	if e.cache.Exists(ctx, key) {
		return
	}
	recent, err := e.repo.HasRecentTriggeredAlert(ctx, serverID, metricType, now.Add(-e.dedupWindow))
	if err != nil {
		e.log.Error("dedup query", "server_id", serverID, "metric_type", metricType, "err", err)
		return
	}
	if recent {
		return
	}

	alert := models.Alert{
		ServerID:   serverID,
		MetricType: metricType,
		Value:      value,
		Threshold:  threshold,
		Status:     models.AlertTriggered,
		CreatedAt:  now,
	}
	id, err := e.repo.InsertAlert(ctx, alert)
	if err != nil {
		e.log.Error("insert alert", "server_id", serverID, "metric_type", metricType, "err", err)
		return
	}
	e.cache.Set(ctx, key, e.dedupWindow)
	metrics.AlertsTriggered.WithLabelValues(metricType).Inc()
	e.log.Warn("alert triggered", "server_id", serverID, "metric_type", metricType, "value", value, "threshold", threshold)

	e.hub.Publish(hub.GroupAlerts, models.EventAlert, models.AlertEvent{
		AlertID:     id,
		ServerID:    serverID,
		MetricType:  metricType,
		MetricValue: value,
		Threshold:   threshold,
		Status:      models.AlertTriggered,
		CreatedAt:   now,
	})
}
