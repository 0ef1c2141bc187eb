package alerts

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"monitord/internal/db"
	"monitord/internal/hub"
	"monitord/internal/models"
)

type alertSink struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (s *alertSink) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := payload.(models.AlertEvent); ok && event == models.EventAlert {
		s.events = append(s.events, e)
	}
	return nil
}

func (s *alertSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fixture struct {
	repo *db.Repository
	eval *Evaluator
	sink *alertSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqldb, err := db.Open(t.TempDir() + "/alerts.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := db.Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	repo := db.NewRepository(sqldb)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(logger)
	sink := &alertSink{}
	h.Connect("test-conn", "tester", sink)
	h.JoinGroup("test-conn", hub.GroupAlerts)

	return &fixture{
		repo: repo,
		eval: NewEvaluator(repo, h, nil, 15*time.Minute, logger),
		sink: sink,
	}
}

func (f *fixture) addServer(t *testing.T) int64 {
	t.Helper()
	id, err := f.repo.InsertServer(context.Background(), models.Server{
		Name: "web-01", IPAddress: "10.0.0.1", Status: models.StatusUp, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert server: %v", err)
	}
	return id
}

func (f *fixture) addMetric(t *testing.T, serverID int64, cpu, mem, disk float64, at time.Time) {
	t.Helper()
	_, err := f.repo.InsertMetric(context.Background(), models.Metric{
		ServerID: serverID, CPUUsage: cpu, MemoryUsage: mem, DiskUsage: disk,
		ResponseTime: 10, Status: models.StatusUp, Timestamp: at,
	})
	if err != nil {
		t.Fatalf("insert metric: %v", err)
	}
}

func (f *fixture) alertCount(t *testing.T) int {
	t.Helper()
	alerts, err := f.repo.ListRecentAlerts(context.Background(), 100)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	return len(alerts)
}

func TestHighCPUTriggersAlert(t *testing.T) {
	f := newFixture(t)
	serverID := f.addServer(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.eval.now = func() time.Time { return t0 }
	f.addMetric(t, serverID, 95, 50, 50, t0)

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if got := f.alertCount(t); got != 1 {
		t.Fatalf("alert rows = %d, want 1", got)
	}
	if f.sink.count() != 1 {
		t.Fatalf("published events = %d, want 1", f.sink.count())
	}
	e := f.sink.events[0]
	if e.ServerID != serverID || e.MetricType != models.MetricCPU || e.MetricValue != 95 || e.Threshold != CPUThreshold || e.Status != models.AlertTriggered {
		t.Fatalf("unexpected alert event: %+v", e)
	}
}

func TestValueAtThresholdDoesNotTrigger(t *testing.T) {
	f := newFixture(t)
	serverID := f.addServer(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.eval.now = func() time.Time { return t0 }
	f.addMetric(t, serverID, CPUThreshold, MemoryThreshold, DiskThreshold, t0)

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if got := f.alertCount(t); got != 0 {
		t.Fatalf("alert rows = %d, want 0 at exact thresholds", got)
	}
}

func TestEachBreachedMetricGetsItsOwnAlert(t *testing.T) {
	f := newFixture(t)
	serverID := f.addServer(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.eval.now = func() time.Time { return t0 }
	f.addMetric(t, serverID, 95, 95, 95, t0)

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if got := f.alertCount(t); got != 3 {
		t.Fatalf("alert rows = %d, want 3 (cpu, memory, disk)", got)
	}
}

func TestDuplicateSuppressedInsideWindow(t *testing.T) {
	f := newFixture(t)
	serverID := f.addServer(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.eval.now = func() time.Time { return t0 }
	f.addMetric(t, serverID, 95, 50, 50, t0)

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// Still breaching five minutes later.
	f.eval.now = func() time.Time { return t0.Add(5 * time.Minute) }
	f.addMetric(t, serverID, 97, 50, 50, t0.Add(5*time.Minute))
	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if got := f.alertCount(t); got != 1 {
		t.Fatalf("alert rows = %d, want 1 (second breach inside window)", got)
	}
	if f.sink.count() != 1 {
		t.Fatalf("published events = %d, want 1", f.sink.count())
	}
}

func TestNewAlertAfterWindowExpires(t *testing.T) {
	f := newFixture(t)
	serverID := f.addServer(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.eval.now = func() time.Time { return t0 }
	f.addMetric(t, serverID, 95, 50, 50, t0)

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	f.eval.now = func() time.Time { return t0.Add(16 * time.Minute) }
	f.addMetric(t, serverID, 96, 50, 50, t0.Add(16*time.Minute))
	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if got := f.alertCount(t); got != 2 {
		t.Fatalf("alert rows = %d, want 2 (window elapsed)", got)
	}
}

func TestDedupIsPerMetricType(t *testing.T) {
	f := newFixture(t)
	serverID := f.addServer(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.eval.now = func() time.Time { return t0 }
	f.addMetric(t, serverID, 95, 50, 50, t0)

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// Memory starts breaching while the CPU alert is still suppressed.
	f.eval.now = func() time.Time { return t0.Add(5 * time.Minute) }
	f.addMetric(t, serverID, 95, 95, 50, t0.Add(5*time.Minute))
	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if got := f.alertCount(t); got != 2 {
		t.Fatalf("alert rows = %d, want 2 (cpu suppressed, memory new)", got)
	}
}

func TestServersWithoutMetricsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.addServer(t)

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if got := f.alertCount(t); got != 0 {
		t.Fatalf("alert rows = %d, want 0", got)
	}
}

func TestOnlyLatestMetricIsEvaluated(t *testing.T) {
	f := newFixture(t)
	serverID := f.addServer(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.eval.now = func() time.Time { return t0.Add(time.Minute) }

	// Breach followed by recovery: the recovered reading wins.
	f.addMetric(t, serverID, 95, 50, 50, t0)
	f.addMetric(t, serverID, 40, 50, 50, t0.Add(time.Minute))

	if err := f.eval.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if got := f.alertCount(t); got != 0 {
		t.Fatalf("alert rows = %d, want 0 (latest metric is healthy)", got)
	}
}
