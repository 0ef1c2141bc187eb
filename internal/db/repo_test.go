package db

import (
	"context"
	"testing"
	"time"

	"monitord/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqldb, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewRepository(sqldb)
}

func seedServer(t *testing.T, repo *Repository, name string) int64 {
	t.Helper()
	id, err := repo.InsertServer(context.Background(), models.Server{
		Name:      name,
		IPAddress: "10.0.0.1",
		Status:    models.StatusUnknown,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert server: %v", err)
	}
	return id
}

func TestLatestMetricPicksNewestRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	serverID := seedServer(t, repo, "web-01")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, cpu := range []float64{10, 20, 30} {
		_, err := repo.InsertMetric(ctx, models.Metric{
			ServerID: serverID, CPUUsage: cpu, MemoryUsage: 40, DiskUsage: 50,
			ResponseTime: 12, Status: models.StatusUp, Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert metric: %v", err)
		}
	}

	m, err := repo.LatestMetric(ctx, serverID)
	if err != nil {
		t.Fatalf("latest metric: %v", err)
	}
	if m.CPUUsage != 30 {
		t.Fatalf("latest cpu = %v, want 30", m.CPUUsage)
	}
}

func TestLatestMetricNotFoundForEmptyServer(t *testing.T) {
	repo := newTestRepo(t)
	serverID := seedServer(t, repo, "web-01")
	if _, err := repo.LatestMetric(context.Background(), serverID); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMetricsInRangeOrdersAscendingAndBounds(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	serverID := seedServer(t, repo, "web-01")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := repo.InsertMetric(ctx, models.Metric{
			ServerID: serverID, CPUUsage: float64(i), Status: models.StatusUp,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("insert metric: %v", err)
		}
	}

	rows, err := repo.MetricsInRange(ctx, serverID, base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("metrics in range: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp.Before(rows[i-1].Timestamp) {
			t.Fatalf("rows not ascending at %d", i)
		}
	}
}

func TestHasRecentTriggeredAlertRespectsCutoff(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	serverID := seedServer(t, repo, "web-01")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.InsertAlert(ctx, models.Alert{
		ServerID: serverID, MetricType: models.MetricCPU, Value: 95, Threshold: 80,
		Status: models.AlertTriggered, CreatedAt: now.Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("insert alert: %v", err)
	}

	recent, err := repo.HasRecentTriggeredAlert(ctx, serverID, models.MetricCPU, now.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !recent {
		t.Fatal("alert 10m old should be inside a 15m window")
	}

	recent, err = repo.HasRecentTriggeredAlert(ctx, serverID, models.MetricCPU, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if recent {
		t.Fatal("alert 10m old should be outside a 5m window")
	}

	recent, err = repo.HasRecentTriggeredAlert(ctx, serverID, models.MetricMemory, now.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if recent {
		t.Fatal("other metric type should not match")
	}
}

func TestReportLifecycleRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	serverID := seedServer(t, repo, "web-01")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := repo.CreateReport(ctx, models.Report{
		ServerID: serverID, StartTime: now.Add(-time.Hour), EndTime: now, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}

	rep, err := repo.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if rep.Status != models.ReportPending {
		t.Fatalf("status = %q, want Pending", rep.Status)
	}

	if err := repo.UpdateReportStatus(ctx, id, models.ReportProcessing); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := repo.CompleteReport(ctx, id, "/tmp/report.html", now.Add(time.Minute)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rep, err = repo.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if rep.Status != models.ReportCompleted || rep.FilePath != "/tmp/report.html" || rep.CompletedAt == nil {
		t.Fatalf("unexpected completed report: %+v", rep)
	}
}

func TestStaleReportsSkipsPendingAndRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	serverID := seedServer(t, repo, "web-01")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	oldID, err := repo.CreateReport(ctx, models.Report{ServerID: serverID, StartTime: now, EndTime: now, CreatedAt: now.AddDate(0, 0, -40)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CompleteReport(ctx, oldID, "/tmp/old.html", now.AddDate(0, 0, -40)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Old but still pending: must survive cleanup.
	if _, err := repo.CreateReport(ctx, models.Report{ServerID: serverID, StartTime: now, EndTime: now, CreatedAt: now.AddDate(0, 0, -40)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	recentID, err := repo.CreateReport(ctx, models.Report{ServerID: serverID, StartTime: now, EndTime: now, CreatedAt: now})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CompleteReport(ctx, recentID, "/tmp/new.html", now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stale, err := repo.StaleReports(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("stale reports: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != oldID {
		t.Fatalf("stale = %+v, want only report %d", stale, oldID)
	}
}

func TestJobRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := models.Job{
		ID: "job-1", Kind: "report-generation", Payload: `{"reportId":7}`,
		TriggerKind: "Immediate", Status: models.JobEnqueued, ScheduledAt: now, UpdatedAt: now,
	}
	if err := repo.InsertJob(ctx, job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := repo.UpdateJobStatus(ctx, "job-1", models.JobSucceeded, now.Add(time.Second)); err != nil {
		t.Fatalf("update job: %v", err)
	}
	got, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != models.JobSucceeded || got.Kind != "report-generation" || got.Payload != `{"reportId":7}` {
		t.Fatalf("unexpected job: %+v", got)
	}
}
