// Package metrics exposes prometheus instrumentation for the job
// pipeline and the fan-out hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitord_jobs_executed_total",
		Help: "Job invocations by kind and terminal status.",
	}, []string{"kind", "status"})

	TicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitord_recurring_ticks_skipped_total",
		Help: "Recurring ticks skipped because the previous run was still in flight.",
	}, []string{"kind"})

	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitord_alerts_triggered_total",
		Help: "Alerts created by metric type.",
	}, []string{"metric_type"})

	MetricsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitord_metrics_collected_total",
		Help: "Metric snapshots written.",
	})

	CollectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitord_collect_failures_total",
		Help: "Per-server sampling failures (cycle continues).",
	})

	ReportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitord_reports_generated_total",
		Help: "Report pipeline outcomes.",
	}, []string{"status"})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitord_hub_connections",
		Help: "Currently connected websocket clients.",
	})
)
