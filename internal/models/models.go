package models

import "time"

// Server statuses. Status is written by the collector during normal
// operation and by the maintenance job during a maintenance window.
const (
	StatusUp          = "Up"
	StatusWarning     = "Warning"
	StatusDown        = "Down"
	StatusMaintenance = "Maintenance"
	StatusUnknown     = "Unknown"
)

// Alert statuses.
const (
	AlertTriggered = "Triggered"
	AlertResolved  = "Resolved"
)

// Metric types an alert can be raised for.
const (
	MetricCPU    = "CpuUsage"
	MetricMemory = "MemoryUsage"
	MetricDisk   = "DiskUsage"
)

// Report statuses. Every transition after Pending is owned by the
// report pipeline job.
const (
	ReportPending    = "Pending"
	ReportProcessing = "Processing"
	ReportCompleted  = "Completed"
	ReportFailed     = "Failed"
)

// Job statuses.
const (
	JobScheduled = "Scheduled"
	JobEnqueued  = "Enqueued"
	JobRunning   = "Running"
	JobSucceeded = "Succeeded"
	JobFailed    = "Failed"
)

type Server struct {
	ID          int64
	Name        string
	IPAddress   string
	Status      string
	Description string
	CreatedAt   time.Time
}

// Metric is one snapshot per server per collection cycle. Rows are
// append-only; nothing in the core mutates or deletes them.
type Metric struct {
	ID           int64
	ServerID     int64
	CPUUsage     float64
	MemoryUsage  float64
	DiskUsage    float64
	ResponseTime float64
	Status       string
	Timestamp    time.Time
}

type Alert struct {
	ID         int64
	ServerID   int64
	MetricType string
	Value      float64
	Threshold  float64
	Status     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

type Report struct {
	ID          int64
	ServerID    int64
	StartTime   time.Time
	EndTime     time.Time
	Status      string
	FilePath    string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Job is the persisted record of one scheduler invocation.
type Job struct {
	ID          string
	Kind        string
	Payload     string
	TriggerKind string
	ParentID    string
	Status      string
	ScheduledAt time.Time
	UpdatedAt   time.Time
}
