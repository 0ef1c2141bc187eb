package models

import "time"

// Hub event names, matching what subscribed dashboards listen for.
const (
	EventMetricUpdate     = "MetricUpdate"
	EventAlert            = "Alert"
	EventReportStatus     = "ReportStatus"
	EventMaintenanceAlert = "MaintenanceAlert"
	EventUserPresence     = "UserPresence"
	EventOnlineUsersCount = "OnlineUsersCount"
)

type MetricUpdateEvent struct {
	ServerID     int64     `json:"serverId"`
	CPUUsage     float64   `json:"cpuUsage"`
	MemoryUsage  float64   `json:"memoryUsage"`
	DiskUsage    float64   `json:"diskUsage"`
	ResponseTime float64   `json:"responseTime"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

type AlertEvent struct {
	AlertID     int64     `json:"alertId"`
	ServerID    int64     `json:"serverId"`
	MetricType  string    `json:"metricType"`
	MetricValue float64   `json:"metricValue"`
	Threshold   float64   `json:"threshold"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ReportStatusEvent struct {
	ReportID int64   `json:"reportId"`
	Status   string  `json:"status"`
	FilePath *string `json:"filePath"`
}

type MaintenanceAlertEvent struct {
	ServerID        int64     `json:"serverId"`
	ServerName      string    `json:"serverName"`
	MaintenanceTime time.Time `json:"maintenanceTime"`
	Message         string    `json:"message"`
}

type UserPresenceEvent struct {
	UserID      string `json:"userId"`
	IsOnline    bool   `json:"isOnline"`
	TotalOnline int    `json:"totalOnline"`
}
