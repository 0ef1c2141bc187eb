// Package web is the HTTP boundary: the websocket endpoint feeding the
// fan-out hub and the thin endpoints that trigger background jobs.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"monitord/internal/db"
	"monitord/internal/hub"
	"monitord/internal/jobs"
	"monitord/internal/maintenance"
	"monitord/internal/models"
	"monitord/internal/reports"
)

type Server struct {
	repo        *db.Repository
	hub         *hub.Hub
	reports     *reports.Service
	maintenance *maintenance.Service
	log         *slog.Logger
}

func NewServer(repo *db.Repository, h *hub.Hub, rep *reports.Service, maint *maintenance.Service, logger *slog.Logger) *Server {
	return &Server{repo: repo, hub: h, reports: rep, maintenance: maint, log: logger}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	{
		api.GET("/servers", s.listServers)
		api.GET("/alerts", s.listAlerts)
		api.POST("/reports", s.requestReport)
		api.GET("/reports/:id", s.getReport)
		api.GET("/reports/:id/file", s.downloadReport)
		api.POST("/servers/:id/maintenance", s.scheduleMaintenance)
	}
	return r
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) listServers(c *gin.Context) {
	servers, err := s.repo.ListServers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toServerViews(servers))
}

func (s *Server) listAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	alerts, err := s.repo.ListRecentAlerts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toAlertViews(alerts))
}

type reportRequest struct {
	ServerID  int64     `json:"serverId" binding:"required"`
	StartTime time.Time `json:"startTime" binding:"required"`
	EndTime   time.Time `json:"endTime" binding:"required"`
}

func (s *Server) requestReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.EndTime.After(req.StartTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endTime must be after startTime"})
		return
	}
	reportID, jobID, err := s.reports.Request(c.Request.Context(), req.ServerID, req.StartTime, req.EndTime)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"reportId": reportID, "jobId": jobID})
}

func (s *Server) getReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}
	report, err := s.repo.GetReport(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toReportView(report))
}

func (s *Server) downloadReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}
	report, err := s.repo.GetReport(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && report.FilePath == "") {
		c.JSON(http.StatusNotFound, gin.H{"error": "report file not available"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(report.FilePath, "report_"+c.Param("id")+".html")
}

type maintenanceRequest struct {
	MaintenanceTime time.Time `json:"maintenanceTime" binding:"required"`
}

func (s *Server) scheduleMaintenance(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
		return
	}
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	jobID, err := s.maintenance.Schedule(c.Request.Context(), id, req.MaintenanceTime)
	if errors.Is(err, jobs.ErrInvalidSchedule) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "maintenance time must be in the future"})
		return
	}
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":           jobID,
		"serverId":        id,
		"maintenanceTime": req.MaintenanceTime,
	})
}

type serverView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	IPAddress   string    `json:"ipAddress"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toServerViews(in []models.Server) []serverView {
	out := make([]serverView, 0, len(in))
	for _, s := range in {
		out = append(out, serverView{ID: s.ID, Name: s.Name, IPAddress: s.IPAddress, Status: s.Status, Description: s.Description, CreatedAt: s.CreatedAt})
	}
	return out
}

type alertView struct {
	ID         int64      `json:"id"`
	ServerID   int64      `json:"serverId"`
	MetricType string     `json:"metricType"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt"`
}

func toAlertViews(in []models.Alert) []alertView {
	out := make([]alertView, 0, len(in))
	for _, a := range in {
		out = append(out, alertView{ID: a.ID, ServerID: a.ServerID, MetricType: a.MetricType, Value: a.Value, Threshold: a.Threshold, Status: a.Status, CreatedAt: a.CreatedAt, ResolvedAt: a.ResolvedAt})
	}
	return out
}

type reportView struct {
	ID          int64      `json:"id"`
	ServerID    int64      `json:"serverId"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	Status      string     `json:"status"`
	FilePath    string     `json:"filePath,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

func toReportView(r models.Report) reportView {
	return reportView{ID: r.ID, ServerID: r.ServerID, StartTime: r.StartTime, EndTime: r.EndTime, Status: r.Status, FilePath: r.FilePath, CreatedAt: r.CreatedAt, CompletedAt: r.CompletedAt}
}
