package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"monitord/internal/models"
)

// ErrNotFound is returned when a target row vanished before a job ran.
var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) ListServers(ctx context.Context) ([]models.Server, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,name,ip_address,status,description,created_at FROM servers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Server
	for rows.Next() {
		var s models.Server
		if err := rows.Scan(&s.ID, &s.Name, &s.IPAddress, &s.Status, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetServer(ctx context.Context, id int64) (models.Server, error) {
	var s models.Server
	err := r.db.QueryRowContext(ctx, `SELECT id,name,ip_address,status,description,created_at FROM servers WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.IPAddress, &s.Status, &s.Description, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Server{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) InsertServer(ctx context.Context, s models.Server) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO servers (name,ip_address,status,description,created_at) VALUES (?,?,?,?,?)`,
		s.Name, s.IPAddress, s.Status, s.Description, s.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) UpdateServerStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE servers SET status = ? WHERE id = ?`, status, id)
	return err
}

func (r *Repository) InsertMetric(ctx context.Context, m models.Metric) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO metrics
		(server_id,cpu_usage,memory_usage,disk_usage,response_time_ms,status,ts)
		VALUES (?,?,?,?,?,?,?)`,
		m.ServerID, m.CPUUsage, m.MemoryUsage, m.DiskUsage, m.ResponseTime, m.Status, m.Timestamp.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) LatestMetric(ctx context.Context, serverID int64) (models.Metric, error) {
	var m models.Metric
	err := r.db.QueryRowContext(ctx, `SELECT id,server_id,cpu_usage,memory_usage,disk_usage,response_time_ms,status,ts
		FROM metrics WHERE server_id = ? ORDER BY ts DESC, id DESC LIMIT 1`, serverID).
		Scan(&m.ID, &m.ServerID, &m.CPUUsage, &m.MemoryUsage, &m.DiskUsage, &m.ResponseTime, &m.Status, &m.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Metric{}, ErrNotFound
	}
	return m, err
}

func (r *Repository) MetricsInRange(ctx context.Context, serverID int64, from, to time.Time) ([]models.Metric, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,server_id,cpu_usage,memory_usage,disk_usage,response_time_ms,status,ts
		FROM metrics WHERE server_id = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`, serverID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Metric
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.ID, &m.ServerID, &m.CPUUsage, &m.MemoryUsage, &m.DiskUsage, &m.ResponseTime, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) InsertAlert(ctx context.Context, a models.Alert) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO alerts
		(server_id,metric_type,metric_value,threshold,status,created_at)
		VALUES (?,?,?,?,?,?)`,
		a.ServerID, a.MetricType, a.Value, a.Threshold, a.Status, a.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HasRecentTriggeredAlert reports whether a Triggered alert for the same
// (server, metric type) was created after the cutoff. Used by the
// evaluator to suppress duplicates inside the dedup window.
func (r *Repository) HasRecentTriggeredAlert(ctx context.Context, serverID int64, metricType string, since time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts
		WHERE server_id = ? AND metric_type = ? AND status = ? AND created_at > ?`,
		serverID, metricType, models.AlertTriggered, since.UTC()).Scan(&n)
	return n > 0, err
}

func (r *Repository) ListRecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,server_id,metric_type,metric_value,threshold,status,created_at,resolved_at
		FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.ServerID, &a.MetricType, &a.Value, &a.Threshold, &a.Status, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) CreateReport(ctx context.Context, rep models.Report) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO reports
		(server_id,start_time,end_time,status,created_at)
		VALUES (?,?,?,?,?)`,
		rep.ServerID, rep.StartTime.UTC(), rep.EndTime.UTC(), models.ReportPending, rep.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) GetReport(ctx context.Context, id int64) (models.Report, error) {
	var rep models.Report
	err := r.db.QueryRowContext(ctx, `SELECT id,server_id,start_time,end_time,status,file_path,created_at,completed_at
		FROM reports WHERE id = ?`, id).
		Scan(&rep.ID, &rep.ServerID, &rep.StartTime, &rep.EndTime, &rep.Status, &rep.FilePath, &rep.CreatedAt, &rep.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, ErrNotFound
	}
	return rep, err
}

func (r *Repository) UpdateReportStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reports SET status = ? WHERE id = ?`, status, id)
	return err
}

func (r *Repository) CompleteReport(ctx context.Context, id int64, filePath string, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reports SET status = ?, file_path = ?, completed_at = ? WHERE id = ?`,
		models.ReportCompleted, filePath, completedAt.UTC(), id)
	return err
}

// StaleReports returns terminal reports created before the cutoff, for the
// cleanup continuation.
func (r *Repository) StaleReports(ctx context.Context, cutoff time.Time) ([]models.Report, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,server_id,start_time,end_time,status,file_path,created_at,completed_at
		FROM reports WHERE created_at < ? AND status IN (?, ?)`, cutoff.UTC(), models.ReportCompleted, models.ReportFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Report
	for rows.Next() {
		var rep models.Report
		if err := rows.Scan(&rep.ID, &rep.ServerID, &rep.StartTime, &rep.EndTime, &rep.Status, &rep.FilePath, &rep.CreatedAt, &rep.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteReport(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	return err
}

func (r *Repository) InsertJob(ctx context.Context, j models.Job) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO jobs (id,kind,payload,trigger_kind,parent_id,status,scheduled_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		j.ID, j.Kind, j.Payload, j.TriggerKind, j.ParentID, j.Status, j.ScheduledAt.UTC(), j.UpdatedAt.UTC())
	return err
}

func (r *Repository) UpdateJobStatus(ctx context.Context, id, status string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status, at.UTC(), id)
	return err
}

func (r *Repository) GetJob(ctx context.Context, id string) (models.Job, error) {
	var j models.Job
	err := r.db.QueryRowContext(ctx, `SELECT id,kind,payload,trigger_kind,parent_id,status,scheduled_at,updated_at FROM jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.Kind, &j.Payload, &j.TriggerKind, &j.ParentID, &j.Status, &j.ScheduledAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	return j, err
}
