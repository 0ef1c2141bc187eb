package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			ip_address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'Unknown',
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			server_id INTEGER NOT NULL,
			cpu_usage REAL NOT NULL,
			memory_usage REAL NOT NULL,
			disk_usage REAL NOT NULL,
			response_time_ms REAL NOT NULL,
			status TEXT NOT NULL,
			ts DATETIME NOT NULL,
			FOREIGN KEY(server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			server_id INTEGER NOT NULL,
			metric_type TEXT NOT NULL,
			metric_value REAL NOT NULL,
			threshold REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'Triggered',
			created_at DATETIME NOT NULL,
			resolved_at DATETIME,
			FOREIGN KEY(server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			server_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'Pending',
			file_path TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			completed_at DATETIME,
			FOREIGN KEY(server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			trigger_kind TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			scheduled_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_server_ts ON metrics(server_id, ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_server_type_created ON alerts(server_id, metric_type, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports(status, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_kind_status ON jobs(kind, status);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// SeedDemoServers inserts a few monitored servers so a fresh install has
// something to collect against. No-op once any server row exists.
func SeedDemoServers(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM servers`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	seeds := []struct {
		name, ip, desc string
	}{
		{"web-01", "10.0.0.11", "Primary web frontend"},
		{"web-02", "10.0.0.12", "Secondary web frontend"},
		{"db-01", "10.0.1.21", "PostgreSQL primary"},
		{"cache-01", "10.0.2.31", "Redis cache node"},
	}
	for _, s := range seeds {
		_, err := db.Exec(`INSERT INTO servers (name, ip_address, status, description, created_at)
			VALUES (?,?,?,?,CURRENT_TIMESTAMP)`, s.name, s.ip, "Unknown", s.desc)
		if err != nil {
			return err
		}
	}
	return nil
}
