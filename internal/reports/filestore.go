package reports

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"monitord/internal/models"
)

// FileStore persists a rendered report artifact and returns its path.
type FileStore interface {
	WriteReport(report models.Report, data ArtifactData) (string, error)
	Remove(path string) error
}

// ArtifactData is everything the artifact template needs.
type ArtifactData struct {
	Report      models.Report
	ServerName  string
	GeneratedAt time.Time
	Metrics     []models.Metric
	AvgCPU      float64
	AvgMemory   float64
	AvgDisk     float64
	AvgResponse float64
}

var artifactTpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Report #{{.Report.ID}} - {{.ServerName}}</title>
<style>
body { font-family: sans-serif; margin: 40px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
th { background: #3f51b5; color: white; }
.summary span { display: inline-block; margin-right: 30px; }
</style>
</head>
<body>
<h1>Server Monitoring Report #{{.Report.ID}}</h1>
<p>{{.ServerName}} &mdash; {{.Report.StartTime.Format "2006-01-02 15:04"}} to {{.Report.EndTime.Format "2006-01-02 15:04"}}, generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
<div class="summary">
<span>Avg CPU: {{printf "%.1f" .AvgCPU}}%</span>
<span>Avg Memory: {{printf "%.1f" .AvgMemory}}%</span>
<span>Avg Disk: {{printf "%.1f" .AvgDisk}}%</span>
<span>Avg Response: {{printf "%.0f" .AvgResponse}}ms</span>
<span>Data points: {{len .Metrics}}</span>
</div>
<table>
<thead><tr><th>Timestamp</th><th>CPU</th><th>Memory</th><th>Disk</th><th>Response</th><th>Status</th></tr></thead>
<tbody>
{{range .Metrics}}<tr><td>{{.Timestamp.Format "2006-01-02 15:04:05"}}</td><td>{{printf "%.1f" .CPUUsage}}%</td><td>{{printf "%.1f" .MemoryUsage}}%</td><td>{{printf "%.1f" .DiskUsage}}%</td><td>{{printf "%.0f" .ResponseTime}}ms</td><td>{{.Status}}</td></tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

// DiskStore renders self-contained HTML artifacts into a directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir report dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) WriteReport(report models.Report, data ArtifactData) (string, error) {
	name := fmt.Sprintf("report_%d_%d_%s_%s.html",
		report.ID, report.ServerID,
		report.StartTime.UTC().Format("20060102150405"),
		report.EndTime.UTC().Format("20060102150405"))
	path := filepath.Join(d.dir, name)

	var sb strings.Builder
	if err := artifactTpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func (d *DiskStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
