package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr      string
	DataDir   string
	DBPath    string
	ReportDir string

	CollectInterval  time.Duration
	EvaluateInterval time.Duration
	DedupWindow      time.Duration
	ReportRetention  int
	Workers          int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SendGridKey string
	AlertEmail  string

	SeedDemoServers bool
}

func Load() Config {
	dataDir := getenv("APP_DATA_DIR", "./data")
	return Config{
		Addr:             getenv("APP_ADDR", ":8080"),
		DataDir:          dataDir,
		DBPath:           getenv("APP_DB_PATH", dataDir+"/app.db"),
		ReportDir:        getenv("APP_REPORT_DIR", dataDir+"/reports"),
		CollectInterval:  getenvDuration("APP_COLLECT_INTERVAL", 2*time.Minute),
		EvaluateInterval: getenvDuration("APP_EVALUATE_INTERVAL", 5*time.Minute),
		DedupWindow:      getenvDuration("APP_ALERT_DEDUP_WINDOW", 15*time.Minute),
		ReportRetention:  getenvInt("APP_REPORT_RETENTION_DAYS", 30),
		Workers:          getenvInt("APP_JOB_WORKERS", 4),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getenvInt("REDIS_DB", 0),
		SendGridKey:      os.Getenv("SENDGRID_API_KEY"),
		AlertEmail:       getenv("ALERT_EMAIL", "admin@demo.local"),
		SeedDemoServers:  getenvBool("APP_SEED_DEMO_SERVERS", true),
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

func getenvBool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	return d
}
