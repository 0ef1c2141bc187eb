// Package notifier sends operator email through SendGrid. When no API
// key is configured every send degrades to a log line, which keeps the
// job pipeline identical in dev and test environments.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Email struct {
	apiKey string
	to     string
	log    *slog.Logger
}

func NewEmail(apiKey, to string, logger *slog.Logger) *Email {
	return &Email{apiKey: apiKey, to: to, log: logger}
}

func (e *Email) Enabled() bool {
	return e.apiKey != "" && e.to != ""
}

func (e *Email) ReportCompleted(ctx context.Context, reportID int64, serverName, filePath string) {
	subject := fmt.Sprintf("Report #%d for %s ready", reportID, serverName)
	body := fmt.Sprintf("Your report for server %s has been generated.\n\nReport ID: %d\nFile: %s\n\nYou can download it from the dashboard.",
		serverName, reportID, filePath)
	e.send(ctx, subject, body)
}

func (e *Email) MaintenanceScheduled(ctx context.Context, serverName string, at time.Time) {
	subject := fmt.Sprintf("Scheduled maintenance for %s", serverName)
	body := fmt.Sprintf("Server %s is entering maintenance mode.\n\nMaintenance time: %s\nExpected downtime: 30-60 minutes.",
		serverName, at.Format(time.RFC3339))
	e.send(ctx, subject, body)
}

func (e *Email) send(ctx context.Context, subject, body string) {
	if !e.Enabled() {
		e.log.Info("email skipped (sendgrid not configured)", "subject", subject)
		return
	}
	from := mail.NewEmail("Monitoring Dashboard", e.to)
	to := mail.NewEmail("Operator", e.to)
	msg := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(e.apiKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		e.log.Warn("email send failed", "subject", subject, "err", err)
		return
	}
	if resp.StatusCode >= 300 {
		e.log.Warn("email send rejected", "subject", subject, "status", resp.StatusCode)
		return
	}
	e.log.Info("email sent", "subject", subject)
}
