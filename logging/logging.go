// Package logging provides the per-component job logger: structured
// logging through slog, with optional publication of each entry to a
// NATS subject so a running job can be watched live.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Level represents the severity level of a log entry.
type Level string

const (
	// LevelDebug represents debug-level logs
	LevelDebug Level = "DEBUG"
	// LevelInfo represents informational logs
	LevelInfo Level = "INFO"
	// LevelWarn represents warning logs
	LevelWarn Level = "WARN"
	// LevelError represents error logs
	LevelError Level = "ERROR"
)

// Entry is the structured log record published to NATS.
type Entry struct {
	Timestamp string `json:"timestamp"` // RFC3339 format
	Level     Level  `json:"level"`
	Component string `json:"component"`
	Job       string `json:"job"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"` // error details
}

// Logger wraps a standard slog.Logger for local logging while also
// publishing each entry to NATS for remote consumption. Publishing is
// enabled only when a connection is supplied.
type Logger struct {
	component string
	job       string
	nc        *nats.Conn
	logger    *slog.Logger
	enabled   bool
}

// NewLogger creates a component logger for a job. nc may be nil to
// disable NATS publication.
func NewLogger(component, job string, nc *nats.Conn, logger *slog.Logger) *Logger {
	return &Logger{
		component: component,
		job:       job,
		nc:        nc,
		logger:    logger,
		enabled:   nc != nil,
	}
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) {
	l.publish(context.Background(), LevelDebug, msg, "")
	if l.logger != nil {
		l.logger.Debug(msg, "component", l.component)
	}
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) {
	l.publish(context.Background(), LevelInfo, msg, "")
	if l.logger != nil {
		l.logger.Info(msg, "component", l.component)
	}
}

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) {
	l.publish(context.Background(), LevelWarn, msg, "")
	if l.logger != nil {
		l.logger.Warn(msg, "component", l.component)
	}
}

// Error logs an error-level message with optional error details.
func (l *Logger) Error(msg string, err error) {
	detail := ""
	if err != nil {
		detail = fmt.Sprintf("%+v", err)
	}
	l.publish(context.Background(), LevelError, msg, detail)
	if l.logger != nil {
		l.logger.Error(msg, "component", l.component, "error", err)
	}
}

// publish sends an entry to NATS on subject "logs.<job>.<component>".
func (l *Logger) publish(ctx context.Context, level Level, message, detail string) {
	if !l.enabled {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.component,
		Job:       l.job,
		Message:   message,
		Detail:    detail,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		if l.logger != nil {
			l.logger.Error("Failed to marshal log entry", "error", err)
		}
		return
	}

	nc := l.nc
	if nc == nil {
		return
	}

	subject := fmt.Sprintf("logs.%s.%s", l.job, l.component)
	if err := nc.Publish(subject, data); err != nil {
		if l.logger != nil {
			l.logger.Error("Failed to publish log to NATS", "error", err, "subject", subject)
		}
	}
}
