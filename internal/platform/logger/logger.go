// Package logger provides structured logging for the simulation server.
// Every engine mutation worth auditing should be traceable through Event.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger provides structured logging with context.
type Logger struct {
	l *log.Logger
}

// NewLogger creates an info-level logger writing to stdout.
func NewLogger() *Logger {
	return &Logger{l: log.NewWithOptions(os.Stdout, log.Options{
		ReportTimestamp: true,
		Prefix:          "inocsim",
		Level:           log.InfoLevel,
	})}
}

// New creates a logger writing to w at the named level ("debug", "info", "warn", "error").
func New(w io.Writer, level string) (*Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	return &Logger{l: log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "inocsim",
		Level:           lvl,
	})}, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{l: log.New(io.Discard)}
}

// With returns a child logger that always carries keyvals.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{l: l.l.With(keyvals...)}
}

// Debug logs verbose diagnostic messages.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.l.Debug(msg, keyvals...)
}

// Info logs informational messages.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.l.Info(msg, keyvals...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.l.Warn(msg, keyvals...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.l.Error(msg, keyvals...)
}

// Event logs a simulation event at debug level; per-day engine chatter would
// otherwise drown the info stream.
func (l *Logger) Event(eventType string, actorID string, keyvals ...interface{}) {
	l.l.Debug("event", append([]interface{}{"type", eventType, "actor", actorID}, keyvals...)...)
}
