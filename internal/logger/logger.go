// Package logger provides structured logging for selfdiag.
package logger

import (
	"io"
	"log/slog"
	"strings"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to w. Development uses a text handler at
// debug level; every other environment gets JSON at the given level.
func New(env, level string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ParseLevel maps a level name to a slog.Level. Unknown names give info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithSessionID returns a logger with session ID
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("session_id", sessionID)),
	}
}

// WithSaga returns a logger tagged with the saga name
func (l *Logger) WithSaga(saga string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("saga", saga)),
	}
}

// SagaStep logs a completed saga step
func (l *Logger) SagaStep(step string, patientID, visitID int64) {
	l.Info("saga_step",
		slog.String("step", step),
		slog.Int64("patient_id", patientID),
		slog.Int64("visit_id", visitID),
	)
}

// SagaError logs a failed saga step
func (l *Logger) SagaError(step string, err error) {
	l.Error("saga_error",
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}

// BackendRequest logs an outbound backend call
func (l *Logger) BackendRequest(method, path string, status int, latencyMs float64) {
	l.Debug("backend_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
	)
}
