// Package logger wraps slog with a JSON handler and a request-scoped
// logger carrying the chi request ID.
package logger

import (
	"log/slog"
	"os"
)

var log *slog.Logger

func init() {
	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		// slog understands DEBUG/INFO/WARN/ERROR in any case
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(raw)); err == nil {
			level = parsed
		}
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(log)
}

// Info logs at info level with structured fields.
func Info(msg string, args ...any) {
	log.Info(msg, args...)
}

// Warn logs at warn level with structured fields.
func Warn(msg string, args ...any) {
	log.Warn(msg, args...)
}

// Error logs at error level with structured fields.
func Error(msg string, args ...any) {
	log.Error(msg, args...)
}

// Fatal logs at error level and exits with status 1.
func Fatal(msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
