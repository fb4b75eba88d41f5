// Package logger sets up structured logging with log/slog.
//
// Init installs a JSON handler as the slog default, which also routes
// the stdlib log package through it — the rest of the codebase logs
// with plain log.Printf and still emits structured JSON.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init creates a JSON logger tagged with the service name and installs
// it as the process default.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
