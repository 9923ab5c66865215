package logging

import (
	"log/slog"
	"os"
	"strings"
)

const serviceName = "trip-dispatch"

// NewLogger builds the process-wide JSON logger. Every record carries the
// service name so the two binaries can share one log stream. Source
// locations are only attached at debug level; they are noise in
// production volume.
func NewLogger(level string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler).With("service", serviceName)
}

func parseLevel(level string) slog.Level {
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
