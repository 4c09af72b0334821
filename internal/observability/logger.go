// Package observability holds the Prometheus metrics and a logger for
// commands whose stdout is their output.
package observability

import (
	"io"
	"log/slog"
	"strings"
)

// NewLoggerTo returns a slog logger writing to w. format is "json" or
// "text"; level is debug, info, warn or error. Daemons use the shared
// observability logger, which writes to stdout.
func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
