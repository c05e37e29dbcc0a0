// Package log builds the slog loggers used by the services.
package log

import (
	"io"
	"log/slog"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// SlogLevelFromString maps "debug", "info", "warn" and "error" to a slog
// level. Anything else is info.
func SlogLevelFromString(level string) slog.Level {
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

// New returns a logger writing to w; format is "json" or "text" (default).
func New(level, format string, w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{
		Level: SlogLevelFromString(level),
	}

	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}
