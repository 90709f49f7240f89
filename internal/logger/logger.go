package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a JSON logger writing to stdout at the given level
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter creates a JSON logger writing to w
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error to slog levels; anything else is info
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
