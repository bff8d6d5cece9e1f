package logger

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New builds the application logger. Format "json" produces machine readable
// records, anything else falls back to colored console output.
func New(w io.Writer, level, format string, color bool) *slog.Logger {
	var handler slog.Handler
	logLevel := ParseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       logLevel,
			ReplaceAttr: ReplaceAttr,
		})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:       logLevel,
			TimeFormat:  time.DateTime,
			NoColor:     !color,
			ReplaceAttr: ReplaceAttr,
		})
	}

	return slog.New(NewContextHandler(handler))
}

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
