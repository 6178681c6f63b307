package observability

import (
	"io"
	"log/slog"
	"strings"
)

// NewLoggerTo builds a logger writing to w, for commands that must keep stdout
// free for their own output. The service process uses the shared
// observability.NewLogger, which always writes to stdout.
// format is "json" or "text"; level is one of debug, info, warn, error
// (unknown values fall back to info).
func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "pump-status")
}

func parseLevel(s string) slog.Level {
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
