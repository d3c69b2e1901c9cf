package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT ("json", the default, or "text").
// Every record carries the service name.
func NewLogger(service string) *slog.Logger {
	return newLogger(os.Stdout, service, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newLogger(w io.Writer, service, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h).With("service", service)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(raw string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		if strings.EqualFold(strings.TrimSpace(raw), "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return l
}
