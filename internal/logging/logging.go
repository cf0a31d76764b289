// Package logging builds the process-wide slog.Logger dnsbalancer runs
// with, from the structured/level/extra-field knobs internal/config loads
// out of the logging.* config section.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config mirrors config.Logging: the handful of knobs an operator can set
// for how this process logs.
type Config struct {
	Level            string
	Structured       bool
	StructuredFormat string
	IncludePID       bool
	ExtraFields      map[string]string

	// Component, if set, is attached to every log line so a reload's
	// background drain goroutine and the main process can still be told
	// apart in an aggregated log stream. Optional.
	Component string

	// Writer overrides the handler's output, defaulting to os.Stderr.
	// Tests use this to capture and assert on emitted log lines.
	Writer io.Writer
}

// Configure builds a logger from cfg and installs it as slog's process
// default, so library code that only has access to slog.Default() (none of
// this module's own packages do, but a dependency's might) still logs
// consistently with it.
func Configure(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)
	out := cfg.Writer
	if out == nil {
		out = os.Stderr
	}

	attrs := make([]slog.Attr, 0, len(cfg.ExtraFields)+2)
	for k, v := range cfg.ExtraFields {
		attrs = append(attrs, slog.String(k, v))
	}
	if cfg.Component != "" {
		attrs = append(attrs, slog.String("component", cfg.Component))
	}
	if cfg.IncludePID {
		attrs = append(attrs, slog.Int("pid", os.Getpid()))
	}

	var handler slog.Handler
	if cfg.Structured && strings.EqualFold(cfg.StructuredFormat, "json") {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
