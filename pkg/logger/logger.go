// Package logger builds the structured slog loggers used by baho-bot binaries.
// Production uses JSON output, every other environment uses the text handler.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config configures the logger.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Environment selects the handler: "production" gives JSON.
	Environment string

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource adds file:line to every record.
	AddSource bool
}

// New creates a slog.Logger for the given configuration.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Environment == "production" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel parses a string into a slog.Level.
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

// Common attributes.
func Component(name string) slog.Attr { return slog.String("component", name) }
func ChatID(id int64) slog.Attr       { return slog.Int64("chat_id", id) }
func FiredKey(key string) slog.Attr   { return slog.String("fired_key", key) }

// Err builds an error attribute; nil errors are rendered as empty.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
