// Package logger builds the structured slog.Logger the rest of the module
// logs through, and a thin convention for tagging a subsystem's log lines
// so entries from the refresh engine, replica discovery, and the push relay
// can be told apart in a shared stream.
package logger

import (
	"strings"

	"log/slog"

	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// componentKey is the structured log attribute set by Component.
const componentKey = "component"

// Config holds logger configuration: level/format/destination, plus the
// lumberjack rotation settings used when Output is "file".
type Config struct {
	Level      string
	Format     string
	Output     string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// NewLogger builds a slog.Logger from cfg. AddSource is enabled only at
// debug level, since every other level runs in production where the extra
// file:line lookup cost isn't worth paying on every log call.
func NewLogger(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)
	writer := SetupWriter(cfg)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// ParseLevel parses a string log level to slog.Level, defaulting to info
// for both an empty string and any value it doesn't recognize.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupWriter configures the output writer based on configuration.
func SetupWriter(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	case "stderr":
		return os.Stderr
	case "stdout", "":
		return os.Stdout
	default:
		return os.Stdout
	}
}

// Component returns a logger with a component attribute attached, so the
// admin daemon's background subsystems (the refresh engine, replica
// discovery, the push relay) tag every line they emit with which one of
// them it came from, without each one re-declaring the attribute.
func Component(base *slog.Logger, name string) *slog.Logger {
	return base.With(componentKey, name)
}
