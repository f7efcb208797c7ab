// Package logging builds the slog loggers used by the ED247 commands.
//
// Output goes to a writer (stdout by default) and, when a file path is set,
// also to a size-rotated file. FromEnv reads ED247_LOG_LEVEL and
// ED247_LOG_FILEPATH.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment variables read by FromEnv
const (
	EnvLevel    = "ED247_LOG_LEVEL"
	EnvFilePath = "ED247_LOG_FILEPATH"
	EnvFormat   = "ED247_LOG_FORMAT"
)

// Rotation defaults of the log file
const (
	DefaultMaxSizeMB  = 25
	DefaultMaxAgeDays = 7
	DefaultMaxBackups = 5
)

// Config describes a logger
type Config struct {
	Level    string // debug, info, warn or error
	Format   string // json or text
	FilePath string // optional rotated log file
	Output   io.Writer
}

// ParseLevel maps a level name to its slog level, defaulting to info
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

// New builds a logger. The returned closer releases the log file, it is a
// no-op without one.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    DefaultMaxSizeMB,
			MaxAge:     DefaultMaxAgeDays,
			MaxBackups: DefaultMaxBackups,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}

	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

// FromEnv builds a logger from the ED247_LOG_* variables, falling back to
// the given defaults when a variable is unset.
func FromEnv(defaults Config) (*slog.Logger, io.Closer, error) {
	cfg := defaults
	if v := os.Getenv(EnvLevel); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv(EnvFilePath); v != "" {
		cfg.FilePath = v
	}
	return New(cfg)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
