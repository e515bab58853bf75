// Package logger builds the slog logger used across the supervisor and the
// server workload: colored text on stderr, optionally duplicated to a
// rotated file via lumberjack. Logging defaults to off; the level comes from
// configuration or FSPROXY_LOG_LEVEL.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// levelOff is above every slog level, so nothing is emitted.
const levelOff = slog.LevelError + 4

// Config describes logging behavior for one invocation.
type Config struct {
	Level      string `mapstructure:"level"`        // debug, info, warn, error; anything else is off
	File       string `mapstructure:"file"`         // optional rotated log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // megabytes before rotation (default 10)
	MaxBackups int    `mapstructure:"max_backups"`  // number of backups to keep (default 3)
	MaxAgeDays int    `mapstructure:"max_age_days"` // days to keep (default 7)
	Compress   bool   `mapstructure:"compress"`     // gzip rotated files
}

// New builds the logger. Stderr output is colored; file output is plain text
// and rotated.
func (c Config) New() *slog.Logger {
	lvl := parseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: lvl}
	if c.File == "" {
		return slog.New(NewColorTextHandler(os.Stderr, opts))
	}
	file := &lj.Logger{
		Filename:   c.File,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
	return slog.New(&dualHandler{
		console: NewColorTextHandler(os.Stderr, opts),
		file:    slog.NewTextHandler(file, opts),
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return levelOff
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// dualHandler fans a record out to the console and the file handler.
type dualHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (h *dualHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.console.Enabled(ctx, lvl) || h.file.Enabled(ctx, lvl)
}

func (h *dualHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.console.Handle(ctx, r.Clone())
	if ferr := h.file.Handle(ctx, r); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func (h *dualHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dualHandler{
		console: h.console.WithAttrs(attrs),
		file:    h.file.WithAttrs(attrs),
	}
}

func (h *dualHandler) WithGroup(name string) slog.Handler {
	return &dualHandler{
		console: h.console.WithGroup(name),
		file:    h.file.WithGroup(name),
	}
}
