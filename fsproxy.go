package fsproxy

import (
	"context"
	"log/slog"

	"github.com/loykin/fsproxy/internal/config"
	"github.com/loykin/fsproxy/internal/pidfile"
	"github.com/loykin/fsproxy/internal/proc"
	"github.com/loykin/fsproxy/internal/server"
	"github.com/loykin/fsproxy/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Options = supervisor.Options

type Status = supervisor.Status

type Workload = supervisor.Workload

type AlreadyRunningError = supervisor.AlreadyRunningError

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// New wires a Supervisor from cfg using the OS process adapter and the
// file-backed pid registry.
func New(cfg Config, log *slog.Logger) *Supervisor {
	inner := supervisor.New(proc.Adapter{}, pidfile.Store{Path: cfg.PIDFile}, Options{
		StopPollInterval: cfg.StopPollInterval,
		StopPollBudget:   cfg.StopPollBudget,
		RestartSettle:    cfg.RestartSettle,
	}, log)
	return &Supervisor{inner: inner}
}

func (s *Supervisor) Start(ctx context.Context, w Workload) error { return s.inner.Start(ctx, w) }
func (s *Supervisor) Stop(ctx context.Context) error              { return s.inner.Stop(ctx) }
func (s *Supervisor) Restart(ctx context.Context) error           { return s.inner.Restart(ctx) }
func (s *Supervisor) Status() Status                              { return s.inner.CurrentStatus() }
func (s *Supervisor) Kill(pid int) error                          { return s.inner.Kill(pid) }

// NewServer constructs the HTTP server workload bound to addr.
func NewServer(addr string, log *slog.Logger) Workload { return server.New(addr, log) }

// LoadConfig loads fsproxy.toml from path, or from the default search
// locations when path is empty.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return config.Default() }

// ExecutableDir returns the directory holding the running executable,
// following one level of symbolic link.
func ExecutableDir() string { return config.ExecutableDir() }
