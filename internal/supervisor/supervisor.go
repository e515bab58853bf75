// Package supervisor implements the single-instance state machine around the
// server workload: pid-registry bookkeeping, liveness-checked singleton
// enforcement, graceful-then-forced termination and restart orchestration.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/fsproxy/internal/metrics"
)

// Defaults for the stop/restart timing knobs. They are plain configuration,
// overridable per Supervisor.
const (
	DefaultStopPollInterval = 100 * time.Millisecond
	DefaultStopPollBudget   = 30
	DefaultRestartSettle    = time.Second
)

// Adapter is the per-platform process primitive set the supervisor consults.
// internal/proc provides the OS-backed implementation; tests substitute fakes.
type Adapter interface {
	// Alive never fails; unknown state reports false.
	Alive(pid int) bool
	// Terminate requests a graceful stop, or an unconditional one with force.
	Terminate(pid int, force bool) error
	// Describe returns a diagnostic snapshot; failure is informational.
	Describe(pid int) (string, error)
}

// Registry is the single-slot pid store. internal/pidfile provides the
// file-backed implementation.
type Registry interface {
	Save(pid int) error
	Load() (int, bool)
	Clear()
}

// Workload is the long-running task the supervisor runs in the foreground.
// Run serves until ctx is cancelled or the workload stops on its own.
type Workload interface {
	Run(ctx context.Context) error
}

// Options carries the tunable timing policy and the respawn argv.
type Options struct {
	StopPollInterval time.Duration // poll period during graceful stop
	StopPollBudget   int           // polls before escalating to forced kill
	RestartSettle    time.Duration // wait after stop before respawning

	// RespawnArgs is extra argv appended after the start directive when
	// Restart relaunches the executable, so flags like --config carry over
	// to the new instance.
	RespawnArgs []string
}

func (o Options) withDefaults() Options {
	if o.StopPollInterval <= 0 {
		o.StopPollInterval = DefaultStopPollInterval
	}
	if o.StopPollBudget <= 0 {
		o.StopPollBudget = DefaultStopPollBudget
	}
	if o.RestartSettle <= 0 {
		o.RestartSettle = DefaultRestartSettle
	}
	return o
}

// Status is the observable state of the supervised instance.
type Status struct {
	Running bool
	PID     int
	Info    string // best-effort Describe output when running
}

// Supervisor orchestrates start/stop/restart/status/kill for the single
// supervised instance. Each CLI invocation constructs one and performs one
// operation.
//
// The registry file is shared across invocations with no locking protocol:
// concurrent operations (say a start racing a stop) are a documented hazard,
// operations are assumed to be invoked sequentially.
type Supervisor struct {
	adapter Adapter
	reg     Registry
	opts    Options
	log     *slog.Logger

	// respawnArgs is carried from Options for the default respawn.
	respawnArgs []string

	// respawn launches a detached "start" invocation of this executable and
	// returns its pid. Overridable for tests.
	respawn func() (int, error)

	// selfPID is recorded by Start for the foreground instance.
	// Overridable for tests.
	selfPID func() int
}

func New(adapter Adapter, reg Registry, opts Options, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Supervisor{
		adapter:     adapter,
		reg:         reg,
		opts:        opts.withDefaults(),
		log:         log,
		respawnArgs: opts.RespawnArgs,
		selfPID:     os.Getpid,
	}
	s.respawn = func() (int, error) { return respawnDetached(s.respawnArgs) }
	return s
}

// Start enforces the singleton, records this process in the registry and
// runs the workload in the foreground until it exits or ctx is cancelled
// (operator interrupt). The registry entry is cleared on the way out, so a
// workload that fails to bind leaves no orphaned record.
func (s *Supervisor) Start(ctx context.Context, w Workload) error {
	if pid, ok := s.reg.Load(); ok && s.adapter.Alive(pid) {
		info, derr := s.adapter.Describe(pid)
		if derr != nil {
			s.log.Warn("describe failed", "pid", pid, "err", derr)
		}
		return &AlreadyRunningError{PID: pid, Info: info}
	}
	pid := s.selfPID()
	if err := s.reg.Save(pid); err != nil {
		return fmt.Errorf("record pid %d: %w", pid, err)
	}
	defer s.reg.Clear()

	s.log.Info("serving", "pid", pid)
	metrics.IncStart()
	metrics.SetUp(true)
	defer metrics.SetUp(false)

	err := w.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("workload: %w", err)
	}
	s.log.Info("stopped", "pid", pid)
	return nil
}

// Stop terminates the recorded instance: graceful request first, then a
// bounded liveness poll, then a single forced kill if the budget expires.
// A missing registry entry, or a recorded pid that is already dead, is
// success, not an error. The poll is preemptible via ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	pid, ok := s.reg.Load()
	if !ok {
		s.log.Info("nothing to stop")
		return nil
	}
	if !s.adapter.Alive(pid) {
		s.log.Info("clearing stale record", "pid", pid)
		s.reg.Clear()
		return nil
	}
	if err := s.adapter.Terminate(pid, false); err != nil {
		return fmt.Errorf("stop pid %d: %w", pid, err)
	}
	s.log.Info("stop requested", "pid", pid)
	for i := 0; i < s.opts.StopPollBudget; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.StopPollInterval):
		}
		if !s.adapter.Alive(pid) {
			s.reg.Clear()
			metrics.IncStop()
			s.log.Info("stopped gracefully", "pid", pid)
			return nil
		}
	}
	// Budget exhausted: escalate once and take the kill as the outcome.
	s.log.Warn("graceful stop timed out, killing", "pid", pid,
		"waited", time.Duration(s.opts.StopPollBudget)*s.opts.StopPollInterval)
	if err := s.adapter.Terminate(pid, true); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	s.reg.Clear()
	metrics.IncStop()
	metrics.IncForcedKill()
	return nil
}

// Restart stops the recorded instance, waits a settle interval so the OS can
// release the listening socket, then respawns this executable with a start
// directive, detached from the current invocation. It returns once the spawn
// succeeds; the new process runs Start's serve loop itself.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.opts.RestartSettle):
	}
	pid, err := s.respawn()
	if err != nil {
		return fmt.Errorf("relaunch: %w", err)
	}
	metrics.IncRestart()
	s.log.Info("relaunched", "pid", pid)
	return nil
}

// CurrentStatus reports the observable state of the recorded instance,
// clearing a stale record as a side effect. Describe failures degrade to an
// empty Info, never to an error.
func (s *Supervisor) CurrentStatus() Status {
	pid, ok := s.reg.Load()
	if !ok {
		return Status{}
	}
	if !s.adapter.Alive(pid) {
		s.reg.Clear()
		return Status{}
	}
	st := Status{Running: true, PID: pid}
	info, err := s.adapter.Describe(pid)
	if err != nil {
		s.log.Warn("describe failed", "pid", pid, "err", err)
	} else {
		st.Info = info
	}
	return st
}

// Kill forces termination of an explicit pid with no graceful phase and no
// polling. The registry is cleared only when the killed pid matches the
// recorded one.
func (s *Supervisor) Kill(pid int) error {
	if err := s.adapter.Terminate(pid, true); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	metrics.IncForcedKill()
	if rec, ok := s.reg.Load(); ok && rec == pid {
		s.reg.Clear()
	}
	s.log.Info("killed", "pid", pid)
	return nil
}
