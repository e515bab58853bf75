package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/loykin/fsproxy/internal/pidfile"
)

// fakeAdapter scripts liveness and records every Terminate call.
type fakeAdapter struct {
	mu         sync.Mutex
	alive      map[int]bool
	aliveCalls int
	graceful   []int // pids that got Terminate(force=false)
	forced     []int // pids that got Terminate(force=true)
	// gracefulKills makes a graceful terminate mark the pid dead after
	// surviveFor additional liveness polls.
	gracefulKills bool
	surviveFor    int
	termErr       error
	describe      string
	describeErr   error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{alive: make(map[int]bool), gracefulKills: true}
}

func (f *fakeAdapter) setAlive(pid int, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = v
}

func (f *fakeAdapter) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliveCalls++
	if f.surviveFor > 0 {
		f.surviveFor--
		if f.surviveFor == 0 {
			f.alive[pid] = false
		}
	}
	return f.alive[pid]
}

func (f *fakeAdapter) Terminate(pid int, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.termErr != nil {
		return f.termErr
	}
	if force {
		f.forced = append(f.forced, pid)
		f.alive[pid] = false
		return nil
	}
	f.graceful = append(f.graceful, pid)
	if f.gracefulKills && f.surviveFor == 0 {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeAdapter) Describe(pid int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describe, f.describeErr
}

// memRegistry is an in-memory Registry.
type memRegistry struct {
	mu  sync.Mutex
	pid int
	ok  bool
}

func (m *memRegistry) Save(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pid, m.ok = pid, true
	return nil
}

func (m *memRegistry) Load() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid, m.ok
}

func (m *memRegistry) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pid, m.ok = 0, false
}

// workloadFunc adapts a function to the Workload interface.
type workloadFunc func(ctx context.Context) error

func (f workloadFunc) Run(ctx context.Context) error { return f(ctx) }

func fastOpts() Options {
	return Options{
		StopPollInterval: time.Millisecond,
		StopPollBudget:   5,
		RestartSettle:    time.Millisecond,
	}
}

func newTestSupervisor(a Adapter, r Registry) *Supervisor {
	return New(a, r, fastOpts(), nil)
}

func TestStartRecordsPIDAndClearsOnExit(t *testing.T) {
	fa := newFakeAdapter()
	reg := &memRegistry{}
	s := newTestSupervisor(fa, reg)
	s.selfPID = func() int { return 4321 }

	var observed int
	var observedOK bool
	w := workloadFunc(func(ctx context.Context) error {
		observed, observedOK = reg.Load()
		return nil
	})
	if err := s.Start(context.Background(), w); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !observedOK || observed != 4321 {
		t.Fatalf("registry not populated before workload ran: pid=%d ok=%v", observed, observedOK)
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("registry entry survived workload exit")
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(777, true)
	fa.describe = "pid=777 name=fsproxy"
	reg := &memRegistry{}
	_ = reg.Save(777)
	s := newTestSupervisor(fa, reg)

	spawned := false
	w := workloadFunc(func(ctx context.Context) error {
		spawned = true
		return nil
	})
	err := s.Start(context.Background(), w)
	var are *AlreadyRunningError
	if !errors.As(err, &are) {
		t.Fatalf("expected AlreadyRunningError, got %v", err)
	}
	if are.PID != 777 {
		t.Fatalf("wrong pid in error: %d", are.PID)
	}
	if are.Info == "" {
		t.Fatalf("diagnostic info not surfaced")
	}
	if spawned {
		t.Fatalf("workload must not run when already running")
	}
	if pid, ok := reg.Load(); !ok || pid != 777 {
		t.Fatalf("registry of the live instance was disturbed: %d %v", pid, ok)
	}
}

func TestStartStaleRecordIsIgnored(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(777, false) // recorded but dead
	reg := &memRegistry{}
	_ = reg.Save(777)
	s := newTestSupervisor(fa, reg)
	s.selfPID = func() int { return 8888 }

	ran := false
	w := workloadFunc(func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err := s.Start(context.Background(), w); err != nil {
		t.Fatalf("Start over stale record: %v", err)
	}
	if !ran {
		t.Fatalf("workload did not run")
	}
}

func TestStartLaunchFailureRollsBackRegistry(t *testing.T) {
	fa := newFakeAdapter()
	reg := &memRegistry{}
	s := newTestSupervisor(fa, reg)
	s.selfPID = func() int { return 4321 }

	bindErr := errors.New("listen 127.0.0.1:8080: address already in use")
	w := workloadFunc(func(ctx context.Context) error { return bindErr })
	err := s.Start(context.Background(), w)
	if err == nil || !errors.Is(err, bindErr) {
		t.Fatalf("expected wrapped launch failure, got %v", err)
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("orphaned registry entry after failed launch")
	}
}

func TestStartInterruptIsCleanExit(t *testing.T) {
	fa := newFakeAdapter()
	reg := &memRegistry{}
	s := newTestSupervisor(fa, reg)
	s.selfPID = func() int { return 4321 }

	ctx, cancel := context.WithCancel(context.Background())
	w := workloadFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := s.Start(ctx, w); err != nil {
		t.Fatalf("interrupted start should exit cleanly, got %v", err)
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("registry entry survived interrupt")
	}
}

func TestStopNothingRecorded(t *testing.T) {
	fa := newFakeAdapter()
	reg := &memRegistry{}
	s := newTestSupervisor(fa, reg)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop with empty registry: %v", err)
	}
	if fa.aliveCalls != 0 || len(fa.graceful)+len(fa.forced) != 0 {
		t.Fatalf("adapter consulted for a no-op stop: alive=%d term=%d",
			fa.aliveCalls, len(fa.graceful)+len(fa.forced))
	}
}

func TestStopStaleRecord(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(555, false)
	reg := &memRegistry{}
	_ = reg.Save(555)
	s := newTestSupervisor(fa, reg)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on stale record: %v", err)
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("stale record not cleared")
	}
	if len(fa.graceful)+len(fa.forced) != 0 {
		t.Fatalf("terminate issued for a dead process")
	}
}

func TestStopGracefulWithinBudget(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(555, true)
	fa.surviveFor = 2 // survives the pre-check, dies during the poll loop
	reg := &memRegistry{}
	_ = reg.Save(555)
	s := newTestSupervisor(fa, reg)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(fa.graceful) != 1 {
		t.Fatalf("expected one graceful terminate, got %d", len(fa.graceful))
	}
	if len(fa.forced) != 0 {
		t.Fatalf("forced terminate issued for a cooperative process")
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("registry not cleared after stop")
	}
}

func TestStopEscalatesExactlyOnce(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(555, true)
	fa.gracefulKills = false // target ignores the graceful request
	reg := &memRegistry{}
	_ = reg.Save(555)
	s := newTestSupervisor(fa, reg)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(fa.graceful) != 1 {
		t.Fatalf("expected one graceful attempt, got %d", len(fa.graceful))
	}
	if len(fa.forced) != 1 {
		t.Fatalf("expected exactly one forced terminate, got %d", len(fa.forced))
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("registry not cleared after forced stop")
	}
}

func TestStopPollPreemptibleByContext(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(555, true)
	fa.gracefulKills = false
	reg := &memRegistry{}
	_ = reg.Save(555)
	s := New(fa, reg, Options{
		StopPollInterval: 50 * time.Millisecond,
		StopPollBudget:   100, // 5s budget; the context must cut it short
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Stop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stop did not exit promptly on interrupt: %v", elapsed)
	}
	if len(fa.forced) != 0 {
		t.Fatalf("interrupt must not trigger the forced phase")
	}
}

func TestStopAdapterFailureSurfaces(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(555, true)
	fa.termErr = errors.New("operation not permitted")
	reg := &memRegistry{}
	_ = reg.Save(555)
	s := newTestSupervisor(fa, reg)

	err := s.Stop(context.Background())
	if err == nil || !errors.Is(err, fa.termErr) {
		t.Fatalf("expected wrapped adapter failure, got %v", err)
	}
}

func TestRestartRecordsDifferentPID(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(100, true)
	reg := &memRegistry{}
	_ = reg.Save(100)
	s := newTestSupervisor(fa, reg)
	s.respawn = func() (int, error) {
		// The child invocation records itself on start.
		_ = reg.Save(200)
		return 200, nil
	}

	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	pid, ok := reg.Load()
	if !ok || pid != 200 {
		t.Fatalf("expected new pid 200 recorded, got %d ok=%v", pid, ok)
	}
	if len(fa.graceful) != 1 {
		t.Fatalf("restart skipped the graceful stop")
	}
}

func TestRestartFailsWhenRespawnFails(t *testing.T) {
	fa := newFakeAdapter()
	reg := &memRegistry{}
	s := newTestSupervisor(fa, reg)
	spawnErr := errors.New("executable vanished")
	s.respawn = func() (int, error) { return 0, spawnErr }

	err := s.Restart(context.Background())
	if err == nil || !errors.Is(err, spawnErr) {
		t.Fatalf("expected respawn failure, got %v", err)
	}
}

func TestStatusNotRunning(t *testing.T) {
	fa := newFakeAdapter()
	reg := &memRegistry{}
	s := newTestSupervisor(fa, reg)
	if st := s.CurrentStatus(); st.Running {
		t.Fatalf("empty registry reported running: %+v", st)
	}
}

func TestStatusClearsStaleRecord(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(9, false)
	reg := &memRegistry{}
	_ = reg.Save(9)
	s := newTestSupervisor(fa, reg)
	if st := s.CurrentStatus(); st.Running {
		t.Fatalf("dead pid reported running: %+v", st)
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("stale record not cleared by status")
	}
}

func TestStatusRunningWithInfo(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(9, true)
	fa.describe = "pid=9 elapsed=1m"
	reg := &memRegistry{}
	_ = reg.Save(9)
	s := newTestSupervisor(fa, reg)
	st := s.CurrentStatus()
	if !st.Running || st.PID != 9 || st.Info == "" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStatusDescribeFailureIsNonFatal(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(9, true)
	fa.describeErr = errors.New("access denied")
	reg := &memRegistry{}
	_ = reg.Save(9)
	s := newTestSupervisor(fa, reg)
	st := s.CurrentStatus()
	if !st.Running || st.PID != 9 {
		t.Fatalf("describe failure must not hide a running instance: %+v", st)
	}
	if st.Info != "" {
		t.Fatalf("info should be empty when describe fails")
	}
}

func TestKillMatchingRecordClearsRegistry(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(321, true)
	reg := &memRegistry{}
	_ = reg.Save(321)
	s := newTestSupervisor(fa, reg)

	if err := s.Kill(321); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if len(fa.forced) != 1 || len(fa.graceful) != 0 {
		t.Fatalf("kill must escalate directly: graceful=%d forced=%d",
			len(fa.graceful), len(fa.forced))
	}
	if _, ok := reg.Load(); ok {
		t.Fatalf("registry not cleared for matching pid")
	}
}

func TestKillUnrelatedPIDKeepsRegistry(t *testing.T) {
	fa := newFakeAdapter()
	fa.setAlive(321, true)
	fa.setAlive(999, true)
	reg := &memRegistry{}
	_ = reg.Save(321)
	s := newTestSupervisor(fa, reg)

	if err := s.Kill(999); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if pid, ok := reg.Load(); !ok || pid != 321 {
		t.Fatalf("registry disturbed by unrelated kill: %d %v", pid, ok)
	}
}

func TestKillWithEmptyRegistry(t *testing.T) {
	fa := newFakeAdapter()
	reg := &memRegistry{}
	s := newTestSupervisor(fa, reg)
	if err := s.Kill(4444); err != nil {
		t.Fatalf("Kill must not require a registry entry: %v", err)
	}
	if len(fa.forced) != 1 {
		t.Fatalf("forced terminate not issued")
	}
}

// Corrupt registry content degrades to "not running" end to end through the
// real file-backed store.
func TestStatusWithCorruptRegistryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fsproxy.pid")
	if err := os.WriteFile(path, []byte("not-a-number"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fa := newFakeAdapter()
	s := newTestSupervisor(fa, pidfile.Store{Path: path})
	if st := s.CurrentStatus(); st.Running {
		t.Fatalf("corrupt registry reported running: %+v", st)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop with corrupt registry: %v", err)
	}
}
