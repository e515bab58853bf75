// Package proc provides the OS-level process primitives the supervisor is
// built on: liveness probing, graceful/forced termination and diagnostic
// snapshots. Platform differences live in build-tagged files; callers never
// branch on runtime.GOOS.
package proc

import (
	"fmt"
	"strings"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
)

// Adapter performs process operations against the host OS. The zero value is
// ready to use.
type Adapter struct{}

// Alive reports whether a process with the given pid currently exists.
// It never fails: any inability to determine state reports false.
// A pid the caller lacks permission to signal still counts as alive.
func (Adapter) Alive(pid int) bool { return pidAlive(pid) }

// Terminate asks the process to exit. With force=false the request is
// graceful and the target may drain in-flight work before exiting; with
// force=true it is unconditional. Errors carry the pid and attempted
// operation. A target that is already gone is not an error.
func (Adapter) Terminate(pid int, force bool) error { return terminate(pid, force) }

// Describe returns a one-line human-readable snapshot of the process
// (parent pid, command line, elapsed time, CPU and memory). It is purely
// diagnostic; failures are informational and must not fail the enclosing
// operation.
func (Adapter) Describe(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("describe pid %d: invalid pid", pid)
	}
	p, err := gops.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("describe pid %d: %w", pid, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d", pid)
	if ppid, err := p.Ppid(); err == nil {
		fmt.Fprintf(&b, " ppid=%d", ppid)
	}
	if name, err := p.Name(); err == nil && name != "" {
		fmt.Fprintf(&b, " name=%s", name)
	}
	if created, err := p.CreateTime(); err == nil && created > 0 {
		elapsed := time.Since(time.UnixMilli(created)).Round(time.Second)
		fmt.Fprintf(&b, " elapsed=%s", elapsed)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		fmt.Fprintf(&b, " cpu=%.1f%%", cpu)
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		fmt.Fprintf(&b, " rss=%.1fMB", float64(mi.RSS)/(1<<20))
	}
	if cmdline, err := p.Cmdline(); err == nil && cmdline != "" {
		fmt.Fprintf(&b, " cmd=%q", cmdline)
	}
	return b.String(), nil
}
