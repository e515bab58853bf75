//go:build !windows

package proc

import (
	"errors"
	"fmt"
	"syscall"
)

// pidAlive returns true if a process with the given pid exists (or EPERM,
// which means it exists but belongs to another user).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// terminate sends SIGTERM (graceful) or SIGKILL (forced) to pid.
func terminate(pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("terminate pid %d: invalid pid", pid)
	}
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			// Already gone; the desired state is reached.
			return nil
		}
		return fmt.Errorf("send %s to pid %d: %w", sig, pid, err)
	}
	return nil
}
