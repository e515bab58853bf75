//go:build windows

package proc

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate               = 0x0001
	processQueryLimitedInformation = 0x1000
)

// pidAlive checks process existence via OpenProcess, the Windows equivalent
// of kill(pid, 0). An access-denied failure means the process exists but
// belongs to another user, which still counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := openProcess(processQueryLimitedInformation, uint32(pid))
	if err != nil {
		return errors.Is(err, syscall.ERROR_ACCESS_DENIED)
	}
	_ = closeHandle(handle)
	return true
}

// terminate issues a graceful stop request via taskkill, or an unconditional
// TerminateProcess when force is set. Windows has no SIGTERM; taskkill posts
// WM_CLOSE/CTRL_CLOSE so console servers get a chance to shut down cleanly.
func terminate(pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("terminate pid %d: invalid pid", pid)
	}
	if !pidAlive(pid) {
		// Already gone; the desired state is reached.
		return nil
	}
	if !force {
		// #nosec G204 -- pid is validated numeric
		cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid))
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("taskkill pid %d: %w: %s", pid, err, out)
		}
		return nil
	}
	handle, err := openProcess(processTerminate, uint32(pid))
	if err != nil {
		// Could not open the process; it likely exited between the
		// liveness check and here.
		return nil
	}
	defer func() { _ = closeHandle(handle) }()
	ret, _, callErr := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ret == 0 {
		return fmt.Errorf("TerminateProcess pid %d: %w", pid, callErr)
	}
	return nil
}

func openProcess(access uint32, pid uint32) (syscall.Handle, error) {
	ret, _, err := procOpenProcess.Call(uintptr(access), uintptr(0), uintptr(pid))
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(handle syscall.Handle) error {
	ret, _, err := procCloseHandle.Call(uintptr(handle))
	if ret == 0 {
		return err
	}
	return nil
}
