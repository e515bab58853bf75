package supervisor

import (
	"fmt"
	"os"
	"os/exec"
)

// respawnCommand builds the detached relaunch invocation: the executable,
// the start directive, then any extra argv (such as --config) so the child
// runs under the same configuration as the invocation that restarted it.
func respawnCommand(exe string, extra []string) *exec.Cmd {
	args := append([]string{"start"}, extra...)
	// #nosec G204 -- relaunching our own binary
	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetached(cmd)
	return cmd
}

// respawnDetached launches a fresh "start" invocation of the current
// executable, detached from this invocation's lifetime, and returns its pid.
// The child records itself in the registry once it starts serving.
func respawnDetached(extra []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	cmd := respawnCommand(exe, extra)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	// Do not wait on the child; it outlives this invocation.
	_ = cmd.Process.Release()
	return pid, nil
}
