//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setDetached puts the child in a new session so it survives this
// invocation's terminal and process group.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
