//go:build windows

package proc

import (
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestAliveSelfWindows(t *testing.T) {
	var a Adapter
	if !a.Alive(os.Getpid()) {
		t.Fatalf("Alive(self) = false")
	}
}

func TestAliveExitedChildWindows(t *testing.T) {
	cmd := exec.Command("cmd.exe", "/C", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	var ad Adapter
	if !waitUntil(time.Second, 10*time.Millisecond, func() bool { return !ad.Alive(pid) }) {
		t.Fatalf("exited pid %d still reported alive", pid)
	}
}

func TestTerminateForcedWindows(t *testing.T) {
	cmd := exec.Command("cmd.exe", "/C", "ping -n 60 127.0.0.1 > NUL")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	defer func() { _ = cmd.Process.Kill() }()

	var ad Adapter
	if err := ad.Terminate(pid, true); err != nil {
		t.Fatalf("Terminate force: %v", err)
	}
	_ = cmd.Wait()
	if ad.Alive(pid) {
		t.Fatalf("child survived forced terminate")
	}
}
