package supervisor

import "fmt"

// AlreadyRunningError is returned by Start when the registry records a live
// instance. Info carries the Describe snapshot of that instance when
// available.
type AlreadyRunningError struct {
	PID  int
	Info string
}

func (e *AlreadyRunningError) Error() string {
	if e.Info != "" {
		return fmt.Sprintf("already running (pid %d): %s", e.PID, e.Info)
	}
	return fmt.Sprintf("already running (pid %d)", e.PID)
}
