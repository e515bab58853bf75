// Package pidfile implements the single-slot registry recording the pid of
// the supervised instance. The file is bookkeeping, not a source of truth:
// liveness is always rechecked against the OS, so a stale or corrupt file
// simply degrades to "no recorded instance".
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultName is the registry file created beside the executable.
const DefaultName = "fsproxy.pid"

// Store is a single-slot pid registry at a fixed path.
type Store struct {
	Path string
}

// Save overwrites the record with pid. The write goes to a temporary file in
// the same directory followed by a rename, so a reader never observes a
// partially written identifier.
func (s Store) Save(pid int) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".pid-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, werr := tmp.WriteString(strconv.Itoa(pid))
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		if werr != nil {
			return werr
		}
		return cerr
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Load returns the recorded pid. A missing file, unreadable file, or content
// that does not parse as a positive integer all mean "no recorded instance";
// Load never fails.
func (s Store) Load() (int, bool) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Clear removes the record. Best effort; errors are swallowed because the
// registry is bookkeeping only.
func (s Store) Clear() {
	_ = os.Remove(s.Path)
}
