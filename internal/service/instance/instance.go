// Package instance prevents two relays from sharing one state file.
package instance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"
)

// LockSuffix is appended to the state file path to name its lock file.
const LockSuffix = ".lock"

// lockPermissions is the mode of a created lock file.
const lockPermissions = 0o600

// ErrAlreadyRunning is returned when a live relay holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// errSelfNotFound is returned when the current process is missing from the process table.
var errSelfNotFound = errors.New("current process not found")

// Guard owns the lock file of one state file. The lock stores the pid of
// its holder; a lock whose holder is no longer a running relay is stale
// and taken over.
type Guard struct {
	// list returns the process table.
	list func() ([]ps.Process, error)
	// pid is the current process id.
	pid int
	// path is the lock file.
	path string
}

// NewGuard returns a Guard for the lock file next to stateFile.
func NewGuard(stateFile string) *Guard {
	path, err := filepath.Abs(stateFile)
	if err != nil {
		path = filepath.Clean(stateFile)
	}

	return &Guard{
		list: ps.Processes,
		pid:  os.Getpid(),
		path: path + LockSuffix,
	}
}

// Path returns the lock file path.
func (g *Guard) Path() string {
	return g.path
}

// Acquire creates the lock file or returns ErrAlreadyRunning when another
// running relay holds it.
func (g *Guard) Acquire() error {
	processList, err := g.list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	name, err := g.ownName(processList)
	if err != nil {
		return err
	}

	// One retry after removing a stale lock.
	for range 2 {
		created, err := g.create()
		if err != nil {
			return err
		}

		if created {
			return nil
		}

		holder, err := g.holder()
		if err != nil {
			return err
		}

		if g.alive(processList, holder, name) {
			return fmt.Errorf("%w: %s is held by pid %d", ErrAlreadyRunning, g.path, holder)
		}

		if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	}

	return fmt.Errorf("%w: %s keeps reappearing", ErrAlreadyRunning, g.path)
}

// Release removes the lock file if this process holds it.
func (g *Guard) Release() error {
	holder, err := g.holder()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	if holder != g.pid {
		return nil
	}

	if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}

	return nil
}

// create writes the lock file exclusively. It reports false when the file
// already exists.
func (g *Guard) create() (bool, error) {
	file, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockPermissions)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("create lock: %w", err)
	}

	if _, err := file.WriteString(strconv.Itoa(g.pid)); err != nil {
		_ = file.Close()

		return false, fmt.Errorf("write lock: %w", err)
	}

	if err := file.Close(); err != nil {
		return false, fmt.Errorf("close lock: %w", err)
	}

	return true, nil
}

// holder reads the pid stored in the lock file. Unreadable contents yield 0.
func (g *Guard) holder() (int, error) {
	contents, err := os.ReadFile(g.path)
	if err != nil {
		return 0, fmt.Errorf("read lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		return 0, nil
	}

	return pid, nil
}

// ownName returns the name the process table reports for us, since some
// platforms truncate it.
func (g *Guard) ownName(processList []ps.Process) (string, error) {
	for _, process := range processList {
		if process.Pid() == g.pid {
			return process.Executable(), nil
		}
	}

	return "", errSelfNotFound
}

// alive reports whether pid is another running process named name.
func (g *Guard) alive(processList []ps.Process, pid int, name string) bool {
	if pid <= 0 || pid == g.pid {
		return false
	}

	for _, process := range processList {
		if process.Pid() == pid {
			return process.Executable() == name
		}
	}

	return false
}
