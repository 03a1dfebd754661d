package instance

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
)

// fakeProcess is a static ps.Process.
type fakeProcess struct {
	pid  int
	name string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.name }

// guardOver returns a Guard for pid 10 locking stateFile over processes.
func guardOver(stateFile string, processes ...ps.Process) *Guard {
	return &Guard{
		list: func() ([]ps.Process, error) { return processes, nil },
		pid:  10,
		path: stateFile + LockSuffix,
	}
}

// writeLock stores pid in the lock file of g.
func writeLock(t *testing.T, g *Guard, pid string) {
	t.Helper()

	require.NoError(t, os.WriteFile(g.Path(), []byte(pid), 0o600))
}

// readLock returns the lock contents of g.
func readLock(t *testing.T, g *Guard) string {
	t.Helper()

	contents, err := os.ReadFile(g.Path())
	require.NoError(t, err)

	return string(contents)
}

// TestGuard_AcquireAndRelease covers a free lock.
func TestGuard_AcquireAndRelease(t *testing.T) {
	t.Parallel()

	g := guardOver(filepath.Join(t.TempDir(), "state.json"),
		fakeProcess{1, "init"}, fakeProcess{10, "ical-alarm-rela"})

	require.NoError(t, g.Acquire())
	require.Equal(t, "10", readLock(t, g))

	require.NoError(t, g.Release())
	require.NoFileExists(t, g.Path())
	require.NoError(t, g.Release())
}

// TestGuard_HeldByRunningRelay covers a second relay on the same state file.
func TestGuard_HeldByRunningRelay(t *testing.T) {
	t.Parallel()

	g := guardOver(filepath.Join(t.TempDir(), "state.json"),
		fakeProcess{10, "ical-alarm-rela"}, fakeProcess{42, "ical-alarm-rela"})
	writeLock(t, g, "42")

	err := g.Acquire()
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "42")

	require.NoError(t, g.Release())
	require.Equal(t, "42", readLock(t, g), "a lock held by another process is kept")
}

// TestGuard_OtherStateFileIsIndependent covers two relays with different state files.
func TestGuard_OtherStateFileIsIndependent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	processes := []ps.Process{fakeProcess{10, "ical-alarm-rela"}, fakeProcess{42, "ical-alarm-rela"}}

	other := guardOver(filepath.Join(dir, "home.json"), processes...)
	writeLock(t, other, "42")

	g := guardOver(filepath.Join(dir, "work.json"), processes...)
	require.NoError(t, g.Acquire())
	require.Equal(t, "10", readLock(t, g))
}

// TestGuard_TakesOverStaleLock covers locks left by dead or unrelated processes.
func TestGuard_TakesOverStaleLock(t *testing.T) {
	t.Parallel()

	for _, holder := range []string{"77", "11", "10", "garbage"} {
		t.Run(holder, func(t *testing.T) {
			t.Parallel()

			g := guardOver(filepath.Join(t.TempDir(), "state.json"),
				fakeProcess{10, "ical-alarm-rela"}, fakeProcess{11, "bash"})
			writeLock(t, g, holder)

			require.NoError(t, g.Acquire())
			require.Equal(t, "10", readLock(t, g))
		})
	}
}

// TestGuard_Errors covers a broken process table and a missing self entry.
func TestGuard_Errors(t *testing.T) {
	t.Parallel()

	stateFile := filepath.Join(t.TempDir(), "state.json")

	orphan := guardOver(stateFile, fakeProcess{1, "init"})
	require.ErrorIs(t, orphan.Acquire(), errSelfNotFound)

	boom := errors.New("no /proc")
	broken := &Guard{list: func() ([]ps.Process, error) { return nil, boom }, pid: 10, path: stateFile + LockSuffix}
	require.ErrorIs(t, broken.Acquire(), boom)

	missingDir := guardOver(filepath.Join(t.TempDir(), "absent", "state.json"), fakeProcess{10, "relay"})
	require.Error(t, missingDir.Acquire())
}

// TestNewGuard_UsesRealProcessTable checks the real process table and lock path.
func TestNewGuard_UsesRealProcessTable(t *testing.T) {
	t.Parallel()

	stateFile := filepath.Join(t.TempDir(), "state.json")

	g := NewGuard(stateFile)
	require.Equal(t, os.Getpid(), g.pid)
	require.Equal(t, stateFile+LockSuffix, g.Path())

	require.NoError(t, g.Acquire())
	require.Equal(t, strconv.Itoa(os.Getpid()), readLock(t, g))
	require.NoError(t, g.Release())
}
