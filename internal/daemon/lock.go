package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
)

// ErrPIDFileNotFound is returned when the PID file doesn't exist.
var ErrPIDFileNotFound = errors.New("PID file not found")

// InstanceLock keeps a single chatsearch process per data directory. It
// holds an flock on "<pid path>.lock" and records the owner's PID.
type InstanceLock struct {
	pidPath string
	flock   *flock.Flock
	locked  bool
}

// NewInstanceLock creates a lock for pidPath.
func NewInstanceLock(pidPath string) *InstanceLock {
	return &InstanceLock{
		pidPath: pidPath,
		flock:   flock.New(pidPath + ".lock"),
	}
}

// Acquire takes the lock without blocking and writes the PID file.
// Returns an ERR_203_LOCK_HELD error when another process holds it.
func (l *InstanceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.pidPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		ce := cserrors.New(cserrors.ErrCodeLockHeld, "another chatsearch process is running", nil)
		if pid, err := ReadPID(l.pidPath); err == nil {
			ce = ce.WithDetail("pid", strconv.Itoa(pid))
		}
		return ce.WithSuggestion("Stop it first, or point this process at another data directory")
	}
	l.locked = true

	if err := os.WriteFile(l.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = l.Release()
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Release removes the PID file and unlocks. Safe to call when not held.
func (l *InstanceLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	if err := os.Remove(l.pidPath); err != nil && !os.IsNotExist(err) {
		_ = l.flock.Unlock()
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// ReadPID reads the PID recorded at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// RunningPID returns the PID recorded at path if that process is alive.
func RunningPID(path string) (int, bool) {
	pid, err := ReadPID(path)
	if err != nil {
		return 0, false
	}
	return pid, processExists(pid)
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}
