package embedder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process advisory lock used to serialise concurrent
// attempts to warm or download a real embedding backend from multiple
// process instances sharing the same cache directory.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock file at <dir>/.embedder.lock.
func NewFileLock(dir string) *FileLock {
	path := filepath.Join(dir, ".embedder.lock")
	return &FileLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the exclusive lock is acquired.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if ok {
		l.locked = true
	}
	return ok, nil
}

// Unlock releases the lock; safe to call when not locked.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("release lock: %w", err)
	}
	l.locked = false
	return nil
}

// IsLocked reports whether this handle currently holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
