package gitrepos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockTimeout indicates the lock acquisition timed out
var ErrLockTimeout = errors.New("lock acquisition timed out")

const (
	lockPollStart = 10 * time.Millisecond
	lockPollMax   = 500 * time.Millisecond
)

// FileLock is an exclusive flock(2) lock on a file.
// It coordinates both goroutines and processes, and is released by the kernel if the process dies.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock at the given path. Nothing is opened until Lock is called.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock blocks until the lock is acquired, the timeout expires (ErrLockTimeout),
// or the context is canceled.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if l.file != nil {
		return fmt.Errorf("lock %s is already held", l.path)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	poll := lockPollStart

	for {
		err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			l.file = file
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			_ = file.Close()
			return fmt.Errorf("flock failed: %w", err)
		}

		select {
		case <-ctx.Done():
			_ = file.Close()
			return ctx.Err()
		case <-timer.C:
			_ = file.Close()
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		case <-time.After(poll):
			poll = min(poll*2, lockPollMax)
		}
	}
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// Held reports whether this instance holds the lock.
func (l *FileLock) Held() bool {
	return l.file != nil
}
