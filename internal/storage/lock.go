package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
)

var errLockHeld = errors.New("lock held")

// FileLock provides cross-process file locking backed by gofrs/flock.
// It also serializes goroutines of the same process, which flock alone does not.
type FileLock struct {
	mu   sync.Mutex
	fl   *flock.Flock
	held bool
}

// NewFileLock creates a lock on the file at path. The file is created on first use.
func NewFileLock(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.fl.Path()
}

// Lock acquires an exclusive lock, blocking until it is available.
func (l *FileLock) Lock() error {
	l.mu.Lock()
	if err := l.fl.Lock(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.held = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	if !l.mu.TryLock() {
		return false, nil
	}
	ok, err := l.fl.TryLock()
	if err != nil || !ok {
		l.mu.Unlock()
		return false, err
	}
	l.held = true
	return true, nil
}

// LockContext acquires the lock, trying again every retry until ctx is done.
func (l *FileLock) LockContext(ctx context.Context, retry time.Duration) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(retry), ctx)
	return backoff.Retry(func() error {
		ok, err := l.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, b)
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *FileLock) Unlock() error {
	if !l.held {
		return nil
	}
	err := l.fl.Unlock()
	l.held = false
	l.mu.Unlock()
	return err
}
