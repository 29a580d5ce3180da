package flock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/panda3d/panda3d-sub012/lock"
)

const retryDelay = 50 * time.Millisecond

var _ lock.Locker = (*Lock)(nil)

// Lock guards a package index across goroutines and processes.
//
// A one-slot channel token serializes holders inside the process and lets
// Lock honor ctx while waiting. The flock(2) on path serializes processes;
// each acquisition opens its own fd, since flock locks belong to the open
// file description.
type Lock struct {
	path  string
	token chan struct{}
	held  *flock.Flock
}

// New returns an unlocked Lock on path. The file is created on first use.
func New(path string) *Lock {
	return &Lock{path: path, token: make(chan struct{}, 1)}
}

// Path is the lock file.
func (l *Lock) Path() string { return l.path }

// Lock blocks until both the token and the file lock are held.
func (l *Lock) Lock(ctx context.Context) error {
	select {
	case l.token <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("lock %s: %w", l.path, ctx.Err())
	}
	ok, err := l.acquire(func(fl *flock.Flock) (bool, error) {
		return fl.TryLockContext(ctx, retryDelay)
	})
	switch {
	case err != nil:
		return fmt.Errorf("flock %s: %w", l.path, err)
	case !ok:
		return fmt.Errorf("flock %s: %w", l.path, context.Cause(ctx))
	}
	return nil
}

// TryLock returns (false, nil) when the lock is held elsewhere.
func (l *Lock) TryLock(context.Context) (bool, error) {
	select {
	case l.token <- struct{}{}:
	default:
		return false, nil
	}
	ok, err := l.acquire((*flock.Flock).TryLock)
	if err != nil {
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}
	return ok, nil
}

// Unlock releases the file lock, then the token.
func (l *Lock) Unlock(context.Context) error {
	var err error
	if l.held != nil {
		err = l.held.Unlock()
		l.held = nil
	}
	select {
	case <-l.token:
	default:
	}
	if err != nil {
		return fmt.Errorf("unflock %s: %w", l.path, err)
	}
	return nil
}

// acquire runs try on a fresh fd. On failure the token is handed back so
// every successful Lock/TryLock pairs with exactly one Unlock.
func (l *Lock) acquire(try func(*flock.Flock) (bool, error)) (bool, error) {
	fl := flock.New(l.path)
	ok, err := try(fl)
	if err != nil || !ok {
		<-l.token
		return false, err
	}
	l.held = fl
	return true, nil
}
