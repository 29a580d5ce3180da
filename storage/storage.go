package storage

import (
	"context"
)

// Initer is optionally implemented by *T to fill zero-value fields (nil
// maps) after loading, including when nothing was stored yet.
type Initer interface {
	Init()
}

// Store provides locked read/modify/write access to one persisted T.
type Store[T any] interface {
	// With loads T under lock and passes it to fn; the lock is held for
	// the duration of fn.
	With(ctx context.Context, fn func(*T) error) error
	// Update is With plus a write-back when fn returns nil.
	Update(ctx context.Context, fn func(*T) error) error

	// Read and Write are the lock-free variants for callers that already
	// hold the lock via TryLock, e.g. the GC orchestrator.
	Read(fn func(*T) error) error
	Write(fn func(*T) error) error
	// TryLock returns (false, nil) when another holder has the lock. On
	// (true, nil) the caller must Unlock.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}
