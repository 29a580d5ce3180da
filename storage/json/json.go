package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/panda3d/panda3d-sub012/lock"
	"github.com/panda3d/panda3d-sub012/storage"
	"github.com/panda3d/panda3d-sub012/utils"
)

var _ storage.Store[struct{}] = (*Store[struct{}])(nil)

// Store keeps a T as an indented JSON file guarded by locker.
// T needs exported fields with json tags.
type Store[T any] struct {
	filePath string
	locker   lock.Locker
}

// New returns a Store persisting to filePath under locker. Hand the same
// locker to gc.Module so GC and writers exclude each other.
func New[T any](filePath string, locker lock.Locker) *Store[T] {
	return &Store[T]{filePath: filePath, locker: locker}
}

func (s *Store[T]) With(ctx context.Context, fn func(*T) error) error {
	return lock.WithLock(ctx, s.locker, func() error {
		return s.Read(fn)
	})
}

func (s *Store[T]) Update(ctx context.Context, fn func(*T) error) error {
	return lock.WithLock(ctx, s.locker, func() error {
		return s.Write(fn)
	})
}

// Read loads the file, or a zero T when it does not exist yet.
func (s *Store[T]) Read(fn func(*T) error) error {
	data, err := s.load()
	if err != nil {
		return err
	}
	return fn(data)
}

func (s *Store[T]) Write(fn func(*T) error) error {
	data, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	return utils.AtomicWriteJSON(s.filePath, data)
}

func (s *Store[T]) TryLock(ctx context.Context) (bool, error) { return s.locker.TryLock(ctx) }

func (s *Store[T]) Unlock(ctx context.Context) error { return s.locker.Unlock(ctx) }

func (s *Store[T]) load() (*T, error) {
	data := new(T)
	raw, err := os.ReadFile(s.filePath) //nolint:gosec // managed index file
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", s.filePath, err)
	default:
		if err := json.Unmarshal(raw, data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.filePath, err)
		}
	}
	if initer, ok := any(data).(storage.Initer); ok {
		initer.Init()
	}
	return data, nil
}
