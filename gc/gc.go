package gc

import (
	"context"

	"github.com/panda3d/panda3d-sub012/lock"
)

// Module is one storage backend taking part in garbage collection. S is the
// snapshot type its ReadDB produces; Resolve sees other modules' snapshots
// as any.
type Module[S any] struct {
	Name string

	// Locker is shared with the module's writers. GC only ever TryLocks it,
	// so a busy module aborts the cycle instead of blocking it.
	Locker lock.Locker

	// ReadDB, Resolve and Collect all run with Locker held and must not
	// take it again.
	ReadDB  func(ctx context.Context) (S, error)
	Resolve func(snap S, others map[string]any) []string
	Collect func(ctx context.Context, ids []string) error
}

func (m Module[S]) getName() string        { return m.Name }
func (m Module[S]) getLocker() lock.Locker { return m.Locker }

func (m Module[S]) readSnapshot(ctx context.Context) (any, error) {
	return m.ReadDB(ctx)
}

func (m Module[S]) resolveTargets(snap any, others map[string]any) []string {
	if m.Resolve == nil {
		return nil
	}
	return m.Resolve(snap.(S), others)
}

func (m Module[S]) collect(ctx context.Context, ids []string) error {
	if m.Collect == nil {
		return nil
	}
	return m.Collect(ctx, ids)
}
