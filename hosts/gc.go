package hosts

import (
	"context"
	"errors"
	"os"

	"github.com/panda3d/panda3d-sub012/gc"
	"github.com/panda3d/panda3d-sub012/utils"
)

// snapshot is the typed GC snapshot of one backend type.
type snapshot struct {
	refs map[string]struct{} // digest hexes referenced by the index
	dirs []string            // content directories on disk
}

// GCModule removes content directories no index entry references, plus
// stale staging directories.
func (l *Local) GCModule() gc.Module[snapshot] {
	return gc.Module[snapshot]{
		Name:   l.typ,
		Locker: l.locker,
		ReadDB: func(context.Context) (snapshot, error) {
			var snap snapshot
			if err := l.store.Read(func(idx *Index) error {
				snap.refs = idx.ReferencedDigests()
				return nil
			}); err != nil {
				return snap, err
			}
			snap.dirs = utils.ScanSubdirs(l.conf.PackagesDir(l.typ))
			return snap, nil
		},
		Resolve: func(snap snapshot, _ map[string]any) []string {
			return utils.FilterUnreferenced(snap.dirs, snap.refs)
		},
		Collect: func(ctx context.Context, hexes []string) error {
			errs := utils.RemoveMatching(ctx, l.conf.TempDir(l.typ), utils.OlderThan(utils.StaleTempAge))
			for _, hex := range hexes {
				if err := os.RemoveAll(l.conf.PackageDir(l.typ, hex)); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// RegisterGC registers the backend's GC module with orch.
func (l *Local) RegisterGC(orch *gc.Orchestrator) {
	gc.Register(orch, l.GCModule())
}
