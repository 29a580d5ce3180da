package hosts

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/panda3d/panda3d-sub012/config"
	"github.com/panda3d/panda3d-sub012/lock"
	"github.com/panda3d/panda3d-sub012/lock/flock"
	"github.com/panda3d/panda3d-sub012/progress"
	"github.com/panda3d/panda3d-sub012/storage"
	storejson "github.com/panda3d/panda3d-sub012/storage/json"
	"github.com/panda3d/panda3d-sub012/types"
	"github.com/panda3d/panda3d-sub012/utils"
)

// Local is the on-disk side shared by every host of one backend type: the
// package index, the content directories and the in-flight byte meters.
type Local struct {
	typ    string
	conf   *config.Config
	store  storage.Store[Index]
	locker lock.Locker

	mu     sync.Mutex
	meters map[string]*progress.Meter
}

// NewLocal prepares the directories of backend typ.
func NewLocal(ctx context.Context, conf *config.Config, typ string) (*Local, error) {
	if err := conf.EnsureDirs(typ); err != nil {
		return nil, fmt.Errorf("ensure dirs: %w", err)
	}
	locker := flock.New(conf.IndexLock(typ))
	log.WithFunc("hosts.NewLocal").Infof(ctx, "%s package store at %s", typ, conf.PackagesDir(typ))
	return &Local{
		typ:    typ,
		conf:   conf,
		store:  storejson.New[Index](conf.IndexFile(typ), locker),
		locker: locker,
		meters: make(map[string]*progress.Meter),
	}, nil
}

// Type is the backend type, e.g. "dist" or "oci".
func (l *Local) Type() string { return l.typ }

// Conf is the configuration the store was created with.
func (l *Local) Conf() *config.Config { return l.conf }

// StagingDir creates a fresh directory under the backend's temp dir. GC
// removes it once stale; callers remove it when done.
func (l *Local) StagingDir(pattern string) (string, error) {
	dir, err := os.MkdirTemp(l.conf.TempDir(l.typ), pattern)
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// ContentDir is where content with digest d lives once committed.
func (l *Local) ContentDir(d Digest) string {
	return l.conf.PackageDir(l.typ, d.Hex())
}

// Present reports whether d is indexed with the same digest and its
// content directory is intact.
func (l *Local) Present(ctx context.Context, d *Descriptor) bool {
	var ok bool
	if err := l.store.With(ctx, func(idx *Index) error {
		e := idx.Packages[Key(d.Ref)]
		ok = e != nil && (d.Digest == "" || e.Digest == d.Digest) && utils.ValidDir(l.ContentDir(e.Digest))
		return nil
	}); err != nil {
		log.WithFunc("hosts.Present").Warnf(ctx, "read %s index: %v", l.typ, err)
		return false
	}
	return ok
}

// Commit moves staged content into place and records d, all under the
// index lock so GC never sees the directory without its entry. Content
// already present under the same digest is reused and staged is left for
// the caller to remove.
func (l *Local) Commit(ctx context.Context, d *Descriptor, digest Digest, staged string) error {
	logger := log.WithFunc("hosts.Commit")
	return l.store.Update(ctx, func(idx *Index) error {
		dst := l.ContentDir(digest)
		if !utils.ValidDir(dst) {
			if err := os.RemoveAll(dst); err != nil {
				return fmt.Errorf("clear %s: %w", dst, err)
			}
			if err := os.Rename(staged, dst); err != nil {
				return fmt.Errorf("move content into place: %w", err)
			}
		} else {
			logger.Infof(ctx, "content %s already stored, reusing", digest.Short())
		}
		if !utils.ValidDir(dst) {
			return fmt.Errorf("package %s has no content", d.Ref)
		}

		key := Key(d.Ref)
		e := idx.Packages[key]
		if e == nil {
			e = &Entry{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
			idx.Packages[key] = e
		}
		e.Host, e.Name, e.Version = d.Ref.Host, d.Ref.Name, d.Ref.Version
		e.Digest = digest
		e.Size = utils.DirSize(dst)
		e.Installed = false
		return nil
	})
}

// Install marks committed content as installed.
func (l *Local) Install(ctx context.Context, d *Descriptor) error {
	return l.store.Update(ctx, func(idx *Index) error {
		e := idx.Packages[Key(d.Ref)]
		if e == nil || !utils.ValidDir(l.ContentDir(e.Digest)) {
			return fmt.Errorf("install %s: %w", d.Ref, ErrNotFetched)
		}
		if !e.Installed {
			e.Installed = true
			e.InstalledAt = time.Now().UTC()
		}
		return nil
	})
}

// Track registers a meter for an in-flight fetch of d.
func (l *Local) Track(d *Descriptor) *progress.Meter {
	m := &progress.Meter{}
	l.mu.Lock()
	l.meters[Key(d.Ref)] = m
	l.mu.Unlock()
	return m
}

// Untrack drops the meter registered by Track.
func (l *Local) Untrack(d *Descriptor) {
	l.mu.Lock()
	delete(l.meters, Key(d.Ref))
	l.mu.Unlock()
}

// Progress is the byte ratio of the in-flight fetch of d, 0 if none.
func (l *Local) Progress(d *Descriptor) float64 {
	l.mu.Lock()
	m := l.meters[Key(d.Ref)]
	l.mu.Unlock()
	return m.Ratio()
}

// List returns every indexed package, sorted by name then version.
func (l *Local) List(ctx context.Context) ([]*types.Package, error) {
	var result []*types.Package
	err := l.store.With(ctx, func(idx *Index) error {
		for _, e := range idx.Packages {
			if e == nil {
				continue
			}
			result = append(result, &types.Package{
				ID:          e.ID,
				Name:        e.Name,
				Version:     e.Version,
				Host:        e.Host,
				Type:        l.typ,
				Digest:      e.Digest.String(),
				Size:        e.Size,
				Installed:   e.Installed,
				CreatedAt:   e.CreatedAt,
				InstalledAt: e.InstalledAt,
			})
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Version < result[j].Version
	})
	return result, err
}

// Delete removes matching entries from the index and returns their keys.
// Content directories are left for GC.
func (l *Local) Delete(ctx context.Context, ids []string) ([]string, error) {
	logger := log.WithFunc("hosts.Delete")
	var deleted []string
	err := l.store.Update(ctx, func(idx *Index) error {
		for _, id := range ids {
			keys := idx.LookupKeys(id)
			if len(keys) == 0 {
				logger.Infof(ctx, "%s: package %q not found, skipping", l.typ, id)
				continue
			}
			for _, key := range keys {
				delete(idx.Packages, key)
				deleted = append(deleted, key)
				logger.Infof(ctx, "%s: deleted from index: %s", l.typ, key)
			}
		}
		return nil
	})
	return deleted, err
}
