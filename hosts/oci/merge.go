package oci

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/panda3d/panda3d-sub012/hosts"
)

// mergeLayer applies one extracted layer on top of dst: whiteouts and
// opaque markers hide lower content, then the layer's entries replace
// whatever is at the same path.
func mergeLayer(dst string, l *layerResult) error {
	for _, dir := range l.opaque {
		target, err := hosts.SafeJoin(dst, dir)
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(target)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(target, e.Name())); err != nil {
				return err
			}
		}
	}
	for _, p := range l.whiteouts {
		target, err := hosts.SafeJoin(dst, p)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("whiteout %s: %w", p, err)
		}
	}

	return filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil || rel == "." {
			return err
		}
		target := filepath.Join(dst, rel)
		existing, statErr := os.Lstat(target)
		if d.IsDir() {
			if statErr == nil && !existing.IsDir() {
				if err := os.Remove(target); err != nil {
					return err
				}
			}
			return os.MkdirAll(target, 0o750)
		}
		if statErr == nil && existing.IsDir() {
			if err := os.RemoveAll(target); err != nil {
				return err
			}
		}
		return os.Rename(path, target)
	})
}
