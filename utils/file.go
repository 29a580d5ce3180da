package utils

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/projecteru2/core/log"
)

// StaleTempAge is how old a staging directory must be before GC removes it.
const StaleTempAge = time.Hour

// EnsureDirs creates every dir with 0o750 permissions.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ValidDir reports whether path is a directory with at least one entry.
func ValidDir(path string) bool {
	f, err := os.Open(path) //nolint:gosec // managed package path
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck
	names, err := f.Readdirnames(1)
	return err == nil && len(names) > 0
}

// DirSize sums the sizes of regular files below root. Unreadable entries
// are skipped.
func DirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil //nolint:nilerr
		}
		if info, infoErr := d.Info(); infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// ScanSubdirs returns the names of the immediate subdirectories of dir.
func ScanSubdirs(dir string) []string {
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// FilterUnreferenced returns the candidates missing from refs.
func FilterUnreferenced(candidates []string, refs map[string]struct{}) []string {
	var out []string
	for _, s := range candidates {
		if _, ok := refs[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// RemoveMatching removes every entry of dir for which match returns true and
// returns one error per entry it failed to remove.
func RemoveMatching(ctx context.Context, dir string, match func(os.DirEntry) bool) []error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []error{fmt.Errorf("read %s: %w", dir, err)}
	}

	logger := log.WithFunc("utils.RemoveMatching")
	var errs []error
	for _, e := range entries {
		if !match(e) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		logger.Infof(ctx, "removed %s", path)
	}
	return errs
}

// OlderThan matches entries last modified before now-age.
func OlderThan(age time.Duration) func(os.DirEntry) bool {
	cutoff := time.Now().Add(-age)
	return func(e os.DirEntry) bool {
		info, err := e.Info()
		return err == nil && info.ModTime().Before(cutoff)
	}
}
