package hosts

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SafeJoin joins an archive member name onto dst, rejecting names that
// would land outside dst.
func SafeJoin(dst, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if clean == "." {
		return dst, nil
	}
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return filepath.Join(dst, clean), nil
}

// TarEntryFunc may intercept an entry before ExtractTar writes it. Return
// handled=true to skip the default handling.
type TarEntryFunc func(hdr *tar.Header, target string) (handled bool, err error)

// ExtractTar unpacks a tar stream into dst. Directories, regular files,
// symlinks and hard links are created; other entry types are skipped.
// ctx is checked between entries.
func ExtractTar(ctx context.Context, r io.Reader, dst string, intercept TarEntryFunc) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		target, err := SafeJoin(dst, hdr.Name)
		if err != nil {
			return err
		}
		if intercept != nil {
			handled, err := intercept(hdr, target)
			if err != nil {
				return err
			}
			if handled {
				continue
			}
		}
		if err := writeTarEntry(tr, hdr, dst, target); err != nil {
			return err
		}
	}
}

func writeTarEntry(tr *tar.Reader, hdr *tar.Header, dst, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o750)
	case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old archives still use TypeRegA
		return WriteFile(target, tr, os.FileMode(hdr.Mode).Perm())
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) {
			return fmt.Errorf("symlink %s -> %s: absolute target", hdr.Name, hdr.Linkname)
		}
		resolved := filepath.Join(filepath.Dir(target), hdr.Linkname)
		if rel, err := filepath.Rel(dst, resolved); err != nil || !filepath.IsLocal(rel) {
			return fmt.Errorf("symlink %s -> %s escapes destination", hdr.Name, hdr.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		src, err := SafeJoin(dst, hdr.Linkname)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Link(src, target)
	default:
		return nil
	}
}

// WriteFile creates path (and its parents) from r.
func WriteFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) //nolint:gosec // path checked by SafeJoin
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
