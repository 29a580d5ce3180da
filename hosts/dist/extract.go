package dist

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bodgit/sevenzip"

	"github.com/panda3d/panda3d-sub012/hosts"
)

type archiveFormat int

const (
	formatTar archiveFormat = iota
	formatTarGz
	format7z
)

func detectFormat(name string) (archiveFormat, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return formatTarGz, nil
	case strings.HasSuffix(lower, ".tar"):
		return formatTar, nil
	case strings.HasSuffix(lower, ".7z"):
		return format7z, nil
	default:
		return 0, fmt.Errorf("unsupported archive %q (want .tar.gz, .tgz, .tar or .7z)", name)
	}
}

func (f archiveFormat) ext() string {
	switch f {
	case formatTarGz:
		return ".tar.gz"
	case format7z:
		return ".7z"
	default:
		return ".tar"
	}
}

// extract unpacks the archive at src into dst.
func extract(ctx context.Context, f archiveFormat, src, dst string) error {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return err
	}
	if f == format7z {
		return extract7z(ctx, src, dst)
	}
	file, err := os.Open(src) //nolint:gosec // staging path
	if err != nil {
		return err
	}
	defer file.Close() //nolint:errcheck

	var r io.Reader = file
	if f == formatTarGz {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close() //nolint:errcheck
		r = gz
	}
	return hosts.ExtractTar(ctx, r, dst, nil)
}

func extract7z(ctx context.Context, src, dst string) error {
	reader, err := sevenzip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open 7z: %w", err)
	}
	defer reader.Close() //nolint:errcheck

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := hosts.SafeJoin(dst, file.Name)
		if err != nil {
			return err
		}
		info := file.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := extract7zFile(file, target); err != nil {
			return err
		}
	}
	return nil
}

func extract7zFile(file *sevenzip.File, target string) error {
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer rc.Close() //nolint:errcheck
	return hosts.WriteFile(target, rc, file.FileInfo().Mode().Perm())
}
