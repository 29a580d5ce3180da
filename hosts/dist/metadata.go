package dist

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/pelletier/go-toml/v2"

	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/installer"
)

const contentsName = "contents.toml"

// contentsFile is the host's table of contents:
//
//	[[package]]
//	name = "zlib"
//	version = "1.3.1"
//	descriptor = "zlib/1.3.1/package.toml"
type contentsFile struct {
	Packages []contentsEntry `toml:"package"`
}

type contentsEntry struct {
	Name       string `toml:"name"`
	Version    string `toml:"version"`
	Descriptor string `toml:"descriptor"`
}

// packageFile describes one package version. Archive is relative to the
// directory holding the package.toml.
//
//	name = "libpng"
//	version = "1.6.43"
//	archive = "libpng-1.6.43.tar.gz"
//	sha256 = "..."
//	size = 1048576
//	effort = 2.5
//
//	[[requires]]
//	name = "zlib"
//	version = "1.3.1"
type packageFile struct {
	Name     string        `toml:"name"`
	Version  string        `toml:"version"`
	Archive  string        `toml:"archive"`
	SHA256   string        `toml:"sha256"`
	Size     int64         `toml:"size"`
	Effort   float64       `toml:"effort"`
	Requires []requirement `toml:"requires"`
}

type requirement struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Host    string `toml:"host"`
}

func parseContents(data []byte) (*contentsFile, error) {
	var c contentsFile
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", contentsName, err)
	}
	for i, e := range c.Packages {
		if e.Name == "" || e.Descriptor == "" {
			return nil, fmt.Errorf("parse %s: package #%d needs name and descriptor", contentsName, i+1)
		}
	}
	return &c, nil
}

// find returns the entry for name@version; an empty version matches the
// last listed entry of name.
func (c *contentsFile) find(name, version string) (contentsEntry, bool) {
	var (
		found contentsEntry
		ok    bool
	)
	for _, e := range c.Packages {
		if e.Name != name {
			continue
		}
		if version == "" {
			found, ok = e, true
			continue
		}
		if e.Version == version {
			return e, true
		}
	}
	return found, ok
}

func parsePackage(data []byte) (*packageFile, error) {
	var p packageFile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse package: %w", err)
	}
	return &p, nil
}

// descriptor validates p against the contents entry that pointed at it.
func (p *packageFile) descriptor(hostRef string, entry contentsEntry) (*hosts.Descriptor, error) {
	if p.Name != entry.Name || (entry.Version != "" && p.Version != entry.Version) {
		return nil, fmt.Errorf("%s describes %s@%s, listed as %s@%s",
			entry.Descriptor, p.Name, p.Version, entry.Name, entry.Version)
	}
	if p.Archive == "" {
		return nil, fmt.Errorf("%s: no archive", entry.Descriptor)
	}
	if p.Size < 0 {
		return nil, fmt.Errorf("%s: negative size", entry.Descriptor)
	}
	digest, err := hosts.ParseDigest(p.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.Descriptor, err)
	}

	effort := p.Effort
	if effort <= 0 {
		effort = hosts.EffortFromSize(p.Size)
	}
	requires := make([]installer.PackageRef, 0, len(p.Requires))
	for _, r := range p.Requires {
		if r.Name == "" {
			return nil, fmt.Errorf("%s: requirement without name", entry.Descriptor)
		}
		requires = append(requires, installer.PackageRef{Name: r.Name, Version: r.Version, Host: r.Host})
	}
	return &hosts.Descriptor{
		Ref:      installer.PackageRef{Name: p.Name, Version: p.Version, Host: hostRef},
		Effort:   effort,
		Requires: requires,
		Digest:   digest,
		Size:     p.Size,
		Source:   path.Join(path.Dir(entry.Descriptor), p.Archive),
	}, nil
}

// read fetches a metadata file with the metadata transport.
func (d *Dist) read(ctx context.Context, rel string) ([]byte, error) {
	body, _, err := d.fetch.open(ctx, d.meta, rel)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(body, maxMetadataBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	if len(data) > maxMetadataBytes {
		return nil, fmt.Errorf("read %s: larger than %d bytes", rel, maxMetadataBytes)
	}
	return data, nil
}

const maxMetadataBytes = 16 << 20
