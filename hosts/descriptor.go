package hosts

import (
	"fmt"
	"strings"

	"github.com/panda3d/panda3d-sub012/installer"
)

const mib = 1 << 20

// Descriptor is the installer.Descriptor produced by every backend.
type Descriptor struct {
	// Ref names the package; Ref.Host is the ref of the backend that
	// resolved it.
	Ref      installer.PackageRef
	Effort   float64
	Requires []installer.PackageRef
	// Digest is the expected content digest: the archive checksum for a
	// distribution host, the manifest digest for an OCI host.
	Digest Digest
	// Size is the number of bytes to transfer, when known.
	Size int64
	// Source locates the content on the host.
	Source string
}

func (d *Descriptor) Name() string                         { return d.Ref.Name }
func (d *Descriptor) Version() string                      { return d.Ref.Version }
func (d *Descriptor) DownloadEffort() float64              { return d.Effort }
func (d *Descriptor) Dependencies() []installer.PackageRef { return d.Requires }

// AsDescriptor recovers the concrete descriptor handed back by the installer.
func AsDescriptor(desc installer.Descriptor) (*Descriptor, error) {
	d, ok := desc.(*Descriptor)
	if !ok || d == nil {
		return nil, fmt.Errorf("unexpected descriptor %T", desc)
	}
	return d, nil
}

// EffortFromSize converts a byte count to effort: MiB, at least 1.
func EffortFromSize(size int64) float64 {
	return max(float64(size)/mib, 1)
}

// ParseRef parses "name[@version]".
func ParseRef(s string) (installer.PackageRef, error) {
	name, version, _ := strings.Cut(strings.TrimSpace(s), "@")
	if name == "" {
		return installer.PackageRef{}, fmt.Errorf("invalid package %q: empty name", s)
	}
	return installer.PackageRef{Name: name, Version: version}, nil
}

// ParseRequires parses a comma separated "name@version[@host]" list. The
// host part may itself contain '@' only if it is the last field.
func ParseRequires(s string) ([]installer.PackageRef, error) {
	var refs []installer.PackageRef
	for item := range strings.SplitSeq(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "@", 3)
		if parts[0] == "" {
			return nil, fmt.Errorf("invalid requirement %q: empty name", item)
		}
		ref := installer.PackageRef{Name: parts[0]}
		if len(parts) > 1 {
			ref.Version = parts[1]
		}
		if len(parts) > 2 {
			ref.Host = parts[2]
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// FormatRequires is the inverse of ParseRequires.
func FormatRequires(refs []installer.PackageRef) string {
	items := make([]string, 0, len(refs))
	for _, r := range refs {
		item := r.Name + "@" + r.Version
		if r.Host != "" {
			item += "@" + r.Host
		}
		items = append(items, item)
	}
	return strings.Join(items, ",")
}
