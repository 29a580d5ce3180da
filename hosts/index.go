package hosts

import (
	"slices"
	"time"

	"github.com/panda3d/panda3d-sub012/installer"
)

// Index is the top-level structure of a backend's packages.json.
type Index struct {
	Packages map[string]*Entry `json:"packages"`
}

// Init implements storage.Initer.
func (idx *Index) Init() {
	if idx.Packages == nil {
		idx.Packages = make(map[string]*Entry)
	}
}

// Entry records one package whose content is on disk. Paths are derived
// from Digest, never stored.
type Entry struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Digest      Digest    `json:"digest"`
	Size        int64     `json:"size"`
	Installed   bool      `json:"installed"`
	CreatedAt   time.Time `json:"created_at"`
	InstalledAt time.Time `json:"installed_at,omitzero"`
}

// Key is the index key of a resolved package.
func Key(ref installer.PackageRef) string {
	return ref.Host + "|" + ref.Name + "@" + ref.Version
}

// Lookup finds the first entry matching id; see LookupKeys.
func (idx *Index) Lookup(id string) (string, *Entry, bool) {
	keys := idx.LookupKeys(id)
	if len(keys) == 0 {
		return "", nil, false
	}
	return keys[0], idx.Packages[keys[0]], true
}

// LookupKeys returns every key whose entry matches id by exact key, entry
// ID, "name@version", bare name, or digest.
func (idx *Index) LookupKeys(id string) []string {
	if id == "" {
		return nil
	}
	if e, ok := idx.Packages[id]; ok && e != nil {
		return []string{id}
	}
	var keys []string
	for key, e := range idx.Packages {
		if e == nil {
			continue
		}
		switch id {
		case e.ID, e.Name, e.Name + "@" + e.Version, e.Digest.String(), e.Digest.Hex():
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// ReferencedDigests returns the digest hexes of every entry, i.e. the
// package directories GC must keep.
func (idx *Index) ReferencedDigests() map[string]struct{} {
	refs := make(map[string]struct{}, len(idx.Packages))
	for _, e := range idx.Packages {
		if e != nil {
			refs[e.Digest.Hex()] = struct{}{}
		}
	}
	return refs
}
