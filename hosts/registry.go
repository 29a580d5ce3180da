package hosts

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/panda3d/panda3d-sub012/installer"
)

var _ installer.HostResolver = (*Registry)(nil)

// Factory builds the host for one ref.
type Factory func(ref string) (installer.Host, error)

// Registry implements installer.HostResolver. It picks a Factory by the
// ref's URL scheme and keeps one host per ref, so metadata refreshed by a
// host is shared by every package resolved through it.
type Registry struct {
	defaultRef string

	mu        sync.Mutex
	factories map[string]Factory
	hosts     map[string]installer.Host
}

// NewRegistry returns an empty Registry. defaultRef is used for packages
// added without a host.
func NewRegistry(defaultRef string) *Registry {
	return &Registry{
		defaultRef: defaultRef,
		factories:  make(map[string]Factory),
		hosts:      make(map[string]installer.Host),
	}
}

// Handle routes the given schemes to f.
func (r *Registry) Handle(f Factory, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.factories[strings.ToLower(s)] = f
	}
}

// Resolve returns the cached host for ref, creating it on first use.
// Factories only parse the ref, so this never blocks on I/O.
func (r *Registry) Resolve(ref string) (installer.Host, error) {
	if ref == "" {
		ref = r.defaultRef
	}
	if ref == "" {
		return nil, fmt.Errorf("no host given and no default_host configured: %w", installer.ErrUnknownHost)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hosts[ref]; ok {
		return h, nil
	}
	scheme := Scheme(ref)
	f, ok := r.factories[scheme]
	if !ok {
		return nil, fmt.Errorf("host %s: scheme %q: %w", ref, scheme, installer.ErrUnknownHost)
	}
	h, err := f(ref)
	if err != nil {
		return nil, fmt.Errorf("host %s: %w", ref, err)
	}
	r.hosts[ref] = h
	return h, nil
}

// Scheme returns the lower-cased URL scheme of ref; refs without one are
// local paths and map to "file".
func Scheme(ref string) string {
	if !strings.Contains(ref, "://") {
		return "file"
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}
