package installer

import (
	"context"
	"net/http"
)

// PackageRef identifies a package within a run. Two refs are the same
// package iff all three fields match.
type PackageRef struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Host    string `json:"host,omitempty"`
}

func (r PackageRef) String() string {
	s := r.Name
	if r.Version != "" {
		s += "@" + r.Version
	}
	if r.Host != "" {
		s += " (" + r.Host + ")"
	}
	return s
}

// Descriptor is the resolved metadata of a package.
type Descriptor interface {
	Name() string
	Version() string
	// DownloadEffort is a unitless weight used only for relative progress.
	DownloadEffort() float64
	// Dependencies lists further packages to add to the same run.
	// An empty Host inherits the host of the declaring package.
	Dependencies() []PackageRef
}

// Host serves descriptors and content for the packages it owns.
// All methods may be called from background workers.
type Host interface {
	Ref() string

	// ResolveDescriptor may perform a one-time metadata refresh,
	// cached by the host.
	ResolveDescriptor(ctx context.Context, name, version string) (Descriptor, error)
	// Present reports whether the content is already installed locally.
	Present(ctx context.Context, desc Descriptor) bool
	// FetchAndInstall downloads and unpacks the content. rt is passed
	// through from the Installer untouched.
	FetchAndInstall(ctx context.Context, desc Descriptor, rt http.RoundTripper) error
	// Install activates content that is present locally.
	Install(ctx context.Context, desc Descriptor) error
	// CurrentProgress is the self-reported ratio (0..1) of an in-flight
	// FetchAndInstall.
	CurrentProgress(desc Descriptor) float64
}

// HostResolver maps a host reference to a Host. It must not block on I/O.
type HostResolver interface {
	Resolve(ref string) (Host, error)
}

// HostResolverFunc adapts a function to HostResolver.
type HostResolverFunc func(ref string) (Host, error)

func (f HostResolverFunc) Resolve(ref string) (Host, error) { return f(ref) }
