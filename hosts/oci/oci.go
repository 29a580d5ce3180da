package oci

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/installer"
	"github.com/panda3d/panda3d-sub012/progress"
)

const (
	typ = "oci"

	// AnnotationRequires lists dependencies as "name@version[@host],...".
	AnnotationRequires = "org.pkginst.requires"
	// AnnotationEffort overrides the layer-size based download effort.
	AnnotationEffort = "org.pkginst.effort"

	defaultTag = "latest"
)

// Schemes are the ref schemes served by OCI hosts.
var Schemes = []string{"oci"}

var _ installer.Host = (*OCI)(nil)

// OCI serves packages published as OCI artifacts: package name@version is
// the image {registry}/{prefix}/{name}:{version}, its layers are tar
// archives applied in order.
type OCI struct {
	ref      string
	repo     string
	local    *hosts.Local
	tracker  progress.Tracker
	keychain authn.Keychain
	nameOpts []name.Option
	meta     http.RoundTripper
}

// Option configures an OCI host.
type Option func(*OCI)

// WithTracker receives ociProgress.Event updates for every fetch.
func WithTracker(t progress.Tracker) Option {
	return func(o *OCI) { o.tracker = t }
}

// WithKeychain replaces authn.DefaultKeychain.
func WithKeychain(k authn.Keychain) Option {
	return func(o *OCI) { o.keychain = k }
}

// WithInsecure talks plain HTTP to the registry.
func WithInsecure() Option {
	return func(o *OCI) { o.nameOpts = append(o.nameOpts, name.Insecure) }
}

// WithMetadataTransport sets the transport used to resolve manifests.
// Layers use the transport handed to FetchAndInstall.
func WithMetadataTransport(rt http.RoundTripper) Option {
	return func(o *OCI) { o.meta = rt }
}

// New returns the host for ref, "oci://registry/prefix".
func New(ref string, local *hosts.Local, opts ...Option) (*OCI, error) {
	if local.Type() != typ {
		return nil, fmt.Errorf("oci host needs a %q store, got %q", typ, local.Type())
	}
	repo, ok := strings.CutPrefix(ref, "oci://")
	repo = strings.Trim(repo, "/")
	if !ok || repo == "" {
		return nil, fmt.Errorf("invalid host %q: need oci://registry[/prefix]", ref)
	}
	o := &OCI{
		ref:      ref,
		repo:     repo,
		local:    local,
		tracker:  progress.Nop,
		keychain: authn.DefaultKeychain,
		meta:     http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}
	if _, err := name.NewRepository(repo+"/probe", o.nameOpts...); err != nil {
		return nil, fmt.Errorf("invalid host %q: %w", ref, err)
	}
	return o, nil
}

// Factory adapts New for hosts.Registry.
func Factory(local *hosts.Local, opts ...Option) hosts.Factory {
	return func(ref string) (installer.Host, error) {
		return New(ref, local, opts...)
	}
}

func (o *OCI) Ref() string { return o.ref }

func (o *OCI) remoteOpts(ctx context.Context, rt http.RoundTripper) []remote.Option {
	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(o.keychain),
		remote.WithPlatform(v1.Platform{Architecture: runtime.GOARCH, OS: runtime.GOOS}),
	}
	if rt != nil {
		opts = append(opts, remote.WithTransport(rt))
	}
	return opts
}

// ResolveDescriptor reads the manifest of name:version. The descriptor
// pins the manifest digest so FetchAndInstall gets the same content.
func (o *OCI) ResolveDescriptor(ctx context.Context, pkg, version string) (installer.Descriptor, error) {
	tag := version
	if tag == "" {
		tag = defaultTag
	}
	ref, err := name.NewTag(o.repo+"/"+pkg+":"+tag, o.nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid package %s@%s: %w", pkg, version, err)
	}
	img, err := remote.Image(ref, o.remoteOpts(ctx, o.meta)...)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", ref, hosts.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch manifest %s: %w", ref, err)
	}
	manifest, err := img.Manifest()
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", ref, err)
	}
	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("manifest digest %s: %w", ref, err)
	}

	var size int64
	for _, l := range manifest.Layers {
		size += l.Size
	}
	effort := hosts.EffortFromSize(size)
	if raw := manifest.Annotations[AnnotationEffort]; raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%s: invalid %s %q", ref, AnnotationEffort, raw)
		}
		effort = v
	}
	requires, err := hosts.ParseRequires(manifest.Annotations[AnnotationRequires])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return &hosts.Descriptor{
		Ref:      installer.PackageRef{Name: pkg, Version: tag, Host: o.ref},
		Effort:   effort,
		Requires: requires,
		Digest:   hosts.NewDigest(digest.Hex),
		Size:     size,
		Source:   ref.Context().Digest(digest.String()).String(),
	}, nil
}

func (o *OCI) Present(ctx context.Context, desc installer.Descriptor) bool {
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return false
	}
	return o.local.Present(ctx, pd)
}

func (o *OCI) Install(ctx context.Context, desc installer.Descriptor) error {
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return err
	}
	return o.local.Install(ctx, pd)
}

func (o *OCI) CurrentProgress(desc installer.Descriptor) float64 {
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return 0
	}
	return o.local.Progress(pd)
}
