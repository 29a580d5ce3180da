package dist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/installer"
	"github.com/panda3d/panda3d-sub012/progress"
	distProgress "github.com/panda3d/panda3d-sub012/progress/dist"
)

const typ = "dist"

// Schemes are the ref schemes served by distribution hosts.
var Schemes = []string{"http", "https", "file", "s3"}

var _ installer.Host = (*Dist)(nil)

// Dist is a distribution host: a static tree holding contents.toml, one
// package.toml per package version and the archives they point at. The
// tree may be served over HTTP(S), from a local directory or from S3.
type Dist struct {
	ref     string
	local   *hosts.Local
	fetch   fetcher
	meta    http.RoundTripper
	tracker progress.Tracker

	mu       sync.Mutex
	contents *contentsFile
}

// Option configures a Dist.
type Option func(*Dist)

// WithTracker receives distProgress.Event updates for every fetch.
func WithTracker(t progress.Tracker) Option {
	return func(d *Dist) { d.tracker = t }
}

// WithMetadataTransport sets the transport used for contents.toml and
// package.toml. Archives use the transport handed to FetchAndInstall.
func WithMetadataTransport(rt http.RoundTripper) Option {
	return func(d *Dist) { d.meta = rt }
}

// WithS3Client replaces the client built from the default AWS config.
func WithS3Client(c S3API) Option {
	return func(d *Dist) {
		if f, ok := d.fetch.(*s3Fetcher); ok {
			f.client = c
		}
	}
}

// New returns the host for ref. Nothing is fetched until the first
// ResolveDescriptor.
func New(ref string, local *hosts.Local, opts ...Option) (*Dist, error) {
	if local.Type() != typ {
		return nil, fmt.Errorf("dist host needs a %q store, got %q", typ, local.Type())
	}
	f, err := newFetcher(ref, local.Conf().HTTPTimeout)
	if err != nil {
		return nil, err
	}
	d := &Dist{
		ref:     ref,
		local:   local,
		fetch:   f,
		meta:    http.DefaultTransport,
		tracker: progress.Nop,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Factory adapts New for hosts.Registry.
func Factory(local *hosts.Local, opts ...Option) hosts.Factory {
	return func(ref string) (installer.Host, error) {
		return New(ref, local, opts...)
	}
}

func (d *Dist) Ref() string { return d.ref }

// ResolveDescriptor looks name up in contents.toml and reads its
// package.toml. An empty version picks the last listed version.
func (d *Dist) ResolveDescriptor(ctx context.Context, name, version string) (installer.Descriptor, error) {
	contents, err := d.refresh(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := contents.find(name, version)
	if !ok {
		return nil, fmt.Errorf("%s@%s on %s: %w", name, version, d.ref, hosts.ErrNotFound)
	}
	data, err := d.read(ctx, entry.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("read descriptor of %s@%s: %w", entry.Name, entry.Version, err)
	}
	pkg, err := parsePackage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.Descriptor, err)
	}
	return pkg.descriptor(d.ref, entry)
}

// refresh loads contents.toml once. A failed load is not cached.
func (d *Dist) refresh(ctx context.Context) (*contentsFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.contents != nil {
		return d.contents, nil
	}
	data, err := d.read(ctx, contentsName)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", d.ref, err)
	}
	contents, err := parseContents(data)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", d.ref, err)
	}
	log.WithFunc("dist.refresh").Infof(ctx, "%s lists %d packages", d.ref, len(contents.Packages))
	d.contents = contents
	return contents, nil
}

func (d *Dist) Present(ctx context.Context, desc installer.Descriptor) bool {
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return false
	}
	return d.local.Present(ctx, pd)
}

// FetchAndInstall downloads the archive, verifies it, unpacks it and
// commits the content uninstalled; Install marks it installed.
func (d *Dist) FetchAndInstall(ctx context.Context, desc installer.Descriptor, rt http.RoundTripper) error {
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return err
	}
	logger := log.WithFunc("dist.FetchAndInstall")
	name := pd.Ref.String()

	format, err := detectFormat(pd.Source)
	if err != nil {
		return err
	}
	meter := d.local.Track(pd)
	defer d.local.Untrack(pd)

	staging, err := d.local.StagingDir("fetch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging) //nolint:errcheck

	archive, err := os.Create(filepath.Join(staging, "archive"+format.ext())) //nolint:gosec // staging path
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	started := time.Now()
	sum, err := d.download(ctx, rt, pd, archive, meter)
	if err != nil {
		return err
	}
	logger.Infof(ctx, "downloaded %s in %s (sha256:%s)", name, time.Since(started).Round(time.Millisecond), sum.Short())

	d.tracker.OnEvent(distProgress.Event{Phase: distProgress.PhaseVerify, Package: name})
	if sum != pd.Digest {
		return fmt.Errorf("%s: got %s, want %s: %w", name, sum, pd.Digest, hosts.ErrChecksum)
	}

	d.tracker.OnEvent(distProgress.Event{Phase: distProgress.PhaseExtract, Package: name})
	content := filepath.Join(staging, "content")
	if err := extract(ctx, format, archive.Name(), content); err != nil {
		return fmt.Errorf("extract %s: %w", name, err)
	}
	if err := os.Remove(archive.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf(ctx, "remove archive of %s: %v", name, err)
	}

	d.tracker.OnEvent(distProgress.Event{Phase: distProgress.PhaseCommit, Package: name})
	if err := d.local.Commit(ctx, pd, pd.Digest, content); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	d.tracker.OnEvent(distProgress.Event{Phase: distProgress.PhaseDone, Package: name})
	return nil
}

func (d *Dist) Install(ctx context.Context, desc installer.Descriptor) error {
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return err
	}
	return d.local.Install(ctx, pd)
}

func (d *Dist) CurrentProgress(desc installer.Descriptor) float64 {
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return 0
	}
	return d.local.Progress(pd)
}
