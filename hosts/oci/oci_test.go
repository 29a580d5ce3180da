package oci

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	stdlog "log"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/panda3d/panda3d-sub012/config"
	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/installer"
	"github.com/panda3d/panda3d-sub012/progress"
	ociProgress "github.com/panda3d/panda3d-sub012/progress/oci"
)

type testRegistry struct {
	host string // host:port
	ref  string // oci://host:port/pkgs
}

func newRegistry(t *testing.T) *testRegistry {
	t.Helper()
	srv := httptest.NewServer(registry.New(registry.Logger(stdlog.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return &testRegistry{host: u.Host, ref: "oci://" + u.Host + "/pkgs"}
}

func (r *testRegistry) push(t *testing.T, pkg, tag string, annotations map[string]string, layers ...v1.Layer) {
	t.Helper()
	img, err := mutate.AppendLayers(empty.Image, layers...)
	if err != nil {
		t.Fatal(err)
	}
	if annotations != nil {
		img = mutate.Annotations(img, annotations).(v1.Image)
	}
	ref, err := name.NewTag(r.host+"/pkgs/"+pkg+":"+tag, name.Insecure)
	if err != nil {
		t.Fatal(err)
	}
	if err := remote.Write(ref, img); err != nil {
		t.Fatalf("push %s: %v", ref, err)
	}
}

func newLayer(t *testing.T, files map[string]string) v1.Layer {
	t.Helper()
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	slices.Sort(names)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, n := range names {
		body := files[n]
		if err := tw.WriteHeader(&tar.Header{Name: n, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	l, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func newLocal(t *testing.T) *hosts.Local {
	t.Helper()
	conf := config.DefaultConfig()
	conf.RootDir = t.TempDir()
	conf.PoolSize = 2
	l, err := hosts.NewLocal(context.Background(), conf, typ)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func newHost(t *testing.T, r *testRegistry, local *hosts.Local, opts ...Option) *OCI {
	t.Helper()
	opts = append([]Option{WithInsecure(), WithKeychain(authn.NewMultiKeychain())}, opts...)
	h, err := New(r.ref, local, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestResolveDescriptor(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	reg.push(t, "libpng", "1.6.43", map[string]string{
		AnnotationRequires: "zlib@1.3.1,openssl@3@oci://elsewhere/pkgs",
		AnnotationEffort:   "2.5",
	}, newLayer(t, map[string]string{"include/png.h": "png"}))
	h := newHost(t, reg, newLocal(t))

	desc, err := h.ResolveDescriptor(ctx, "libpng", "1.6.43")
	if err != nil {
		t.Fatalf("ResolveDescriptor() error = %v", err)
	}
	want := []installer.PackageRef{
		{Name: "zlib", Version: "1.3.1"},
		{Name: "openssl", Version: "3", Host: "oci://elsewhere/pkgs"},
	}
	if !slices.Equal(desc.Dependencies(), want) {
		t.Errorf("Dependencies() = %v, want %v", desc.Dependencies(), want)
	}
	if desc.DownloadEffort() != 2.5 {
		t.Errorf("DownloadEffort() = %v", desc.DownloadEffort())
	}
	pd, _ := hosts.AsDescriptor(desc)
	if !strings.Contains(pd.Source, "/pkgs/libpng@sha256:"+pd.Digest.Hex()) || pd.Ref.Host != reg.ref {
		t.Errorf("descriptor = %+v", pd)
	}

	if _, err := h.ResolveDescriptor(ctx, "missing", "1"); !errors.Is(err, hosts.ErrNotFound) {
		t.Errorf("missing package error = %v", err)
	}
	if _, err := h.ResolveDescriptor(ctx, "libpng", ""); !errors.Is(err, hosts.ErrNotFound) {
		t.Errorf("missing latest tag error = %v", err)
	}
}

func TestResolveDefaultsAndBadAnnotations(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	reg.push(t, "zlib", "latest", nil, newLayer(t, map[string]string{"a": "1"}))
	reg.push(t, "bad", "1", map[string]string{AnnotationEffort: "-3"}, newLayer(t, map[string]string{"a": "1"}))
	h := newHost(t, reg, newLocal(t))

	desc, err := h.ResolveDescriptor(ctx, "zlib", "")
	if err != nil {
		t.Fatal(err)
	}
	if desc.Version() != "latest" || desc.DownloadEffort() != 1 || len(desc.Dependencies()) != 0 {
		t.Errorf("descriptor = %+v", desc)
	}
	if _, err := h.ResolveDescriptor(ctx, "bad", "1"); err == nil {
		t.Error("negative effort accepted")
	}
}

func TestFetchMergesLayers(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	reg.push(t, "tool", "1", nil,
		newLayer(t, map[string]string{
			"etc/a.conf": "a", "etc/b.conf": "old", "share/x": "x",
		}),
		newLayer(t, map[string]string{
			"etc/.wh.a.conf": "", "etc/b.conf": "new", "share/.wh..wh..opq": "", "share/y": "y",
		}),
	)

	var (
		mu     sync.Mutex
		layers []int
		last   ociProgress.Phase
	)
	tracker := progress.NewTracker(func(e ociProgress.Event) {
		mu.Lock()
		defer mu.Unlock()
		if e.Phase == ociProgress.PhaseLayer {
			layers = append(layers, e.Index)
		}
		last = e.Phase
	})
	local := newLocal(t)
	h := newHost(t, reg, local, WithTracker(tracker))

	desc, err := h.ResolveDescriptor(ctx, "tool", "1")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.FetchAndInstall(ctx, desc, nil); err != nil {
		t.Fatalf("FetchAndInstall() error = %v", err)
	}
	if err := h.Install(ctx, desc); err != nil {
		t.Fatal(err)
	}
	if !h.Present(ctx, desc) {
		t.Fatal("Present() = false after install")
	}

	pd, _ := hosts.AsDescriptor(desc)
	root := local.ContentDir(pd.Digest)
	if raw, _ := os.ReadFile(filepath.Join(root, "etc", "b.conf")); string(raw) != "new" {
		t.Errorf("etc/b.conf = %q, want upper layer", raw)
	}
	for _, gone := range []string{"etc/a.conf", "share/x", "etc/.wh.a.conf", "share/.wh..wh..opq"} {
		if _, err := os.Lstat(filepath.Join(root, gone)); !os.IsNotExist(err) {
			t.Errorf("%s survived the merge", gone)
		}
	}
	if raw, _ := os.ReadFile(filepath.Join(root, "share", "y")); string(raw) != "y" {
		t.Errorf("share/y = %q", raw)
	}

	mu.Lock()
	defer mu.Unlock()
	slices.Sort(layers)
	if !slices.Equal(layers, []int{0, 1}) || last != ociProgress.PhaseDone {
		t.Errorf("layers = %v, last phase = %v", layers, last)
	}
}

func TestNewRejectsBadRefs(t *testing.T) {
	local := newLocal(t)
	for _, ref := range []string{"oci://", "https://registry/pkgs", "oci://UPPER CASE/x"} {
		if _, err := New(ref, local); err == nil {
			t.Errorf("New(%q) accepted", ref)
		}
	}
	conf := config.DefaultConfig()
	conf.RootDir = t.TempDir()
	dist, err := hosts.NewLocal(context.Background(), conf, "dist")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("oci://ghcr.io/pkgs", dist); err == nil {
		t.Error("New() accepted a store of another type")
	}
}

func TestMergeLayerReplacesKinds(t *testing.T) {
	dst, src := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(dst, "thing"), []byte("file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dst, "other"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "thing"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "thing", "inner"), []byte("in"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "other"), []byte("now a file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := mergeLayer(dst, &layerResult{dir: src}); err != nil {
		t.Fatal(err)
	}
	if raw, _ := os.ReadFile(filepath.Join(dst, "thing", "inner")); string(raw) != "in" {
		t.Errorf("thing/inner = %q", raw)
	}
	if raw, _ := os.ReadFile(filepath.Join(dst, "other")); string(raw) != "now a file" {
		t.Errorf("other = %q", raw)
	}
}

func TestInstallerWithOCIHost(t *testing.T) {
	reg := newRegistry(t)
	reg.push(t, "zlib", "1.3.1", nil, newLayer(t, map[string]string{"lib/libz.a": "z"}))
	reg.push(t, "libpng", "1.6.43", map[string]string{AnnotationRequires: "zlib@1.3.1"},
		newLayer(t, map[string]string{"lib/libpng.a": "p"}))

	local := newLocal(t)
	resolver := hosts.NewRegistry("")
	resolver.Handle(Factory(local, WithInsecure(), WithKeychain(authn.NewMultiKeychain())), Schemes...)

	done := make(chan bool, 1)
	inst := installer.New(
		installer.WithHosts(resolver),
		installer.WithWorkers(2),
		installer.WithProgressInterval(time.Millisecond),
		installer.WithObserver(installer.ObserverFuncs{OnDownloadFinished: func(ok bool) { done <- ok }}),
	)
	defer inst.Destroy()
	if err := inst.AddPackage("libpng", "1.6.43", reg.ref); err != nil {
		t.Fatal(err)
	}
	inst.DonePackages()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("DownloadFinished(false)")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for DownloadFinished")
	}
	pkgs, err := local.List(context.Background())
	if err != nil || len(pkgs) != 2 {
		t.Fatalf("List() = %v, %v", pkgs, err)
	}
	for _, p := range pkgs {
		if !p.Installed || p.Host != reg.ref {
			t.Errorf("package %+v", p)
		}
	}
}
