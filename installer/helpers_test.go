package installer

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/panda3d/panda3d-sub012/utils"
)

const waitTimeout = 5 * time.Second

type fakePkg struct {
	effort     float64
	deps       []PackageRef
	present    bool
	fetchErr   error
	installErr error
	// descBlock and block hold ResolveDescriptor / FetchAndInstall until closed.
	descBlock chan struct{}
	block     chan struct{}
	// progress is returned by successive CurrentProgress calls; the last
	// value repeats. progressSeen is closed once every value was handed out.
	progress     []float64
	progressSeen chan struct{}
	calls        int
}

type fakeDesc struct {
	name    string
	version string
	effort  float64
	deps    []PackageRef
}

func (d *fakeDesc) Name() string               { return d.name }
func (d *fakeDesc) Version() string            { return d.version }
func (d *fakeDesc) DownloadEffort() float64    { return d.effort }
func (d *fakeDesc) Dependencies() []PackageRef { return d.deps }

type fakeHost struct {
	ref string

	mu        sync.Mutex
	pkgs      map[string]*fakePkg
	resolved  []string
	fetched   []string
	installed []string
}

func newFakeHost(ref string) *fakeHost {
	return &fakeHost{ref: ref, pkgs: make(map[string]*fakePkg)}
}

func (h *fakeHost) add(name string, p *fakePkg) *fakeHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pkgs[name] = p
	return h
}

func (h *fakeHost) pkg(name string) *fakePkg {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pkgs[name]
}

func (h *fakeHost) Ref() string { return h.ref }

func (h *fakeHost) ResolveDescriptor(ctx context.Context, name, version string) (Descriptor, error) {
	h.mu.Lock()
	h.resolved = append(h.resolved, name)
	p, ok := h.pkgs[name]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("package %s not found on %s", name, h.ref)
	}
	if p.descBlock != nil {
		select {
		case <-p.descBlock:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &fakeDesc{name: name, version: version, effort: p.effort, deps: p.deps}, nil
}

func (h *fakeHost) Present(_ context.Context, desc Descriptor) bool {
	return h.pkg(desc.Name()).present
}

func (h *fakeHost) FetchAndInstall(ctx context.Context, desc Descriptor, _ http.RoundTripper) error {
	h.mu.Lock()
	h.fetched = append(h.fetched, desc.Name())
	p := h.pkgs[desc.Name()]
	h.mu.Unlock()
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.fetchErr
}

func (h *fakeHost) Install(_ context.Context, desc Descriptor) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.installed = append(h.installed, desc.Name())
	return h.pkgs[desc.Name()].installErr
}

func (h *fakeHost) CurrentProgress(desc Descriptor) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pkgs[desc.Name()]
	if len(p.progress) == 0 {
		return 0
	}
	idx := min(p.calls, len(p.progress)-1)
	p.calls++
	if p.calls == len(p.progress) && p.progressSeen != nil {
		close(p.progressSeen)
	}
	return p.progress[idx]
}

func (h *fakeHost) list(which *[]string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(*which)
}

// recorder is an Observer that keeps a transcript. Intermediate package
// progress only goes to pkgProgress; 0 and 1 also appear in events.
type recorder struct {
	mu          sync.Mutex
	events      []string
	pkgProgress map[string][]float64
	overall     []float64
	hook        func(ev string)
}

func newRecorder() *recorder {
	return &recorder{pkgProgress: make(map[string][]float64)}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (r *recorder) DownloadStarted() { r.add("download-started") }

func (r *recorder) PackageStarted(ref PackageRef) { r.add("started " + ref.Name) }

func (r *recorder) PackageProgress(ref PackageRef, ratio float64) {
	r.mu.Lock()
	r.pkgProgress[ref.Name] = append(r.pkgProgress[ref.Name], ratio)
	r.mu.Unlock()
	if ratio == 0 || ratio == 1 {
		r.add(fmt.Sprintf("progress %s %g", ref.Name, ratio))
	}
}

func (r *recorder) DownloadProgress(ratio float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overall = append(r.overall, ratio)
}

func (r *recorder) PackageFinished(ref PackageRef, success bool) {
	r.add(fmt.Sprintf("finished %s %v", ref.Name, success))
}

func (r *recorder) DownloadFinished(success bool) {
	r.add(fmt.Sprintf("download-finished %v", success))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) has(ev string) bool {
	return slices.Contains(r.snapshot(), ev)
}

// waitEvent polls until ev shows up in the transcript.
func (r *recorder) waitEvent(t *testing.T, ev string) {
	t.Helper()
	err := utils.WaitFor(context.Background(), waitTimeout, time.Millisecond, func() (bool, error) {
		return r.has(ev), nil
	})
	if err != nil {
		t.Fatalf("waiting for %q: %v (events: %v)", ev, err, r.snapshot())
	}
}

func newTestInstaller(t *testing.T, obs Observer, hosts map[string]Host, opts ...Option) *Installer {
	t.Helper()
	resolver := HostResolverFunc(func(ref string) (Host, error) {
		if h, ok := hosts[ref]; ok {
			return h, nil
		}
		return nil, ErrUnknownHost
	})
	base := []Option{
		WithObserver(obs),
		WithHosts(resolver),
		WithProgressInterval(time.Millisecond),
		WithIDSource(func() string { return "test-run" }),
	}
	inst := New(append(base, opts...)...)
	t.Cleanup(inst.Destroy)
	return inst
}

func mustWait(t *testing.T, inst *Installer) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	ok, err := inst.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return ok
}

func mustAdd(t *testing.T, inst *Installer, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := inst.AddPackage(name, "1.0", ""); err != nil {
			t.Fatalf("AddPackage(%s) error = %v", name, err)
		}
	}
}

func indexOf(events []string, ev string) int {
	return slices.Index(events, ev)
}

func countPrefix(events []string, prefix string) int {
	var n int
	for _, ev := range events {
		if strings.HasPrefix(ev, prefix) {
			n++
		}
	}
	return n
}

func ref(name string) PackageRef {
	return PackageRef{Name: name, Version: "1.0"}
}
