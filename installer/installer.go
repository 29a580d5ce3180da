package installer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/projecteru2/core/log"
)

// Installer downloads and installs a set of packages together with every
// dependency their descriptors declare, reporting through an Observer.
//
// Usage: AddPackage one or more times, then DonePackages. The run proceeds
// on background workers; Wait blocks until the final callback was delivered.
type Installer struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	hosts    HostResolver
	rt       http.RoundTripper
	interval time.Duration
	worker   *worker
	gate     *gate

	// mu guards everything below. It is only held for in-memory list work,
	// never across a Host call or an observer call.
	mu             sync.Mutex
	state          State
	destroyed      bool
	packages       []*pendingPackage
	known          map[PackageRef]*pendingPackage
	needDesc       []*pendingPackage
	needDownload   []*pendingPackage
	resolving      int
	downloading    *pendingPackage
	descActive     bool
	downloadActive bool
	stopSampler    context.CancelFunc
	success        bool

	destroyOnce sync.Once
}

// New creates an Installer and starts its workers and dispatcher.
func New(opts ...Option) *Installer {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	i := &Installer{
		id:       o.newID(),
		ctx:      ctx,
		cancel:   cancel,
		hosts:    o.hosts,
		rt:       o.rt,
		interval: o.interval,
		known:    make(map[PackageRef]*pendingPackage),
	}
	i.worker = newWorker(ctx, o.workers)
	i.gate = newGate(ctx, o.observer)
	log.WithFunc("installer.New").Infof(ctx, "installer %s ready, workers: %d", i.id, o.workers)
	return i
}

// ID returns the unique id of this run.
func (i *Installer) ID() string { return i.id }

// State returns the current lifecycle state.
func (i *Installer) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// AddPackage queues a package for installation. Adding a package that is
// already known is a no-op. It never blocks on I/O.
func (i *Installer) AddPackage(name, version, hostRef string) error {
	if name == "" {
		return fmt.Errorf("add package: empty name")
	}
	ref := PackageRef{Name: name, Version: version, Host: hostRef}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return ErrDestroyed
	}
	if i.state != StateInitial {
		return fmt.Errorf("add package %s: %w", ref, ErrAlreadyDone)
	}
	i.enqueueLocked(ref)
	return nil
}

// DonePackages closes the package list. Later calls are no-ops. With no
// packages at all, DownloadFinished(true) is delivered before it returns.
func (i *Installer) DonePackages() {
	i.mu.Lock()
	if i.destroyed || i.state != StateInitial {
		i.mu.Unlock()
		return
	}
	i.state = StateReady
	empty := len(i.packages) == 0
	t := i.advance()
	i.mu.Unlock()

	log.WithFunc("installer.DonePackages").Infof(i.ctx, "installer %s: package list closed", i.id)
	if empty && t == transitionDone {
		i.gate.downloadFinished(true, true)
		i.worker.close()
		return
	}
	i.apply(t)
}

// Wait blocks until the dispatcher has exited and returns the overall
// result. It returns ErrDestroyed unless DownloadFinished was delivered.
func (i *Installer) Wait(ctx context.Context) (bool, error) {
	select {
	case <-i.gate.exited:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	if !i.gate.delivered() {
		return false, ErrDestroyed
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.success, nil
}

// Destroy stops all background work. No observer call starts after it
// returns, though one already dispatched may still be running; it is not
// waited for so that Destroy can be called from inside a callback. Host
// calls in flight see a cancelled context and their results are discarded.
// Safe to call repeatedly.
func (i *Installer) Destroy() {
	i.destroyOnce.Do(func() {
		// Lock order: package lock, then gate lock.
		i.mu.Lock()
		i.destroyed = true
		i.gate.destroy()
		stop := i.stopSampler
		i.stopSampler = nil
		i.mu.Unlock()

		i.cancel()
		i.worker.close()
		if stop != nil {
			stop()
		}
		log.WithFunc("installer.Destroy").Infof(i.ctx, "installer %s destroyed", i.id)
	})
}

// enqueueLocked registers ref unless known and schedules the descriptor
// task if it is idle. Must be called with i.mu held.
func (i *Installer) enqueueLocked(ref PackageRef) {
	if _, ok := i.known[ref]; ok {
		return
	}
	pp := newPendingPackage(ref)
	i.known[ref] = pp
	i.packages = append(i.packages, pp)
	i.needDesc = append(i.needDesc, pp)
	if !i.descActive {
		i.descActive = i.worker.post(i.descriptorTask)
	}
}

// apply runs the out-of-lock side of a transition.
func (i *Installer) apply(t transition) {
	logger := log.WithFunc("installer.apply")
	switch t {
	case transitionStarted:
		logger.Infof(i.ctx, "installer %s: all descriptors resolved, downloading", i.id)
		i.startSampler()
		i.worker.post(i.downloadTask)
	case transitionDone:
		i.mu.Lock()
		success := i.success
		stop := i.stopSampler
		i.stopSampler = nil
		i.mu.Unlock()
		if stop != nil {
			stop()
		}
		logger.Infof(i.ctx, "installer %s: finished, success: %v", i.id, success)
		i.gate.downloadFinished(success, false)
		i.worker.close()
	}
}

// finish posts PackageFinished for a package already marked done and then
// checks whether the run is complete.
func (i *Installer) finish(pp *pendingPackage, success bool) {
	i.gate.packageFinished(pp, success)

	i.mu.Lock()
	pp.notified = true
	t := i.advance()
	i.mu.Unlock()
	i.apply(t)
}
