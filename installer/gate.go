package installer

import (
	"context"
	"math"
	"sync"

	"github.com/projecteru2/core/log"
)

type eventKind int

const (
	eventDownloadStarted eventKind = iota
	eventPackageStarted
	eventPackageProgress
	eventDownloadProgress
	eventPackageFinished
	eventDownloadFinished
)

func (k eventKind) String() string {
	switch k {
	case eventDownloadStarted:
		return "DownloadStarted"
	case eventPackageStarted:
		return "PackageStarted"
	case eventPackageProgress:
		return "PackageProgress"
	case eventDownloadProgress:
		return "DownloadProgress"
	case eventPackageFinished:
		return "PackageFinished"
	case eventDownloadFinished:
		return "DownloadFinished"
	default:
		return "unknown"
	}
}

type event struct {
	kind    eventKind
	ref     PackageRef
	ratio   float64
	success bool
}

// gate turns stage events into observer calls, each at most once, and
// queues them for the dispatch goroutine. Its mutex is independent of the
// package lock and is never held while the observer runs.
type gate struct {
	ctx      context.Context
	observer Observer

	mu    sync.Mutex
	cond  *sync.Cond
	queue []event

	closed          bool // destroyed: drop everything
	final           bool // DownloadFinished queued: exit once drained
	downloadStarted bool
	finishSent      bool
	finishDelivered bool // observer.DownloadFinished was called
	overall         float64
	overallReported bool

	// deliverMu serializes observer calls between the dispatcher and
	// the synchronous path in DonePackages.
	deliverMu sync.Mutex
	exited    chan struct{}
}

func newGate(ctx context.Context, observer Observer) *gate {
	g := &gate{
		ctx:      ctx,
		observer: observer,
		exited:   make(chan struct{}),
	}
	g.cond = sync.NewCond(&g.mu)
	go g.dispatch()
	return g
}

// packageStarted posts DownloadStarted (first package only), then
// PackageStarted and PackageProgress(0) once per package.
func (g *gate) packageStarted(pp *pendingPackage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || pp.startedNotified {
		return
	}
	if !g.downloadStarted {
		g.downloadStarted = true
		g.push(event{kind: eventDownloadStarted})
	}
	pp.startedNotified = true
	pp.reported = 0
	g.push(event{kind: eventPackageStarted, ref: pp.ref})
	g.push(event{kind: eventPackageProgress, ref: pp.ref})
}

// packageProgress posts only increases, and never 1: that value is reserved
// for a successful packageFinished.
func (g *gate) packageProgress(pp *pendingPackage, ratio float64) {
	ratio = clampRatio(ratio)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || !pp.startedNotified || pp.finishedNotified {
		return
	}
	if ratio >= 1 || ratio <= pp.reported {
		return
	}
	pp.reported = ratio
	g.push(event{kind: eventPackageProgress, ref: pp.ref, ratio: ratio})
}

func (g *gate) packageFinished(pp *pendingPackage, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || pp.finishedNotified {
		return
	}
	pp.finishedNotified = true
	if success {
		pp.reported = 1
		g.push(event{kind: eventPackageProgress, ref: pp.ref, ratio: 1})
	}
	g.push(event{kind: eventPackageFinished, ref: pp.ref, success: success})
}

// downloadProgress posts only increases and keeps sampled values below 1,
// which only downloadFinished reports.
func (g *gate) downloadProgress(ratio float64) {
	ratio = min(clampRatio(ratio), belowOne)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.finishSent {
		return
	}
	if g.overallReported && ratio <= g.overall {
		return
	}
	g.overall, g.overallReported = ratio, true
	g.push(event{kind: eventDownloadProgress, ratio: ratio})
}

// downloadFinished posts DownloadProgress(1) and DownloadFinished once per
// run. With direct set the events are delivered on the calling goroutine;
// the caller guarantees nothing else is queued.
func (g *gate) downloadFinished(success, direct bool) {
	g.mu.Lock()
	if g.closed || g.finishSent {
		g.mu.Unlock()
		return
	}
	g.finishSent = true
	evs := []event{
		{kind: eventDownloadProgress, ratio: 1},
		{kind: eventDownloadFinished, success: success},
	}
	if !direct {
		g.queue = append(g.queue, evs...)
		g.final = true
		g.cond.Broadcast()
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	for _, ev := range evs {
		g.deliver(ev)
	}
	g.mu.Lock()
	g.final = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// destroy drops queued and future events. Called with Installer.mu held.
func (g *gate) destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.queue = nil
	g.cond.Broadcast()
}

// push must be called with g.mu held.
func (g *gate) push(ev event) {
	g.queue = append(g.queue, ev)
	g.cond.Signal()
}

func (g *gate) dispatch() {
	defer close(g.exited)
	for {
		g.mu.Lock()
		for len(g.queue) == 0 && !g.closed && !g.final {
			g.cond.Wait()
		}
		if g.closed || len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		ev := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		g.deliver(ev)
	}
}

func (g *gate) deliver(ev event) {
	g.deliverMu.Lock()
	defer g.deliverMu.Unlock()

	// A call that passes this check under g.mu is ordered before any
	// destroy; it may still be running when Destroy returns.
	g.mu.Lock()
	closed := g.closed
	if !closed && ev.kind == eventDownloadFinished {
		g.finishDelivered = true
	}
	g.mu.Unlock()
	if closed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithFunc("installer.gate").Warnf(g.ctx, "observer %s(%s) panicked: %v", ev.kind, ev.ref, r)
		}
	}()
	switch ev.kind {
	case eventDownloadStarted:
		g.observer.DownloadStarted()
	case eventPackageStarted:
		g.observer.PackageStarted(ev.ref)
	case eventPackageProgress:
		g.observer.PackageProgress(ev.ref, ev.ratio)
	case eventDownloadProgress:
		g.observer.DownloadProgress(ev.ratio)
	case eventPackageFinished:
		g.observer.PackageFinished(ev.ref, ev.success)
	case eventDownloadFinished:
		g.observer.DownloadFinished(ev.success)
	}
}

var belowOne = math.Nextafter(1, 0)

func clampRatio(r float64) float64 {
	switch {
	case r != r || r < 0: // NaN or negative
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
