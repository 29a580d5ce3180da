package installer

import (
	"context"
	"math"
	"slices"
	"testing"
	"time"
)

func drain(t *testing.T, g *gate) {
	t.Helper()
	select {
	case <-g.exited:
	case <-time.After(waitTimeout):
		t.Fatal("dispatcher did not exit")
	}
}

func TestGatePackageProgressRules(t *testing.T) {
	rec := newRecorder()
	g := newGate(context.Background(), rec)
	pp := newPendingPackage(ref("A"))

	g.packageProgress(pp, 0.5) // before start: dropped
	g.packageStarted(pp)
	g.packageStarted(pp)
	for _, r := range []float64{0.2, 0.1, math.NaN(), 0.2, 0.6, 1, 3} {
		g.packageProgress(pp, r)
	}
	g.packageFinished(pp, true)
	g.packageFinished(pp, false)
	g.packageProgress(pp, 0.9) // after finish: dropped
	g.downloadFinished(true, false)
	drain(t, g)

	want := []string{
		"download-started",
		"started A",
		"progress A 0",
		"progress A 1",
		"finished A true",
		"download-finished true",
	}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := rec.pkgProgress["A"]; !slices.Equal(got, []float64{0, 0.2, 0.6, 1}) {
		t.Errorf("progress = %v, want [0 0.2 0.6 1]", got)
	}
}

func TestGateDownloadProgressNonDecreasing(t *testing.T) {
	rec := newRecorder()
	g := newGate(context.Background(), rec)

	for _, r := range []float64{0, 0, 0.3, 0.2, 0.5, -4} {
		g.downloadProgress(r)
	}
	g.downloadFinished(false, false)
	g.downloadFinished(true, false)
	g.downloadProgress(0.9)
	drain(t, g)

	if got := rec.overall; !slices.Equal(got, []float64{0, 0.3, 0.5, 1}) {
		t.Errorf("overall = %v, want [0 0.3 0.5 1]", got)
	}
	if got := rec.snapshot(); !slices.Equal(got, []string{"download-finished false"}) {
		t.Errorf("events = %v", got)
	}
}

func TestGateReservesFullProgressForFinish(t *testing.T) {
	rec := newRecorder()
	g := newGate(context.Background(), rec)

	g.downloadProgress(1)
	g.downloadProgress(2)
	g.downloadFinished(true, false)
	drain(t, g)

	want := []float64{math.Nextafter(1, 0), 1}
	if got := rec.overall; !slices.Equal(got, want) {
		t.Errorf("overall = %v, want %v", got, want)
	}
}

func TestGateRecordsFinishDelivery(t *testing.T) {
	g := newGate(context.Background(), newRecorder())
	g.downloadFinished(true, false)
	drain(t, g)
	if !g.delivered() {
		t.Error("delivered() = false after DownloadFinished")
	}

	release := make(chan struct{})
	g = newGate(context.Background(), ObserverFuncs{OnDownloadStarted: func() { <-release }})
	g.packageStarted(newPendingPackage(ref("A")))
	g.downloadFinished(true, false)
	g.destroy()
	close(release)
	drain(t, g)
	if g.delivered() {
		t.Error("delivered() = true for a dropped DownloadFinished")
	}
}

func TestGateDirectDelivery(t *testing.T) {
	rec := newRecorder()
	g := newGate(context.Background(), rec)

	g.downloadFinished(true, true)
	if got := rec.snapshot(); !slices.Equal(got, []string{"download-finished true"}) {
		t.Errorf("events = %v", got)
	}
	drain(t, g)
	if !g.delivered() {
		t.Error("delivered() = false after direct DownloadFinished")
	}
}

func TestGateDestroyDropsQueued(t *testing.T) {
	release := make(chan struct{})
	var got []string
	obs := ObserverFuncs{
		OnDownloadStarted: func() { <-release },
		OnPackageStarted:  func(r PackageRef) { got = append(got, r.Name) },
	}
	g := newGate(context.Background(), obs)
	pp := newPendingPackage(ref("A"))

	g.packageStarted(pp)
	g.destroy()
	close(release)
	drain(t, g)

	g.packageFinished(pp, true)
	if len(got) != 0 {
		t.Errorf("delivered after destroy: %v", got)
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0: 0, 0.25: 0.25, 1: 1, 7: 1} {
		if got := clampRatio(in); got != want {
			t.Errorf("clampRatio(%v) = %v, want %v", in, got, want)
		}
	}
	if got := clampRatio(math.NaN()); got != 0 {
		t.Errorf("clampRatio(NaN) = %v, want 0", got)
	}
}

func TestEventKindString(t *testing.T) {
	if got := eventPackageFinished.String(); got != "PackageFinished" {
		t.Errorf("String() = %q", got)
	}
	if got := eventKind(99).String(); got != "unknown" {
		t.Errorf("String() = %q", got)
	}
}
