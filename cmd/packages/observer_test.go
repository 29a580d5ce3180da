package packages

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/panda3d/panda3d-sub012/installer"
)

func TestRenderLine(t *testing.T) {
	line := renderLine(0.5, map[string]float64{"zlib@1": 0.25, "libpng@1.6": 1}, 200)
	want := "[" + strings.Repeat("=", 15) + ">" + strings.Repeat(" ", 14) + "]  50.0%  libpng@1.6 100%  zlib@1 25%"
	if line != want {
		t.Errorf("renderLine() =\n%q\nwant\n%q", line, want)
	}
	if full := renderLine(1.5, nil, 200); !strings.HasPrefix(full, "["+strings.Repeat("=", barWidth)+"] 100.0%") {
		t.Errorf("clamped line = %q", full)
	}
	if cut := renderLine(0, map[string]float64{"averyveryverylongpackagename": 0}, 40); len(cut) != 39 {
		t.Errorf("len = %d, want 39", len(cut))
	}
}

func TestObserverNonTTY(t *testing.T) {
	var buf bytes.Buffer
	o := newObserver(context.Background(), &buf)
	a := installer.PackageRef{Name: "zlib", Version: "1.3"}
	b := installer.PackageRef{Name: "libpng"}

	o.DownloadStarted()
	o.PackageStarted(a)
	o.PackageStarted(b)
	o.PackageProgress(a, 0.5)
	o.DownloadProgress(0.3)
	o.PackageFinished(a, true)
	o.PackageFinished(b, false)
	o.DownloadFinished(false)

	if buf.Len() != 0 {
		t.Errorf("non-terminal output drew a progress line: %q", buf.String())
	}
	if got := o.Failed(); !slices.Equal(got, []string{"libpng"}) {
		t.Errorf("Failed() = %v", got)
	}
	if len(o.active) != 0 {
		t.Errorf("active = %v after finish", o.active)
	}
}

func TestObserverTTYDrawing(t *testing.T) {
	var buf bytes.Buffer
	o := newObserver(context.Background(), &buf)
	o.tty = true
	ref := installer.PackageRef{Name: "zlib"}

	o.PackageStarted(ref)
	o.DownloadProgress(0.5)
	o.PackageFinished(ref, true)
	o.DownloadFinished(true)

	out := buf.String()
	if !strings.Contains(out, "\r[") || !strings.Contains(out, " 50.0%") {
		t.Errorf("missing progress line: %q", out)
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Errorf("line not cleared at the end: %q", out)
	}
}
