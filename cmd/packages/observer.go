package packages

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/projecteru2/core/log"
	"golang.org/x/term"

	"github.com/panda3d/panda3d-sub012/installer"
)

const (
	barWidth     = 30
	defaultWidth = 80
)

var _ installer.Observer = (*observer)(nil)

// observer logs installer events and, when out is a terminal, keeps one
// in-place progress line.
type observer struct {
	ctx context.Context
	out io.Writer
	tty bool
	fd  int

	mu      sync.Mutex
	overall float64
	active  map[string]float64
	failed  []string
	drawn   bool
}

func newObserver(ctx context.Context, out io.Writer) *observer {
	o := &observer{ctx: ctx, out: out, active: make(map[string]float64)}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		o.tty, o.fd = true, int(f.Fd()) //nolint:gosec
	}
	return o
}

func label(ref installer.PackageRef) string {
	if ref.Version == "" {
		return ref.Name
	}
	return ref.Name + "@" + ref.Version
}

func (o *observer) DownloadStarted() {
	log.WithFunc("cmd.install").Infof(o.ctx, "download started")
}

func (o *observer) PackageStarted(ref installer.PackageRef) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked()
	log.WithFunc("cmd.install").Infof(o.ctx, "fetching %s", ref)
	o.active[label(ref)] = 0
	o.drawLocked()
}

func (o *observer) PackageProgress(ref installer.PackageRef, ratio float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[label(ref)]; ok {
		o.active[label(ref)] = ratio
	}
}

func (o *observer) DownloadProgress(ratio float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overall = ratio
	o.drawLocked()
}

func (o *observer) PackageFinished(ref installer.PackageRef, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked()
	delete(o.active, label(ref))
	logger := log.WithFunc("cmd.install")
	if success {
		logger.Infof(o.ctx, "installed %s", ref)
	} else {
		o.failed = append(o.failed, label(ref))
		logger.Warnf(o.ctx, "failed %s", ref)
	}
	o.drawLocked()
}

func (o *observer) DownloadFinished(success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked()
	logger := log.WithFunc("cmd.install")
	if success {
		logger.Infof(o.ctx, "all packages installed")
		return
	}
	logger.Warnf(o.ctx, "%d package(s) failed", len(o.failed))
}

// Failed lists packages reported as failed, in report order.
func (o *observer) Failed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.failed)
}

func (o *observer) width() int {
	if w, _, err := term.GetSize(o.fd); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

func (o *observer) drawLocked() {
	if !o.tty {
		return
	}
	_, _ = fmt.Fprint(o.out, "\r"+renderLine(o.overall, o.active, o.width()))
	o.drawn = true
}

func (o *observer) clearLocked() {
	if !o.tty || !o.drawn {
		return
	}
	_, _ = fmt.Fprint(o.out, "\r\033[K")
	o.drawn = false
}

// renderLine draws "[=====>    ]  42.0%  a 10% b 80%" cut to width.
func renderLine(overall float64, active map[string]float64, width int) string {
	overall = min(max(overall, 0), 1)
	filled := int(overall * barWidth)
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	line := fmt.Sprintf("[%s] %5.1f%%", bar, overall*100)

	names := make([]string, 0, len(active))
	for name := range active {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		line += fmt.Sprintf("  %s %.0f%%", name, active[name]*100)
	}
	if width > 1 && len(line) >= width {
		line = line[:width-1]
	}
	return line
}
