package installer

import (
	"context"
	"time"
)

// startSampler launches the DownloadProgress ticker. It is best effort: a
// missed tick only affects how smooth the reported progress is.
func (i *Installer) startSampler() {
	i.mu.Lock()
	if i.destroyed || i.state != StateStarted || i.stopSampler != nil {
		i.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(i.ctx)
	i.stopSampler = cancel
	i.mu.Unlock()

	go func() {
		ticker := time.NewTicker(i.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i.sampleProgress()
			}
		}
	}()
}

type progressSample struct {
	pp      *pendingPackage
	effort  float64
	done    bool
	current bool
}

// sampleProgress reports sum(effort*ratio)/sum(effort) over every known
// package: terminal packages count as complete, the one downloading uses
// its host's ratio, everything else counts as zero.
func (i *Installer) sampleProgress() {
	i.mu.Lock()
	samples := make([]progressSample, 0, len(i.packages))
	for _, pp := range i.packages {
		samples = append(samples, progressSample{
			pp:      pp,
			effort:  pp.effort,
			done:    pp.done,
			current: pp == i.downloading,
		})
	}
	i.mu.Unlock()

	var total, done float64
	for _, s := range samples {
		total += s.effort
		switch {
		case s.done:
			done += s.effort
		case s.current:
			ratio := clampRatio(s.pp.host.CurrentProgress(s.pp.desc))
			done += s.effort * ratio
			i.gate.packageProgress(s.pp, ratio)
		}
	}
	ratio := 1.0
	if total > 0 {
		ratio = done / total
	}
	i.gate.downloadProgress(ratio)
}
