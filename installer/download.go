package installer

import (
	"context"

	"github.com/projecteru2/core/log"
)

// downloadTask fetches and installs one package per iteration.
func (i *Installer) downloadTask(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	i.mu.Lock()
	if len(i.needDownload) == 0 {
		i.downloadActive = false
		i.mu.Unlock()
		return false
	}
	pp := i.needDownload[0]
	i.needDownload = i.needDownload[1:]
	i.downloading = pp
	i.mu.Unlock()

	i.gate.packageStarted(pp)
	success := i.fetch(ctx, pp)
	if ctx.Err() != nil {
		return false
	}

	i.mu.Lock()
	pp.done, pp.success = true, success
	if i.downloading == pp {
		i.downloading = nil
	}
	i.mu.Unlock()
	i.finish(pp, success)
	return true
}

func (i *Installer) fetch(ctx context.Context, pp *pendingPackage) bool {
	logger := log.WithFunc("installer.downloadTask")
	if pp.host.Present(ctx, pp.desc) {
		logger.Infof(ctx, "installer %s: %s already present", i.id, pp.ref)
	} else if err := pp.host.FetchAndInstall(ctx, pp.desc, i.rt); err != nil {
		logger.Warnf(ctx, "installer %s: download %s: %v", i.id, pp.ref, err)
		return false
	}
	if err := pp.host.Install(ctx, pp.desc); err != nil {
		logger.Warnf(ctx, "installer %s: install %s: %v", i.id, pp.ref, err)
		return false
	}
	logger.Infof(ctx, "installer %s: installed %s", i.id, pp.ref)
	return true
}
