package installer

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
)

// descriptorTask resolves one package per iteration. Dependencies found in
// a descriptor go to the tail of the same queue, so the whole closure is
// visited in first-seen order, each package exactly once.
func (i *Installer) descriptorTask(ctx context.Context) bool {
	logger := log.WithFunc("installer.descriptorTask")
	if ctx.Err() != nil {
		return false
	}

	i.mu.Lock()
	if len(i.needDesc) == 0 {
		i.descActive = false
		t := i.advance()
		i.mu.Unlock()
		i.apply(t)
		return false
	}
	pp := i.needDesc[0]
	i.needDesc = i.needDesc[1:]
	i.resolving++
	i.mu.Unlock()

	desc, err := i.resolve(ctx, pp)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		logger.Warnf(ctx, "installer %s: descriptor for %s: %v", i.id, pp.ref, err)
		i.mu.Lock()
		i.resolving--
		pp.done, pp.success = true, false
		i.mu.Unlock()
		i.finish(pp, false)
		return true
	}

	i.mu.Lock()
	pp.desc = desc
	pp.effort = max(desc.DownloadEffort(), 0)
	var added int
	for _, dep := range desc.Dependencies() {
		if dep.Name == "" {
			continue
		}
		if dep.Host == "" {
			dep.Host = pp.ref.Host
		}
		if _, ok := i.known[dep]; ok {
			continue
		}
		np := newPendingPackage(dep)
		i.known[dep] = np
		i.packages = append(i.packages, np)
		i.needDesc = append(i.needDesc, np)
		added++
	}
	i.needDownload = append(i.needDownload, pp)
	i.resolving--
	i.mu.Unlock()

	logger.Infof(ctx, "installer %s: resolved %s (effort %.2f, %d new dependencies)", i.id, pp.ref, pp.effort, added)
	return true
}

func (i *Installer) resolve(ctx context.Context, pp *pendingPackage) (Descriptor, error) {
	host, err := i.hosts.Resolve(pp.ref.Host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %q: %w", pp.ref.Host, err)
	}
	if host == nil {
		return nil, fmt.Errorf("resolve host %q: %w", pp.ref.Host, ErrUnknownHost)
	}
	desc, err := host.ResolveDescriptor(ctx, pp.ref.Name, pp.ref.Version)
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("host %s returned no descriptor", host.Ref())
	}
	// pp.host is read by the download stage and the sampler only after the
	// descriptor is published under i.mu.
	i.mu.Lock()
	pp.host = host
	i.mu.Unlock()
	return desc, nil
}
