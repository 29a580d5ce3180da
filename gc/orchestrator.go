package gc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projecteru2/core/log"
)

// Orchestrator runs GC across all registered modules.
type Orchestrator struct {
	modules []runner
}

// New creates an empty Orchestrator.
func New() *Orchestrator { return &Orchestrator{} }

// Register adds m to o. It is a function because methods cannot take type
// parameters.
func Register[S any](o *Orchestrator, m Module[S]) {
	o.modules = append(o.modules, m)
}

// Run executes one cycle: TryLock every module, snapshot each, resolve
// targets with every snapshot visible, collect, unlock. If any module is
// busy nothing is collected, since its snapshot might pin content.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := log.WithFunc("gc.Run")

	var locked []runner
	defer func() {
		for _, m := range locked {
			if err := m.getLocker().Unlock(ctx); err != nil {
				logger.Warnf(ctx, "unlock %s: %v", m.getName(), err)
			}
		}
	}()

	var busy []string
	for _, m := range o.modules {
		ok, err := m.getLocker().TryLock(ctx)
		switch {
		case err != nil:
			logger.Warnf(ctx, "skip %s: %v", m.getName(), err)
			busy = append(busy, m.getName())
		case !ok:
			logger.Warnf(ctx, "skip %s: lock held by another operation", m.getName())
			busy = append(busy, m.getName())
		default:
			locked = append(locked, m)
		}
	}
	if len(busy) > 0 {
		return fmt.Errorf("gc aborted, busy: %s", strings.Join(busy, ", "))
	}

	snapshots := make(map[string]any, len(locked))
	for _, m := range locked {
		snap, err := m.readSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("gc aborted, snapshot %s: %w", m.getName(), err)
		}
		snapshots[m.getName()] = snap
	}

	var errs []error
	for _, m := range locked {
		ids := m.resolveTargets(snapshots[m.getName()], snapshots)
		if len(ids) == 0 {
			continue
		}
		logger.Infof(ctx, "%s: collecting %d item(s)", m.getName(), len(ids))
		if err := m.collect(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.getName(), err))
		}
	}
	return errors.Join(errs...)
}
