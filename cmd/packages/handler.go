package packages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/panda3d/panda3d-sub012/cmd/core"
	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/installer"
	"github.com/panda3d/panda3d-sub012/progress"
	distProgress "github.com/panda3d/panda3d-sub012/progress/dist"
	ociProgress "github.com/panda3d/panda3d-sub012/progress/oci"
	"github.com/panda3d/panda3d-sub012/types"
)

type Handler struct {
	cmdcore.BaseHandler
}

func (h Handler) Install(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	host, _ := cmd.Flags().GetString("host")
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = conf.Workers
	}

	refs := make([]installer.PackageRef, 0, len(args))
	for _, arg := range args {
		ref, err := hosts.ParseRef(arg)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	locals, err := cmdcore.InitLocals(ctx, conf)
	if err != nil {
		return err
	}
	obs := newObserver(ctx, os.Stdout)
	inst := installer.New(
		installer.WithObserver(obs),
		installer.WithHosts(cmdcore.InitRegistry(conf, locals, fetchTracker(ctx))),
		installer.WithWorkers(workers),
		installer.WithProgressInterval(conf.ProgressInterval),
	)
	defer inst.Destroy()
	log.WithFunc("cmd.install").Infof(ctx, "installer %s: %d package(s) requested", inst.ID(), len(refs))

	for _, ref := range refs {
		if err := inst.AddPackage(ref.Name, ref.Version, host); err != nil {
			return fmt.Errorf("add %s: %w", ref, err)
		}
	}
	inst.DonePackages()

	ok, err := inst.Wait(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("install failed: %s", strings.Join(obs.Failed(), ", "))
	}
	return nil
}

// fetchTracker logs backend phases that the installer callbacks do not
// surface.
func fetchTracker(ctx context.Context) progress.Tracker {
	logger := log.WithFunc("cmd.fetch")
	return progress.Multi(
		progress.NewTracker(func(e distProgress.Event) {
			switch e.Phase {
			case distProgress.PhaseDownload:
				if e.BytesDone == 0 && e.BytesTotal > 0 {
					logger.Infof(ctx, "%s: downloading %s", e.Package, cmdcore.FormatSize(e.BytesTotal))
				}
			case distProgress.PhaseVerify, distProgress.PhaseExtract, distProgress.PhaseCommit:
				logger.Infof(ctx, "%s: %s", e.Package, e.Phase)
			}
		}),
		progress.NewTracker(func(e ociProgress.Event) {
			switch e.Phase {
			case ociProgress.PhaseResolve:
				logger.Infof(ctx, "%s: pulling %d layers (%s)", e.Package, e.Total, cmdcore.FormatSize(e.BytesTotal))
			case ociProgress.PhaseLayer:
				logger.Infof(ctx, "%s: [%d/%d] %s done", e.Package, e.Index+1, e.Total, e.Digest)
			}
		}),
	)
}

func (h Handler) List(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	locals, err := cmdcore.InitLocals(ctx, conf)
	if err != nil {
		return err
	}

	var all []*types.Package
	for _, l := range locals.All() {
		pkgs, err := l.List(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", l.Type(), err)
		}
		all = append(all, pkgs...)
	}
	if len(all) == 0 {
		fmt.Println("No packages found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tNAME\tVERSION\tHOST\tDIGEST\tSIZE\tSTATE\tCREATED")
	for _, p := range all {
		state := "fetched"
		if p.Installed {
			state = "installed"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Type,
			p.Name,
			p.Version,
			p.Host,
			hosts.Digest(p.Digest).Short(),
			cmdcore.FormatSize(p.Size),
			state,
			p.CreatedAt.Local().Format(time.DateTime),
		)
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func (h Handler) Delete(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.delete")
	locals, err := cmdcore.InitLocals(ctx, conf)
	if err != nil {
		return err
	}

	var (
		allDeleted []string
		errs       []error
	)
	for _, l := range locals.All() {
		deleted, err := l.Delete(ctx, args)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", l.Type(), err))
			continue
		}
		allDeleted = append(allDeleted, deleted...)
	}
	for _, key := range allDeleted {
		logger.Infof(ctx, "deleted: %s", key)
	}
	if len(allDeleted) == 0 {
		logger.Infof(ctx, "no matching packages found")
	}
	return errors.Join(errs...)
}
