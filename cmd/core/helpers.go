package core

import (
	"context"
	"fmt"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/panda3d/panda3d-sub012/config"
	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/hosts/dist"
	"github.com/panda3d/panda3d-sub012/hosts/oci"
	"github.com/panda3d/panda3d-sub012/progress"
)

// BaseHandler provides shared config access for all command handlers.
type BaseHandler struct {
	ConfProvider func() *config.Config
}

// Init returns the command context and validated config in one call.
func (h BaseHandler) Init(cmd *cobra.Command) (context.Context, *config.Config, error) {
	conf, err := h.Conf()
	if err != nil {
		return nil, nil, err
	}
	return CommandContext(cmd), conf, nil
}

// Conf validates and returns the config. All handlers call this first.
func (h BaseHandler) Conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

// CommandContext returns command context, falling back to Background.
func CommandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// Locals are the package stores of every backend type.
type Locals struct {
	Dist *hosts.Local
	OCI  *hosts.Local
}

// All returns the stores in listing order.
func (l *Locals) All() []*hosts.Local {
	return []*hosts.Local{l.Dist, l.OCI}
}

// InitLocals opens the package stores of all backends.
func InitLocals(ctx context.Context, conf *config.Config) (*Locals, error) {
	distLocal, err := hosts.NewLocal(ctx, conf, "dist")
	if err != nil {
		return nil, fmt.Errorf("init dist store: %w", err)
	}
	ociLocal, err := hosts.NewLocal(ctx, conf, "oci")
	if err != nil {
		return nil, fmt.Errorf("init oci store: %w", err)
	}
	return &Locals{Dist: distLocal, OCI: ociLocal}, nil
}

// InitRegistry routes host refs to the dist and OCI backends. tracker
// receives the fetch events of both.
func InitRegistry(conf *config.Config, locals *Locals, tracker progress.Tracker) *hosts.Registry {
	reg := hosts.NewRegistry(conf.DefaultHost)
	reg.Handle(dist.Factory(locals.Dist, dist.WithTracker(tracker)), dist.Schemes...)
	reg.Handle(oci.Factory(locals.OCI, oci.WithTracker(tracker)), oci.Schemes...)
	return reg
}

func FormatSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}
