package others

import (
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/panda3d/panda3d-sub012/cmd/core"
	"github.com/panda3d/panda3d-sub012/gc"
	"github.com/panda3d/panda3d-sub012/version"
)

type Handler struct {
	cmdcore.BaseHandler
}

func (h Handler) GC(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	locals, err := cmdcore.InitLocals(ctx, conf)
	if err != nil {
		return err
	}

	o := gc.New()
	for _, l := range locals.All() {
		l.RegisterGC(o)
	}
	if err := o.Run(ctx); err != nil {
		return err
	}
	log.WithFunc("cmd.gc").Infof(ctx, "GC completed")
	return nil
}

func (h Handler) Version(cmd *cobra.Command, _ []string) error {
	if short, _ := cmd.Flags().GetBool("short"); short {
		fmt.Println(version.Version)
		return nil
	}
	fmt.Print(version.String())
	return nil
}
