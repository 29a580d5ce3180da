package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcore "github.com/panda3d/panda3d-sub012/cmd/core"
	cmdothers "github.com/panda3d/panda3d-sub012/cmd/others"
	cmdpackages "github.com/panda3d/panda3d-sub012/cmd/packages"
	"github.com/panda3d/panda3d-sub012/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pkginst",
		Short:         "pkginst - package installer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(commandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (json, toml or yaml)")
	cmd.PersistentFlags().String("root-dir", "", "root data directory")
	cmd.PersistentFlags().Int("pool-size", 0, "parallel layer extraction limit")
	cmd.PersistentFlags().String("default-host", "", "host used for packages given without one")

	_ = viper.BindPFlag("root_dir", cmd.PersistentFlags().Lookup("root-dir"))
	_ = viper.BindPFlag("pool_size", cmd.PersistentFlags().Lookup("pool-size"))
	_ = viper.BindPFlag("default_host", cmd.PersistentFlags().Lookup("default-host"))

	viper.SetEnvPrefix("PKGINST")
	viper.AutomaticEnv()

	base := cmdcore.BaseHandler{ConfProvider: func() *config.Config { return conf }}

	for _, c := range cmdpackages.Commands(cmdpackages.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}
	for _, c := range cmdothers.Commands(cmdothers.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}

	return cmd
}()

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := conf.Normalize(); err != nil {
		return err
	}

	return log.SetupLog(ctx, &conf.Log, "")
}

func newCommandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func commandContext(cmd *cobra.Command) context.Context {
	return cmdcore.CommandContext(cmd)
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := newCommandContext()
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}
