package packages

import "github.com/spf13/cobra"

// Actions organizes package subcommands.
type Actions interface {
	Install(cmd *cobra.Command, args []string) error
	List(cmd *cobra.Command, args []string) error
	Delete(cmd *cobra.Command, args []string) error
}

// Commands builds the package command set.
func Commands(h Actions) []*cobra.Command {
	install := &cobra.Command{
		Use:   "install PKG[@VERSION] [PKG[@VERSION]...]",
		Short: "Install package(s) and their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE:  h.Install,
	}
	install.Flags().String("host", "", "host reference (defaults to default_host)")
	install.Flags().Int("workers", 0, "installer worker goroutines (defaults to config)")

	return []*cobra.Command{
		install,
		{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List locally stored packages (all backends)",
			RunE:    h.List,
		},
		{
			Use:     "delete ID [ID...]",
			Aliases: []string{"rm"},
			Short:   "Remove package(s) from the index; content is reclaimed by gc",
			Args:    cobra.MinimumNArgs(1),
			RunE:    h.Delete,
		},
	}
}
