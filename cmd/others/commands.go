package others

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Actions defines cross-cutting system operations.
type Actions interface {
	GC(cmd *cobra.Command, args []string) error
	Version(cmd *cobra.Command, args []string) error
}

// Commands builds the system command set (gc, version, completion).
func Commands(h Actions) []*cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version, git revision, and build timestamp",
		Args:  cobra.NoArgs,
		RunE:  h.Version,
	}
	versionCmd.Flags().Bool("short", false, "print the version number only")

	return []*cobra.Command{
		{
			Use:   "gc",
			Short: "Remove unreferenced package content and stale staging dirs",
			Args:  cobra.NoArgs,
			RunE:  h.GC,
		},
		versionCmd,
		completionCommand(),
	}
}

func completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion script",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
