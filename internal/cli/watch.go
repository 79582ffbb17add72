package cli

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the workflow read-only",
	Long: `Open the console without command keys: phase, workers, verdict and
recent activity re-render as signal markers and artifacts change.
Useful in a spare tmux pane next to the crew.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(true)
	},
}
