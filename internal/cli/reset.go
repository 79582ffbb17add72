package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Archive the finished feature and start clean",
	Long: `Move PLAN.md and REVIEW.md into the archive, retire older archives into
a dated folder and clear every signal marker. Config, templates and the
git repository are left untouched.

Destructive for workflow state, so it requires --yes. The console's X
key asks for its second press the same way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("reset archives the plan and review and clears all signals: re-run with --yes")
		}

		orch, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := orch.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Workspace reset. Write the next plan when ready.")
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")
}
