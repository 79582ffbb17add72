package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Publish and inspect completion markers",
}

var signalDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a unit of work complete",
	Long: `Publish a completion marker. Workers run this as the last line of
their instructions: the id is the role name for implementation work,
"review" for the reviewer, "<role>-refine" during a refine iteration
and "compound" for the compound station.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := orch.MarkDone(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signal %s published.\n", args[0])
		return nil
	},
}

var signalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		set, err := orch.Store().Bus().Published()
		if err != nil {
			return err
		}
		ids := set.Sorted()
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No signals published.")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	signalCmd.AddCommand(signalDoneCmd)
	signalCmd.AddCommand(signalListCmd)
}
