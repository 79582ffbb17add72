package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/foreman/internal/journal"
	"github.com/lucasnoah/foreman/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the journal of workflow events",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		layout := state.NewLayout(root)
		if !layout.Initialized() {
			return fmt.Errorf("no %s directory here: run `foreman init` first", state.DirName)
		}
		jrnl, err := journal.Open(layout.JournalPath())
		if err != nil {
			return err
		}
		defer jrnl.Close()

		if stats, _ := cmd.Flags().GetBool("stats"); stats {
			return printJournalStats(cmd, jrnl)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		events, err := jrnl.Recent(limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tPHASE\tDETAIL")
		// Recent returns newest first; a tail reads better oldest first.
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Event, e.Phase, e.Detail)
		}
		return w.Flush()
	},
}

func printJournalStats(cmd *cobra.Command, jrnl *journal.Journal) error {
	phases, err := jrnl.PhaseStats()
	if err != nil {
		return err
	}
	counts, err := jrnl.CountByEvent()
	if err != nil {
		return err
	}
	if len(phases) == 0 && len(counts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tEVENTS\tFIRST\tLAST")
	for _, s := range phases {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Phase, s.Events, s.First, s.Last)
	}
	fmt.Fprintln(w)

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "EVENT\tCOUNT")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
	}
	return w.Flush()
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of events to show")
	historyCmd.Flags().Bool("stats", false, "Show per-phase and per-event totals instead of the tail")
}
