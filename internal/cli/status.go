package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current phase and worker progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		info, err := orch.Status()
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, info)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Phase:     %s\n", info.Phase)
		if info.Feature != "" {
			fmt.Fprintf(w, "Feature:   %s\n", info.Feature)
		}
		if info.Branch != "" {
			fmt.Fprintf(w, "Branch:    %s\n", info.Branch)
		}
		if info.Iteration > 0 {
			iter := fmt.Sprintf("%d of %d", info.Iteration, orch.Config().MaxIterations)
			if info.Escalated {
				iter += " (escalated: resolve the review or force-pass)"
			}
			fmt.Fprintf(w, "Iteration: %s\n", iter)
		}
		fmt.Fprintf(w, "Verdict:   %s\n", info.Verdict)

		fmt.Fprintln(w, "Workers:")
		for _, ws := range info.Workers {
			line := fmt.Sprintf("  [%s] %s", checkbox(ws.Done), ws.Role)
			if info.Iteration > 0 {
				line += fmt.Sprintf("   refine [%s]", checkbox(ws.Refined))
			}
			fmt.Fprintln(w, line)
		}

		if len(info.Issues) > 0 {
			fmt.Fprintln(w, "Unresolved issues:")
			for _, issue := range info.Issues {
				fmt.Fprintf(w, "  - %s\n", issue)
			}
		}
		if len(info.Signals) > 0 {
			fmt.Fprintf(w, "Signals:   %s\n", strings.Join(info.Signals, ", "))
		}
		if n := len(info.Errors); n > 0 {
			last := info.Errors[n-1]
			fmt.Fprintf(w, "Last error: %s (%s)\n", last.Message, last.At)
		}
		return nil
	},
}

func checkbox(done bool) string {
	if done {
		return "x"
	}
	return " "
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
