package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/foreman/internal/config"
	"github.com/lucasnoah/foreman/internal/prompt"
	"github.com/lucasnoah/foreman/internal/state"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .workflow directory in the current project",
	Long: `Scaffold .workflow/ with a default config.json, built-in task templates
and an empty signal directory. Existing files are never overwritten, so
re-running init after editing templates or config is safe.

The planner pane still needs its plan written to .workflow/PLAN.md
before the workflow can start; foreman only approves plans, it does not
draft them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		layout := state.NewLayout(root)
		already := layout.Initialized()
		if err := layout.Scaffold(); err != nil {
			return err
		}

		if !state.Exists(layout.ConfigPath()) {
			cfg := config.Default()
			if v, _ := cmd.Flags().GetString("trunk"); v != "" {
				cfg.Trunk = v
			}
			if v, _ := cmd.Flags().GetString("session"); v != "" {
				cfg.Session = v
			}
			if v, _ := cmd.Flags().GetStringSlice("workers"); len(v) > 0 {
				cfg.Workers = v
			}
			if errs := config.Validate(cfg); len(errs) > 0 {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
			}
			if err := config.Save(layout.ConfigPath(), cfg); err != nil {
				return err
			}
		}

		cfg, err := config.Load(layout.ConfigPath())
		if err != nil {
			return err
		}
		if err := prompt.Scaffold(layout.TasksDir(), cfg.Workers); err != nil {
			return err
		}

		store, err := state.Open(root)
		if err != nil {
			return err
		}
		if !state.Exists(layout.StatePath()) {
			if err := store.InitRecord(); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		if already {
			fmt.Fprintf(w, "Refreshed %s (existing files kept)\n", layout.Dir())
		} else {
			fmt.Fprintf(w, "Initialized %s\n", layout.Dir())
		}
		fmt.Fprintf(w, "Workers: %s\n", strings.Join(cfg.Workers, ", "))
		fmt.Fprintf(w, "Session: %s (one tmux pane per role)\n", cfg.Session)
		fmt.Fprintln(w, "Next: have the planner write .workflow/PLAN.md, then run `foreman`.")
		return nil
	},
}

func init() {
	initCmd.Flags().String("trunk", "", "Trunk branch feature branches are cut from")
	initCmd.Flags().String("session", "", "tmux session the crew runs in")
	initCmd.Flags().StringSlice("workers", nil, "Implementation roles (default backend,frontend,tests)")
}
