package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/foreman/internal/config"
	"github.com/lucasnoah/foreman/internal/dispatch"
	"github.com/lucasnoah/foreman/internal/git"
	"github.com/lucasnoah/foreman/internal/github"
	"github.com/lucasnoah/foreman/internal/journal"
	"github.com/lucasnoah/foreman/internal/orchestrator"
	"github.com/lucasnoah/foreman/internal/state"
	"github.com/lucasnoah/foreman/internal/tui"
	"github.com/lucasnoah/foreman/internal/watch"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Orchestrate a tmux crew of Claude Code workers",
	Long: `foreman drives a feature through plan, implementation, review, refine
and compound phases across Claude Code workers running in tmux panes.

All state lives in .workflow/ at the project root: signal markers,
PLAN.md, REVIEW.md, per-role task templates and a SQLite event journal.
The phase is derived from those files on every read, so foreman can be
stopped and restarted at any point.

Run with no arguments to open the interactive console.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(false)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resetCmd)
}

// workspaceRoot is the project root foreman operates on: the current
// directory, matching where workers expect .workflow/ to live.
func workspaceRoot() (string, error) {
	root, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return root, nil
}

// newOrchestrator wires the orchestrator over the current directory's
// .workflow state. The returned cleanup closes the journal.
func newOrchestrator() (*orchestrator.Orchestrator, func(), error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, nil, err
	}
	layout := state.NewLayout(root)
	if !layout.Initialized() {
		return nil, nil, fmt.Errorf("no %s directory here: run `foreman init` first", state.DirName)
	}

	cfg, err := config.Load(layout.ConfigPath())
	if err != nil {
		return nil, nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, nil, fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	crew, err := config.LoadCrew(layout.CrewPath(), cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := state.Open(root)
	if err != nil {
		return nil, nil, err
	}
	jrnl, err := journal.Open(layout.JournalPath())
	if err != nil {
		return nil, nil, err
	}

	gitRunner := &git.ExecGit{}
	orch := orchestrator.New(
		store,
		cfg,
		crew,
		git.NewManager(gitRunner, root, cfg.Trunk, layout.BranchPath(), state.DirName),
		github.NewClient(&github.ExecRunner{}, gitRunner),
		dispatch.NewDispatcher(dispatch.NewExecTmux()),
		jrnl,
	)
	cleanup := func() { jrnl.Close() }
	return orch, cleanup, nil
}

// runConsole opens the TUI, read-only for watch mode.
func runConsole(readOnly bool) error {
	orch, cleanup, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer cleanup()

	layout := orch.Store().Layout()
	watcher, err := watch.New(layout.Dir(), layout.SignalsDir())
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	watcher.Start()
	defer watcher.Stop()

	var model *tui.Model
	if readOnly {
		model = tui.NewWatch(orch, watcher)
	} else {
		model = tui.New(orch, watcher)
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
