// Package tui is the operator console: a live view of the workflow
// derived from the filesystem, plus single-key triggers for the phase
// operations. Workers never see this; everything it does goes through
// the same orchestrator operations the CLI exposes.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lucasnoah/foreman/internal/journal"
	"github.com/lucasnoah/foreman/internal/orchestrator"
	"github.com/lucasnoah/foreman/internal/phase"
	"github.com/lucasnoah/foreman/internal/review"
	"github.com/lucasnoah/foreman/internal/watch"
)

const (
	refreshInterval = 2 * time.Second
	activityRows    = 6
	maxIssueRows    = 4
)

var phaseOrder = []phase.Phase{
	phase.Init,
	phase.Planning,
	phase.Implementing,
	phase.Reviewing,
	phase.Refining,
	phase.Compounding,
	phase.Complete,
}

// KeyMap binds the operator commands. Action bindings are disabled in
// watch mode, which also hides them from the help view.
type KeyMap struct {
	Approve    key.Binding
	Review     key.Binding
	Refine     key.Binding
	Compound   key.Binding
	Publish    key.Binding
	Checkpoint key.Binding
	ForcePass  key.Binding
	Reset      key.Binding
	Refresh    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() KeyMap {
	return KeyMap{
		Approve: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "approve plan"),
		),
		Review: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "request review"),
		),
		Refine: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "request refine"),
		),
		Compound: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "request compound"),
		),
		Publish: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "publish"),
		),
		Checkpoint: key.NewBinding(
			key.WithKeys("k"),
			key.WithHelp("k", "checkpoint"),
		),
		ForcePass: key.NewBinding(
			key.WithKeys("F"),
			key.WithHelp("F", "force pass"),
		),
		Reset: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "reset"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Approve, k.Review, k.Refine, k.Publish, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Approve, k.Review, k.Refine, k.Compound},
		{k.Publish, k.Checkpoint, k.ForcePass, k.Reset},
		{k.Refresh, k.Help, k.Quit},
	}
}

func (k *KeyMap) disableActions() {
	for _, b := range []*key.Binding{
		&k.Approve, &k.Review, &k.Refine, &k.Compound,
		&k.Publish, &k.Checkpoint, &k.ForcePass, &k.Reset,
	} {
		b.SetEnabled(false)
	}
}

type statusMsg struct {
	info     *orchestrator.StatusInfo
	activity []journal.Event
	err      error
}

type opDoneMsg struct {
	notice string
	err    error
}

type fsChangedMsg struct{}

type tickMsg time.Time

// Model is the console state. One instance serves both the interactive
// controller and the read-only watch view.
type Model struct {
	orch    *orchestrator.Orchestrator
	watcher *watch.Watcher

	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	status   *orchestrator.StatusInfo
	activity []journal.Event

	notice       string
	errText      string
	busy         bool
	confirmReset bool
	readOnly     bool

	width  int
	height int
}

// New returns the interactive controller model. watcher may be nil, in
// which case the view refreshes on the timer alone.
func New(orch *orchestrator.Orchestrator, watcher *watch.Watcher) *Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(spinnerStyle))
	return &Model{
		orch:    orch,
		watcher: watcher,
		keys:    newKeyMap(),
		help:    help.New(),
		spinner: sp,
		notice:  "ready",
	}
}

// Init starts the refresh loop.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refresh()}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForChange())
	}
	cmds = append(cmds, m.scheduleTick())
	return tea.Batch(cmds...)
}

// Update advances the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.status = msg.info
		m.activity = msg.activity
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.scheduleTick())

	case fsChangedMsg:
		return m, tea.Batch(m.refresh(), m.waitForChange())

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case opDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			m.notice = ""
		} else {
			m.errText = ""
			m.notice = msg.notice
		}
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.notice = "refreshed"
		return m, m.refresh()
	}

	if m.readOnly {
		return m, nil
	}
	if m.busy {
		m.notice = "an operation is still running"
		return m, nil
	}

	// Reset is destructive enough to need a second press; any other
	// key cancels the pending confirmation.
	if m.confirmReset {
		m.confirmReset = false
		if key.Matches(msg, m.keys.Reset) {
			return m.runOp("resetting", func() (string, error) {
				if err := m.orch.Reset(); err != nil {
					return "", err
				}
				return "workspace reset for the next feature", nil
			})
		}
		m.notice = "reset cancelled"
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Reset):
		m.confirmReset = true
		m.notice = "press X again to archive everything and start over"
		return m, nil

	case key.Matches(msg, m.keys.Approve):
		return m.runOp("approving plan", func() (string, error) {
			res, err := m.orch.ApprovePlan()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("plan approved: %s on %s, dispatched to %s",
				res.Feature, res.Branch, strings.Join(res.Dispatched, ", ")), nil
		})

	case key.Matches(msg, m.keys.Review):
		return m.runOp("requesting review", func() (string, error) {
			res, err := m.orch.RequestReview()
			if err != nil {
				return "", err
			}
			if res.Iteration == 0 {
				return "review requested", nil
			}
			return fmt.Sprintf("re-review %d requested", res.Iteration), nil
		})

	case key.Matches(msg, m.keys.Refine):
		return m.runOp("requesting refine", func() (string, error) {
			res, err := m.orch.RequestRefine()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("refine iteration %d dispatched, %d issues to %s",
				res.Iteration, len(res.Issues), strings.Join(res.Dispatched, ", ")), nil
		})

	case key.Matches(msg, m.keys.Compound):
		return m.runOp("requesting compound", func() (string, error) {
			if err := m.orch.RequestCompound(); err != nil {
				return "", err
			}
			return "compound work dispatched", nil
		})

	case key.Matches(msg, m.keys.Publish):
		return m.runOp("publishing", func() (string, error) {
			res, err := m.orch.Publish()
			if err != nil {
				return "", err
			}
			if res.Created {
				return "pull request opened: " + res.URL, nil
			}
			return "pull request already open: " + res.URL, nil
		})

	case key.Matches(msg, m.keys.Checkpoint):
		return m.runOp("checkpointing", func() (string, error) {
			committed, err := m.orch.Checkpoint("")
			if err != nil {
				return "", err
			}
			if !committed {
				return "nothing to commit", nil
			}
			return "checkpoint committed", nil
		})

	case key.Matches(msg, m.keys.ForcePass):
		return m.runOp("forcing pass", func() (string, error) {
			if err := m.orch.ForcePass(); err != nil {
				return "", err
			}
			return "verdict forced to pass", nil
		})
	}

	return m, nil
}

// runOp executes an orchestrator operation in a command so the view
// keeps rendering while tmux deliveries stagger out.
func (m *Model) runOp(label string, op func() (string, error)) (tea.Model, tea.Cmd) {
	m.busy = true
	m.errText = ""
	m.notice = label + "..."
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		notice, err := op()
		return opDoneMsg{notice: notice, err: err}
	})
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		info, err := m.orch.Status()
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{info: info, activity: m.orch.RecentActivity(activityRows)}
	}
}

func (m *Model) scheduleTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) waitForChange() tea.Cmd {
	ch := m.watcher.Changes()
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return fsChangedMsg{}
	}
}

// View renders the console.
func (m *Model) View() string {
	if m.status == nil {
		if m.errText != "" {
			return errorStyle.Render("✗ " + m.errText)
		}
		return dimStyle.Render("reading workflow state...")
	}

	sections := []string{
		m.renderHeader(),
		panelStyle.Render(m.renderPhasePanel()),
		panelStyle.Render(m.renderWorkersPanel()),
	}
	if body := m.renderActivityPanel(); body != "" {
		sections = append(sections, panelStyle.Render(body))
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m *Model) renderHeader() string {
	title := titleStyle.Render("FOREMAN")
	if m.readOnly {
		title += dimStyle.Render(" · watch")
	}
	parts := []string{title}
	if m.status.Feature != "" {
		parts = append(parts, m.status.Feature)
	}
	if m.status.Branch != "" {
		parts = append(parts, dimStyle.Render(m.status.Branch))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderPhasePanel() string {
	pos, total := phasePosition(m.status.Phase)
	lines := []string{
		fmt.Sprintf("Phase: %s (%d/%d)%s", m.status.Phase, pos, total, m.elapsedSuffix()),
	}

	if m.status.Iteration > 0 {
		line := fmt.Sprintf("Refine iteration %d of %d", m.status.Iteration, m.orch.Config().MaxIterations)
		if m.status.Escalated {
			line += "  " + escalatedStyle.Render("ESCALATED")
		}
		lines = append(lines, line)
	}
	if m.status.Escalated {
		lines = append(lines, errorStyle.Render("iteration limit exceeded: resolve the review or force-pass"))
	}

	switch m.status.Verdict {
	case review.Pass:
		lines = append(lines, "Verdict: "+passStyle.Render(string(review.Pass)))
	case review.Fail:
		lines = append(lines, "Verdict: "+failStyle.Render(string(review.Fail)))
	}
	for _, issue := range clampIssues(m.status.Issues) {
		lines = append(lines, failStyle.Render("  - ")+issue)
	}

	if len(m.status.Signals) > 0 {
		lines = append(lines, dimStyle.Render("signals: "+strings.Join(m.status.Signals, ", ")))
	}
	if n := len(m.status.Errors); n > 0 {
		last := m.status.Errors[n-1]
		lines = append(lines, errorStyle.Render("✗ "+last.Message))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderWorkersPanel() string {
	lines := []string{sectionStyle.Render("Workers")}
	for _, w := range m.status.Workers {
		line := fmt.Sprintf("%s %s", marker(w.Done), w.Role)
		if m.status.Iteration > 0 {
			line += dimStyle.Render("  refine ") + marker(w.Refined)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderActivityPanel() string {
	if len(m.activity) == 0 {
		return ""
	}
	lines := []string{sectionStyle.Render("Activity")}
	for _, ev := range m.activity {
		line := fmt.Sprintf("%s  %s", dimStyle.Render(clock(ev.Timestamp)), ev.Event)
		if ev.Detail != "" {
			line += dimStyle.Render("  " + ev.Detail)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	var status string
	switch {
	case m.busy:
		status = m.spinner.View() + " " + noticeStyle.Render(m.notice)
	case m.errText != "":
		status = errorStyle.Render("✗ " + m.errText)
	case m.notice != "":
		status = noticeStyle.Render(m.notice)
	}
	return lipgloss.JoinVertical(lipgloss.Left, status, m.help.View(m.keys))
}

func (m *Model) elapsedSuffix() string {
	started, err := time.Parse(time.RFC3339, m.status.StartedAt)
	if err != nil {
		return ""
	}
	return dimStyle.Render("  up " + humanizeDuration(time.Since(started)))
}

// --- Helpers ---

func phasePosition(p phase.Phase) (int, int) {
	for i, ph := range phaseOrder {
		if p == ph {
			return i + 1, len(phaseOrder)
		}
	}
	return len(phaseOrder), len(phaseOrder)
}

func clampIssues(issues []string) []string {
	if len(issues) <= maxIssueRows {
		return issues
	}
	out := append([]string(nil), issues[:maxIssueRows]...)
	out = append(out, fmt.Sprintf("+%d more in .workflow/REVIEW.md", len(issues)-maxIssueRows))
	return out
}

// clock trims a journal timestamp to its time of day.
func clock(ts string) string {
	if len(ts) >= 19 {
		return ts[11:19]
	}
	return ts
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
