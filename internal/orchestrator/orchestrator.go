// Package orchestrator composes the operator-triggered workflow
// operations: approve the plan, request review, refine, compound,
// publish. Each operation re-derives the current phase, refuses to run
// out of order, applies its side effects (git, signals, dispatch), and
// journals what happened. Workers are never driven directly; they are
// handed instructions and report back through signal markers.
package orchestrator

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lucasnoah/foreman/internal/config"
	"github.com/lucasnoah/foreman/internal/dispatch"
	"github.com/lucasnoah/foreman/internal/git"
	"github.com/lucasnoah/foreman/internal/github"
	"github.com/lucasnoah/foreman/internal/journal"
	"github.com/lucasnoah/foreman/internal/phase"
	"github.com/lucasnoah/foreman/internal/prompt"
	"github.com/lucasnoah/foreman/internal/review"
	"github.com/lucasnoah/foreman/internal/signal"
	"github.com/lucasnoah/foreman/internal/state"
)

// Orchestrator wires the workflow operations together.
type Orchestrator struct {
	store      *state.Store
	cfg        config.Config
	crew       config.Crew
	git        *git.Manager
	gh         *github.Client
	dispatcher *dispatch.Dispatcher
	journal    *journal.Journal
}

// New creates an Orchestrator. journal may be nil, which disables the
// event log but changes nothing else.
func New(
	store *state.Store,
	cfg config.Config,
	crew config.Crew,
	gitMgr *git.Manager,
	gh *github.Client,
	dispatcher *dispatch.Dispatcher,
	jrnl *journal.Journal,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		cfg:        cfg,
		crew:       crew,
		git:        gitMgr,
		gh:         gh,
		dispatcher: dispatcher,
		journal:    jrnl,
	}
}

// Config returns the loaded configuration.
func (o *Orchestrator) Config() config.Config { return o.cfg }

// Crew returns the loaded role catalog.
func (o *Orchestrator) Crew() config.Crew { return o.crew }

// Store returns the underlying state store.
func (o *Orchestrator) Store() *state.Store { return o.store }

// RecentActivity returns the latest journal entries, newest first.
// Without a journal it returns nothing.
func (o *Orchestrator) RecentActivity(n int) []journal.Event {
	if o.journal == nil {
		return nil
	}
	events, err := o.journal.Recent(n)
	if err != nil {
		return nil
	}
	return events
}

// FeatureName returns the feature title: the first H1 heading of
// PLAN.md, or "" when there is no plan yet.
func (o *Orchestrator) FeatureName() string {
	data, err := os.ReadFile(o.store.Layout().PlanPath())
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// ApproveResult reports what plan approval did.
type ApproveResult struct {
	Feature    string   `json:"feature"`
	Branch     string   `json:"branch"`
	Dispatched []string `json:"dispatched"`
}

// ApprovePlan accepts the drafted plan and starts implementation: cut
// the feature branch, checkpoint the tree, hand every implementation
// role its instructions, and finally publish the plan signal. The
// signal is published last so a failed dispatch leaves the phase at
// planning and the operation can simply be re-run.
func (o *Orchestrator) ApprovePlan() (*ApproveResult, error) {
	rec, err := o.requirePhase("approve plan", phase.Planning)
	if err != nil {
		return nil, err
	}
	feature := o.FeatureName()
	if feature == "" {
		return nil, fmt.Errorf("approve plan: no title heading in %s", o.store.Layout().PlanPath())
	}

	branch, err := o.git.CreateFeatureBranch(feature)
	if err != nil {
		o.fail(rec.Phase, "approve plan: "+err.Error())
		return nil, fmt.Errorf("approve plan: %w", err)
	}
	if _, err := o.git.CommitPhase("plan", feature); err != nil {
		o.fail(rec.Phase, "approve plan: "+err.Error())
		return nil, fmt.Errorf("approve plan: %w", err)
	}

	var tasks []dispatch.Task
	for _, name := range o.cfg.Workers {
		role, ok := o.crew.Role(name)
		if !ok {
			return nil, fmt.Errorf("approve plan: no crew role for worker %q", name)
		}
		task, err := o.buildTask(role, role.Template, role.Signal, o.taskVars(role, feature, 0, nil))
		if err != nil {
			return nil, fmt.Errorf("approve plan: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := o.dispatcher.DispatchAll(tasks); err != nil {
		o.fail(rec.Phase, "approve plan: "+err.Error())
		return nil, fmt.Errorf("approve plan: %w", err)
	}

	if err := o.store.Bus().Publish(phase.SignalPlan); err != nil {
		o.fail(rec.Phase, "approve plan: "+err.Error())
		return nil, fmt.Errorf("approve plan: %w", err)
	}
	o.refresh()
	o.logEvent("plan_approved", phase.Implementing, feature)

	result := &ApproveResult{Feature: feature, Branch: branch.Feature}
	for _, task := range tasks {
		result.Dispatched = append(result.Dispatched, task.Role)
	}
	return result, nil
}

// ReviewRequest reports what a review request did.
type ReviewRequest struct {
	Iteration int    `json:"iteration"`
	Archived  string `json:"archived,omitempty"`
}

// RequestReview checkpoints the finished work and hands the reviewer
// its instructions. On a re-review the previous verdict is archived
// and the review plus refine signals are cleared first; they belong to
// the iteration that just ended.
func (o *Orchestrator) RequestReview() (*ReviewRequest, error) {
	rec, err := o.requirePhase("request review", phase.Reviewing)
	if err != nil {
		return nil, err
	}
	feature := o.FeatureName()

	kind, desc := "implement", "implementation complete"
	if o.allRefined(rec) {
		kind, desc = "refine", fmt.Sprintf("refine iteration %d", rec.Iteration)
	}
	if _, err := o.git.CommitPhase(kind, desc); err != nil {
		o.fail(rec.Phase, "request review: "+err.Error())
		return nil, fmt.Errorf("request review: %w", err)
	}

	archived, err := o.store.Layout().ArchiveReview()
	if err != nil {
		o.fail(rec.Phase, "request review: "+err.Error())
		return nil, fmt.Errorf("request review: %w", err)
	}
	clear := append([]string{phase.SignalReview}, phase.RefineSignals(o.cfg.Workers)...)
	if err := o.store.Bus().Clear(clear...); err != nil {
		o.fail(rec.Phase, "request review: "+err.Error())
		return nil, fmt.Errorf("request review: %w", err)
	}

	// The iteration number survives the archive and clear: archiving
	// adds one, dropping the FAIL verdict removes one.
	reviewer := o.crew.Reviewer
	task, err := o.buildTask(reviewer, reviewer.Template, reviewer.Signal, o.taskVars(reviewer, feature, rec.Iteration, nil))
	if err != nil {
		return nil, fmt.Errorf("request review: %w", err)
	}
	if err := o.dispatcher.Dispatch(task); err != nil {
		o.fail(rec.Phase, "request review: "+err.Error())
		return nil, fmt.Errorf("request review: %w", err)
	}
	o.refresh()
	o.logEvent("review_requested", phase.Reviewing, fmt.Sprintf("iteration %d", rec.Iteration))
	return &ReviewRequest{Iteration: rec.Iteration, Archived: archived}, nil
}

// RefineRequest reports what a refine request did.
type RefineRequest struct {
	Iteration  int      `json:"iteration"`
	Issues     []string `json:"issues,omitempty"`
	Dispatched []string `json:"dispatched"`
}

// RequestRefine sends every implementation role back in with the
// reviewer's unresolved findings folded into its instructions. Once
// the iteration limit is exceeded the operation refuses: the operator
// resolves the review or forces the verdict, the loop never silently
// passes.
func (o *Orchestrator) RequestRefine() (*RefineRequest, error) {
	rec, err := o.requirePhase("request refine", phase.Refining)
	if err != nil {
		return nil, err
	}
	if rec.Escalated {
		return nil, fmt.Errorf("request refine: iteration %d exceeds the limit of %d; resolve the review or force-pass",
			rec.Iteration, o.cfg.MaxIterations)
	}
	feature := o.FeatureName()
	issues := review.IssuesFromFile(o.store.Layout().ReviewPath())

	// Stale markers from an earlier iteration would complete the new
	// refine set prematurely.
	if err := o.store.Bus().Clear(phase.RefineSignals(o.cfg.Workers)...); err != nil {
		o.fail(rec.Phase, "request refine: "+err.Error())
		return nil, fmt.Errorf("request refine: %w", err)
	}

	var tasks []dispatch.Task
	for _, name := range o.cfg.Workers {
		role, ok := o.crew.Role(name)
		if !ok {
			return nil, fmt.Errorf("request refine: no crew role for worker %q", name)
		}
		task, err := o.buildTask(role, role.RefineTemplate, phase.RefineSignal(role.Signal), o.taskVars(role, feature, rec.Iteration, issues))
		if err != nil {
			return nil, fmt.Errorf("request refine: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := o.dispatcher.DispatchAll(tasks); err != nil {
		o.fail(rec.Phase, "request refine: "+err.Error())
		return nil, fmt.Errorf("request refine: %w", err)
	}
	o.refresh()
	o.logEvent("refine_requested", phase.Refining, fmt.Sprintf("iteration %d, %d issues", rec.Iteration, len(issues)))

	result := &RefineRequest{Iteration: rec.Iteration, Issues: issues}
	for _, task := range tasks {
		result.Dispatched = append(result.Dispatched, task.Role)
	}
	return result, nil
}

// RequestCompound checkpoints the reviewed work and hands the compound
// station its instructions. Gated on a passing verdict.
func (o *Orchestrator) RequestCompound() error {
	rec, err := o.requirePhase("request compound", phase.Compounding)
	if err != nil {
		return err
	}
	if rec.HasSignal(phase.SignalCompound) {
		return fmt.Errorf("request compound: compound work already reported complete")
	}
	feature := o.FeatureName()

	if _, err := o.git.CommitPhase("review", "review passed"); err != nil {
		o.fail(rec.Phase, "request compound: "+err.Error())
		return fmt.Errorf("request compound: %w", err)
	}

	station := o.crew.Compound
	task, err := o.buildTask(station, station.Template, station.Signal, o.taskVars(station, feature, rec.Iteration, nil))
	if err != nil {
		return fmt.Errorf("request compound: %w", err)
	}
	if err := o.dispatcher.Dispatch(task); err != nil {
		o.fail(rec.Phase, "request compound: "+err.Error())
		return fmt.Errorf("request compound: %w", err)
	}
	o.refresh()
	o.logEvent("compound_requested", phase.Compounding, feature)
	return nil
}

// Publish pushes the feature branch and opens its pull request, then
// publishes the terminal signal. Gated on the compound signal; the
// workflow is published exactly once.
func (o *Orchestrator) Publish() (*github.PublishResult, error) {
	rec, err := o.store.Compute(o.cfg)
	if err != nil {
		return nil, err
	}
	if rec.Phase == phase.Complete {
		return nil, fmt.Errorf("publish: workflow is already complete")
	}
	if !rec.HasSignal(phase.SignalCompound) {
		return nil, fmt.Errorf("publish: phase is %s and compound work has not reported complete", rec.Phase)
	}
	feature := o.FeatureName()
	if feature == "" {
		return nil, fmt.Errorf("publish: no title heading in %s", o.store.Layout().PlanPath())
	}

	if _, err := o.git.CommitPhase("compound", "knowledge captured"); err != nil {
		o.fail(rec.Phase, "publish: "+err.Error())
		return nil, fmt.Errorf("publish: %w", err)
	}

	res, err := o.gh.FinalizeAndPublish(o.git, github.PublishRequest{
		Feature: feature,
		Phases:  o.phaseLog(),
	})
	if err != nil {
		o.fail(rec.Phase, "publish: "+err.Error())
		return nil, fmt.Errorf("publish: %w", err)
	}

	if err := o.store.Bus().Publish(phase.SignalPublish); err != nil {
		o.fail(rec.Phase, "publish: "+err.Error())
		return nil, fmt.Errorf("publish: %w", err)
	}
	o.refresh()
	o.logEvent("published", phase.Complete, res.URL)
	return res, nil
}

// Checkpoint commits the working tree as it stands, outside any phase
// boundary. Returns false when there was nothing to commit.
func (o *Orchestrator) Checkpoint(description string) (bool, error) {
	rec, err := o.store.Compute(o.cfg)
	if err != nil {
		return false, err
	}
	if description == "" {
		description = "manual checkpoint"
	}
	committed, err := o.git.CommitPhase("checkpoint", description)
	if err != nil {
		o.fail(rec.Phase, "checkpoint: "+err.Error())
		return false, fmt.Errorf("checkpoint: %w", err)
	}
	if committed {
		o.logEvent("commit", rec.Phase, "checkpoint: "+description)
	}
	return committed, nil
}

// ForcePass rewrites the failing verdict to an annotated pass. An
// operator override, journaled as such; nothing in the pipeline calls
// it automatically.
func (o *Orchestrator) ForcePass() error {
	rec, err := o.store.Compute(o.cfg)
	if err != nil {
		return err
	}
	if rec.Phase != phase.Refining {
		return fmt.Errorf("force pass: phase is %s, need %s", rec.Phase, phase.Refining)
	}
	if err := review.ForcePass(o.store.Layout().ReviewPath()); err != nil {
		return fmt.Errorf("force pass: %w", err)
	}
	o.refresh()
	o.logEvent("force_pass", phase.Compounding, fmt.Sprintf("verdict overridden at iteration %d", rec.Iteration))
	return nil
}

// Reset archives the current feature's artifacts and clears every
// signal so a new feature can start in the same workspace. Config,
// crew and task templates survive; the git tree is untouched.
func (o *Orchestrator) Reset() error {
	rec, recErr := o.store.Compute(o.cfg)

	layout := o.store.Layout()
	if _, err := layout.ArchiveReview(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if _, err := layout.ArchivePlan(time.Now()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if _, err := layout.RetireArchive(time.Now()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := o.store.ClearSignals(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := o.store.InitRecord(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	from := phase.Init
	if recErr == nil {
		from = rec.Phase
	}
	o.logEvent("reset", phase.Init, fmt.Sprintf("from %s", from))
	return nil
}

// MarkDone publishes a completion signal. This is the path workers and
// operators use through the CLI; the id is validated before it touches
// the signal directory.
func (o *Orchestrator) MarkDone(id string) error {
	if err := signal.ValidateID(id); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if err := o.store.Bus().Publish(id); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	rec, err := o.store.Rebuild(o.cfg)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	o.logEvent("signal", rec.Phase, id)
	return nil
}

// WorkerStatus is one implementation role's completion state.
type WorkerStatus struct {
	Role    string `json:"role"`
	Done    bool   `json:"done"`
	Refined bool   `json:"refined"`
}

// StatusInfo is the combined workflow status for display.
type StatusInfo struct {
	Phase       phase.Phase        `json:"phase"`
	Iteration   int                `json:"iteration"`
	Escalated   bool               `json:"escalated,omitempty"`
	Feature     string             `json:"feature,omitempty"`
	Branch      string             `json:"branch,omitempty"`
	Verdict     review.Verdict     `json:"verdict"`
	Signals     []string           `json:"signals"`
	Workers     []WorkerStatus     `json:"workers"`
	Issues      []string           `json:"issues,omitempty"`
	StartedAt   string             `json:"startedAt"`
	LastUpdated string             `json:"lastUpdated"`
	Errors      []state.ErrorEntry `json:"errors,omitempty"`
}

// Status assembles the full display snapshot from the derived record,
// the review artifact and the branch state.
func (o *Orchestrator) Status() (*StatusInfo, error) {
	rec, err := o.store.Compute(o.cfg)
	if err != nil {
		return nil, err
	}
	info := &StatusInfo{
		Phase:       rec.Phase,
		Iteration:   rec.Iteration,
		Escalated:   rec.Escalated,
		Feature:     o.FeatureName(),
		Verdict:     review.ParseFile(o.store.Layout().ReviewPath()),
		Signals:     rec.Signals,
		StartedAt:   rec.StartedAt,
		LastUpdated: rec.LastUpdated,
		Errors:      rec.Errors,
	}
	if bs, err := o.git.LoadBranchState(); err == nil && bs != nil {
		info.Branch = bs.Feature
	}
	for _, w := range o.cfg.Workers {
		info.Workers = append(info.Workers, WorkerStatus{
			Role:    w,
			Done:    rec.HasSignal(w),
			Refined: rec.HasSignal(phase.RefineSignal(w)),
		})
	}
	if info.Verdict == review.Fail {
		info.Issues = review.IssuesFromFile(o.store.Layout().ReviewPath())
	}
	return info, nil
}

// --- Helpers ---

// requirePhase derives the current record and checks the operation is
// running in the phase it belongs to.
func (o *Orchestrator) requirePhase(op string, want phase.Phase) (*state.Record, error) {
	rec, err := o.store.Compute(o.cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec.Phase != want {
		return nil, fmt.Errorf("%s: phase is %s, need %s", op, rec.Phase, want)
	}
	return rec, nil
}

// allRefined reports whether every implementation role has published
// its refine signal, which marks the reviewing entry as a re-review.
func (o *Orchestrator) allRefined(rec *state.Record) bool {
	for _, id := range phase.RefineSignals(o.cfg.Workers) {
		if !rec.HasSignal(id) {
			return false
		}
	}
	return true
}

// buildTask renders a role's instruction template into a deliverable
// task.
func (o *Orchestrator) buildTask(role config.Role, template, signalID string, vars prompt.Vars) (dispatch.Task, error) {
	body, err := prompt.RenderFile(o.store.Layout().Resolve(template), vars)
	if err != nil {
		return dispatch.Task{}, fmt.Errorf("render %s for %s: %w", template, role.Name, err)
	}
	return dispatch.Task{
		Role:             role.Name,
		Destination:      role.Pane,
		Instruction:      body,
		CompletionSignal: signalID,
	}, nil
}

// taskVars assembles the template variable set. Every built-in
// variable is always present so custom templates can reference any of
// them; conditional blocks hide the empty ones.
func (o *Orchestrator) taskVars(role config.Role, feature string, iteration int, issues []string) prompt.Vars {
	v := prompt.Vars{
		"feature":   feature,
		"role":      role.Name,
		"roles":     strings.Join(o.cfg.Workers, ", "),
		"scope":     bulleted(role.Scope),
		"iteration": "",
		"issues":    issueList(issues),
		"checks":    checkList(o.cfg.ReviewChecks),
	}
	if iteration > 0 {
		v["iteration"] = strconv.Itoa(iteration)
	}
	return v
}

// phaseLog returns the phases the journal saw, in first-appearance
// order, for the pull request body.
func (o *Orchestrator) phaseLog() []string {
	if o.journal == nil {
		return nil
	}
	stats, err := o.journal.PhaseStats()
	if err != nil {
		return nil
	}
	var phases []string
	for _, s := range stats {
		phases = append(phases, s.Phase)
	}
	return phases
}

// refresh rewrites the state.json cache. Best effort: the cache is
// derived and the next read recomputes it anyway.
func (o *Orchestrator) refresh() {
	_, _ = o.store.Rebuild(o.cfg)
}

// fail records an operation failure in the state record's error log
// and the journal.
func (o *Orchestrator) fail(ph phase.Phase, msg string) {
	_ = o.store.RecordError(o.cfg, msg)
	o.logEvent("error", ph, msg)
}

func (o *Orchestrator) logEvent(event string, ph phase.Phase, detail string) {
	if o.journal == nil {
		return
	}
	_ = o.journal.Log(event, string(ph), detail)
}

func bulleted(items []string) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func issueList(issues []string) string {
	if len(issues) == 0 {
		return "See `.workflow/REVIEW.md` for the full findings."
	}
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = "- [ ] " + issue
	}
	return strings.Join(lines, "\n")
}

func checkList(checks map[string]string) string {
	if len(checks) == 0 {
		return ""
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: `%s`", name, checks[name]))
	}
	return strings.Join(lines, "\n")
}
