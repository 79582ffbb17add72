// Package git drives the branch and commit lifecycle at phase
// boundaries: cut a feature branch at plan approval, checkpoint the
// tree as phases complete, count what is ready to publish.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lucasnoah/foreman/internal/state"
)

// Runner provides git commands. Interface for testing.
type Runner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements Runner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// BranchState records the active feature branch and the branch the
// session started on, persisted so a crashed session can resume or be
// cleanly abandoned.
type BranchState struct {
	Feature   string `json:"feature"`
	Previous  string `json:"previous"`
	CreatedAt string `json:"createdAt"`
}

// Manager handles branch and commit operations for one repository.
type Manager struct {
	git       Runner
	repoDir   string
	trunk     string
	statePath string   // branch.json location, "" disables persistence
	exclude   []string // paths never staged by CommitPhase
}

// NewManager creates a Manager. exclude lists paths CommitPhase must
// never stage, typically the orchestrator's own state directory.
func NewManager(git Runner, repoDir, trunk, statePath string, exclude ...string) *Manager {
	return &Manager{git: git, repoDir: repoDir, trunk: trunk, statePath: statePath, exclude: exclude}
}

// CurrentBranch returns the checked-out branch name.
func (m *Manager) CurrentBranch() (string, error) {
	out, err := m.git.Run(m.repoDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return out, nil
}

// CreateFeatureBranch cuts a feature branch named after title, but
// only when the repo is on the trunk branch; any other branch is
// assumed to already be the feature branch and is reused. The result
// is persisted for crash recovery.
func (m *Manager) CreateFeatureBranch(title string) (*BranchState, error) {
	current, err := m.CurrentBranch()
	if err != nil {
		return nil, err
	}

	st := &BranchState{
		Previous:  current,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if current != m.trunk {
		st.Feature = current
		return st, m.save(st)
	}

	branch := BranchName(title)
	if _, err := m.git.Run(m.repoDir, "checkout", "-b", branch); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, fmt.Errorf("create branch %q: %w", branch, err)
		}
		if _, err := m.git.Run(m.repoDir, "checkout", branch); err != nil {
			return nil, fmt.Errorf("checkout existing branch %q: %w", branch, err)
		}
	}
	st.Feature = branch
	return st, m.save(st)
}

// CommitPhase stages every change except the excluded paths and
// commits when the stage is non-empty. Returns false when there was
// nothing to commit, so calling it twice at one boundary yields
// exactly one commit.
func (m *Manager) CommitPhase(kind, description string) (bool, error) {
	addArgs := []string{"add", "-A", "--", "."}
	for _, ex := range m.exclude {
		addArgs = append(addArgs, ":(exclude)"+ex)
	}
	if _, err := m.git.Run(m.repoDir, addArgs...); err != nil {
		return false, fmt.Errorf("stage changes: %w", err)
	}

	staged, err := m.git.Run(m.repoDir, "diff", "--cached", "--name-only")
	if err != nil {
		return false, fmt.Errorf("inspect stage: %w", err)
	}
	if strings.TrimSpace(staged) == "" {
		return false, nil
	}

	msg := fmt.Sprintf("%s: %s", kind, description)
	if _, err := m.git.Run(m.repoDir, "commit", "-m", msg); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// AheadCount returns how many commits the current branch is ahead of
// trunk.
func (m *Manager) AheadCount() (int, error) {
	out, err := m.git.Run(m.repoDir, "rev-list", "--count", m.trunk+"..HEAD")
	if err != nil {
		return 0, fmt.Errorf("count commits ahead of %s: %w", m.trunk, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse rev-list output %q: %w", out, err)
	}
	return n, nil
}

// Trunk returns the configured trunk branch.
func (m *Manager) Trunk() string {
	return m.trunk
}

// RepoDir returns the repository root the manager operates in.
func (m *Manager) RepoDir() string {
	return m.repoDir
}

// LoadBranchState reads the persisted branch state. Returns nil with
// no error when none has been recorded yet.
func (m *Manager) LoadBranchState() (*BranchState, error) {
	if m.statePath == "" {
		return nil, nil
	}
	var st BranchState
	if err := state.ReadJSON(m.statePath, &st); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read branch state: %w", err)
	}
	return &st, nil
}

func (m *Manager) save(st *BranchState) error {
	if m.statePath == "" {
		return nil
	}
	if err := state.WriteJSON(m.statePath, st); err != nil {
		return fmt.Errorf("write branch state: %w", err)
	}
	return nil
}

var nonAlphaNum = regexp.MustCompile(`[^a-zA-Z0-9/_-]+`)

// BranchName derives a feature branch name from a feature title.
func BranchName(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonAlphaNum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "feature"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return "feature/" + s
}
