// Package github publishes a finished feature: push the branch and
// open a pull request through the gh CLI.
package github

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/lucasnoah/foreman/internal/git"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client provides GitHub operations.
type Client struct {
	cmd CmdRunner
	git git.Runner
}

// NewClient creates a GitHub client backed by a gh runner and a git
// runner for pushes.
func NewClient(cmd CmdRunner, gitRunner git.Runner) *Client {
	return &Client{cmd: cmd, git: gitRunner}
}

// PRCreateOpts holds options for creating a PR.
type PRCreateOpts struct {
	Title  string
	Body   string
	Branch string
	Base   string
}

// PRCreateResult holds the result of creating a PR.
type PRCreateResult struct {
	URL string
}

// CreatePR creates a pull request.
func (c *Client) CreatePR(opts PRCreateOpts) (*PRCreateResult, error) {
	args := []string{"pr", "create", "--title", opts.Title, "--body", opts.Body, "--head", opts.Branch}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}

	out, err := c.cmd.Run(args...)
	if err != nil {
		return nil, fmt.Errorf("create PR: %w", err)
	}
	return &PRCreateResult{URL: out}, nil
}

// FindPRByBranch checks if a PR already exists for a given branch.
// Returns the PR result if found, nil if none exist.
func (c *Client) FindPRByBranch(branch string) (*PRCreateResult, error) {
	out, err := c.cmd.Run("pr", "list", "--head", branch, "--json", "url", "--limit", "1")
	if err != nil {
		return nil, fmt.Errorf("find PR by branch: %w", err)
	}

	var prs []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse PR list JSON: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &PRCreateResult{URL: prs[0].URL}, nil
}

// PushBranch pushes a branch to the remote.
func (c *Client) PushBranch(dir string, branch string) error {
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	if _, err := c.git.Run(dir, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("push branch: %w", err)
	}
	return nil
}

// PublishRequest describes the feature being published.
type PublishRequest struct {
	// Feature is the feature title, used for the branch name and the
	// PR title.
	Feature string
	// Phases lists the completed phase boundaries, newest last, for
	// the PR body.
	Phases []string
}

// PublishResult reports what FinalizeAndPublish did.
type PublishResult struct {
	Branch  string
	URL     string
	Created bool // false when a PR for the branch already existed
}

// FinalizeAndPublish pushes the feature and opens its pull request:
// ensure the feature branch exists, commit any residual changes, push,
// then create the PR unless one is already open for the branch. It
// refuses to publish a branch with zero commits ahead of trunk, so a
// misconfigured trunk or an empty session fails loudly instead of
// opening an empty PR.
func (c *Client) FinalizeAndPublish(mgr *git.Manager, req PublishRequest) (*PublishResult, error) {
	branchState, err := mgr.CreateFeatureBranch(req.Feature)
	if err != nil {
		return nil, err
	}
	if _, err := mgr.CommitPhase("publish", "final cleanup"); err != nil {
		return nil, err
	}

	ahead, err := mgr.AheadCount()
	if err != nil {
		return nil, err
	}
	if ahead == 0 {
		return nil, fmt.Errorf("branch %s has no commits ahead of %s: nothing to publish", branchState.Feature, mgr.Trunk())
	}

	if err := c.PushBranch(mgr.RepoDir(), branchState.Feature); err != nil {
		return nil, err
	}

	if existing, err := c.FindPRByBranch(branchState.Feature); err != nil {
		return nil, err
	} else if existing != nil {
		return &PublishResult{Branch: branchState.Feature, URL: existing.URL}, nil
	}

	pr, err := c.CreatePR(PRCreateOpts{
		Title:  req.Feature,
		Body:   buildPRBody(req),
		Branch: branchState.Feature,
		Base:   mgr.Trunk(),
	})
	if err != nil {
		return nil, err
	}
	return &PublishResult{Branch: branchState.Feature, URL: pr.URL, Created: true}, nil
}

// buildPRBody generates the PR description from the completed phases.
func buildPRBody(req PublishRequest) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	b.WriteString(req.Feature)
	b.WriteString("\n\n## Phases completed\n\n")
	if len(req.Phases) == 0 {
		b.WriteString("- (no phase log recorded)\n")
	}
	for _, p := range req.Phases {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	return b.String()
}
