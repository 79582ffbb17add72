package github

import (
	"fmt"
	"strings"
	"testing"

	"github.com/lucasnoah/foreman/internal/git"
)

type mockCmd struct {
	calls   [][]string
	results []mockResult
	idx     int
}

type mockResult struct {
	Output string
	Err    error
}

func (m *mockCmd) Run(args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.Output, r.Err
}

type mockGit struct {
	calls   [][]string
	results []mockResult
	idx     int
}

func (m *mockGit) Run(dir string, args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.Output, r.Err
}

func TestCreatePR(t *testing.T) {
	cmd := &mockCmd{results: []mockResult{{Output: "https://github.com/acme/app/pull/7"}}}
	client := NewClient(cmd, &mockGit{})

	result, err := client.CreatePR(PRCreateOpts{
		Title:  "Add payments",
		Body:   "body",
		Branch: "feature/add-payments",
		Base:   "main",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.URL != "https://github.com/acme/app/pull/7" {
		t.Errorf("URL = %q", result.URL)
	}
	want := []string{"pr", "create", "--title", "Add payments", "--body", "body", "--head", "feature/add-payments", "--base", "main"}
	if strings.Join(cmd.calls[0], " ") != strings.Join(want, " ") {
		t.Errorf("gh args = %v", cmd.calls[0])
	}
}

func TestFindPRByBranch(t *testing.T) {
	cmd := &mockCmd{results: []mockResult{{Output: `[{"url":"https://github.com/acme/app/pull/3"}]`}}}
	client := NewClient(cmd, &mockGit{})

	pr, err := client.FindPRByBranch("feature/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr == nil || pr.URL != "https://github.com/acme/app/pull/3" {
		t.Errorf("pr = %+v", pr)
	}
}

func TestFindPRByBranch_None(t *testing.T) {
	cmd := &mockCmd{results: []mockResult{{Output: `[]`}}}
	client := NewClient(cmd, &mockGit{})

	pr, err := client.FindPRByBranch("feature/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr != nil {
		t.Errorf("expected nil, got %+v", pr)
	}
}

func TestPushBranchRejectsFlagInjection(t *testing.T) {
	client := NewClient(&mockCmd{}, &mockGit{})
	if err := client.PushBranch("/repo", "--force"); err == nil {
		t.Fatal("expected error for branch name starting with -")
	}
}

func TestFinalizeAndPublish(t *testing.T) {
	gitRunner := &mockGit{
		results: []mockResult{
			{Output: "feature/add-payments"}, // rev-parse (already on feature)
			{Output: ""},                     // add
			{Output: "leftover.go"},          // diff --cached
			{Output: ""},                     // commit
			{Output: "3"},                    // rev-list --count
			{Output: ""},                     // push
		},
	}
	cmd := &mockCmd{
		results: []mockResult{
			{Output: `[]`},                                  // pr list
			{Output: "https://github.com/acme/app/pull/12"}, // pr create
		},
	}
	client := NewClient(cmd, gitRunner)
	mgr := git.NewManager(gitRunner, "/repo", "main", "", ".workflow")

	result, err := client.FinalizeAndPublish(mgr, PublishRequest{
		Feature: "Add payments",
		Phases:  []string{"plan: approved", "implement: all roles done", "review: passed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Created {
		t.Error("expected a new PR")
	}
	if result.URL != "https://github.com/acme/app/pull/12" {
		t.Errorf("URL = %q", result.URL)
	}
	if result.Branch != "feature/add-payments" {
		t.Errorf("Branch = %q", result.Branch)
	}

	// The generated body names every completed phase.
	createArgs := cmd.calls[1]
	var body string
	for i, a := range createArgs {
		if a == "--body" {
			body = createArgs[i+1]
		}
	}
	for _, phase := range []string{"plan: approved", "review: passed"} {
		if !strings.Contains(body, phase) {
			t.Errorf("PR body missing %q:\n%s", phase, body)
		}
	}
}

func TestFinalizeAndPublish_RefusesEmptyBranch(t *testing.T) {
	gitRunner := &mockGit{
		results: []mockResult{
			{Output: "feature/empty"}, // rev-parse
			{Output: ""},              // add
			{Output: ""},              // diff --cached (nothing)
			{Output: "0"},             // rev-list --count
		},
	}
	cmd := &mockCmd{}
	client := NewClient(cmd, gitRunner)
	mgr := git.NewManager(gitRunner, "/repo", "main", "")

	_, err := client.FinalizeAndPublish(mgr, PublishRequest{Feature: "Empty"})
	if err == nil {
		t.Fatal("expected error for zero commits ahead of trunk")
	}
	if !strings.Contains(err.Error(), "nothing to publish") {
		t.Errorf("error = %v", err)
	}
	if len(cmd.calls) != 0 {
		t.Errorf("gh invoked despite refusal: %v", cmd.calls)
	}
}

func TestFinalizeAndPublish_ReusesExistingPR(t *testing.T) {
	gitRunner := &mockGit{
		results: []mockResult{
			{Output: "feature/x"}, // rev-parse
			{Output: ""},          // add
			{Output: ""},          // diff --cached (nothing new)
			{Output: "2"},         // rev-list --count
			{Output: ""},          // push
		},
	}
	cmd := &mockCmd{
		results: []mockResult{
			{Output: `[{"url":"https://github.com/acme/app/pull/5"}]`},
		},
	}
	client := NewClient(cmd, gitRunner)
	mgr := git.NewManager(gitRunner, "/repo", "main", "")

	result, err := client.FinalizeAndPublish(mgr, PublishRequest{Feature: "X"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created {
		t.Error("expected existing PR to be reused")
	}
	if result.URL != "https://github.com/acme/app/pull/5" {
		t.Errorf("URL = %q", result.URL)
	}
	if len(cmd.calls) != 1 {
		t.Errorf("expected only pr list, got %v", cmd.calls)
	}
}

func TestFinalizeAndPublish_PushFailureSurfaced(t *testing.T) {
	gitRunner := &mockGit{
		results: []mockResult{
			{Output: "feature/x"},
			{Output: ""},
			{Output: ""},
			{Output: "1"},
			{Err: fmt.Errorf("remote: permission denied")},
		},
	}
	client := NewClient(&mockCmd{}, gitRunner)
	mgr := git.NewManager(gitRunner, "/repo", "main", "")

	_, err := client.FinalizeAndPublish(mgr, PublishRequest{Feature: "X"})
	if err == nil {
		t.Fatal("expected push error")
	}
	if !strings.Contains(err.Error(), "push branch") {
		t.Errorf("error = %v", err)
	}
}
