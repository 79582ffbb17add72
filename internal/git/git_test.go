package git

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

type mockGit struct {
	calls   []gitCall
	results []mockResult
	idx     int
}

type gitCall struct {
	Dir  string
	Args []string
}

type mockResult struct {
	Output string
	Err    error
}

func (m *mockGit) Run(dir string, args ...string) (string, error) {
	m.calls = append(m.calls, gitCall{Dir: dir, Args: args})
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.Output, r.Err
}

func TestCreateFeatureBranch_FromTrunk(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: "main"}, // rev-parse HEAD
			{Output: ""},     // checkout -b
		},
	}

	statePath := filepath.Join(t.TempDir(), "branch.json")
	mgr := NewManager(git, "/repo", "main", statePath, ".workflow")
	st, err := mgr.CreateFeatureBranch("Add Rate Limiting!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.Feature != "feature/add-rate-limiting" {
		t.Errorf("Feature = %q", st.Feature)
	}
	if st.Previous != "main" {
		t.Errorf("Previous = %q", st.Previous)
	}
	if len(git.calls) != 2 {
		t.Fatalf("expected 2 git calls, got %d", len(git.calls))
	}
	assertArgs(t, git.calls[1].Args, "checkout", "-b", "feature/add-rate-limiting")

	// Persisted state survives a crash.
	loaded, err := mgr.LoadBranchState()
	if err != nil {
		t.Fatalf("LoadBranchState: %v", err)
	}
	if loaded == nil || loaded.Feature != st.Feature || loaded.Previous != "main" {
		t.Errorf("loaded state = %+v", loaded)
	}
}

func TestCreateFeatureBranch_ReusesCurrentBranch(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: "feature/in-flight"}, // rev-parse HEAD
		},
	}

	mgr := NewManager(git, "/repo", "main", "")
	st, err := mgr.CreateFeatureBranch("another title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.Feature != "feature/in-flight" {
		t.Errorf("Feature = %q, want the branch already checked out", st.Feature)
	}
	// Only rev-parse: no checkout when off trunk.
	if len(git.calls) != 1 {
		t.Fatalf("expected 1 git call, got %d", len(git.calls))
	}
}

func TestCreateFeatureBranch_BranchAlreadyExists(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: "main"},
			{Err: fmt.Errorf("a branch named 'feature/retry' already exists")},
			{Output: ""}, // plain checkout
		},
	}

	mgr := NewManager(git, "/repo", "main", "")
	st, err := mgr.CreateFeatureBranch("retry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Feature != "feature/retry" {
		t.Errorf("Feature = %q", st.Feature)
	}
	assertArgs(t, git.calls[2].Args, "checkout", "feature/retry")
}

func TestCommitPhase_CommitsStagedChanges(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""},                  // add
			{Output: "main.go\napi.go\n"}, // diff --cached
			{Output: ""},                  // commit
		},
	}

	mgr := NewManager(git, "/repo", "main", "", ".workflow")
	committed, err := mgr.CommitPhase("plan", "approved payments plan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !committed {
		t.Error("expected a commit")
	}

	assertArgs(t, git.calls[0].Args, "add", "-A", "--", ".", ":(exclude).workflow")
	assertArgs(t, git.calls[2].Args, "commit", "-m", "plan: approved payments plan")
}

func TestCommitPhase_NoopWhenStageEmpty(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Output: ""}, // add
			{Output: ""}, // diff --cached empty
		},
	}

	mgr := NewManager(git, "/repo", "main", "", ".workflow")
	committed, err := mgr.CommitPhase("implement", "all roles done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if committed {
		t.Error("expected no commit with an empty stage")
	}
	for _, call := range git.calls {
		if call.Args[0] == "commit" {
			t.Error("commit issued with empty stage")
		}
	}
}

func TestCommitPhase_SurfacesGitError(t *testing.T) {
	git := &mockGit{
		results: []mockResult{
			{Err: fmt.Errorf("index locked")},
		},
	}
	mgr := NewManager(git, "/repo", "main", "")
	if _, err := mgr.CommitPhase("plan", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAheadCount(t *testing.T) {
	git := &mockGit{results: []mockResult{{Output: "4"}}}
	mgr := NewManager(git, "/repo", "main", "")
	n, err := mgr.AheadCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("AheadCount = %d, want 4", n)
	}
	assertArgs(t, git.calls[0].Args, "rev-list", "--count", "main..HEAD")
}

func TestAheadCount_BadOutput(t *testing.T) {
	git := &mockGit{results: []mockResult{{Output: "not-a-number"}}}
	mgr := NewManager(git, "/repo", "main", "")
	if _, err := mgr.AheadCount(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadBranchState_Absent(t *testing.T) {
	mgr := NewManager(&mockGit{}, "/repo", "main", filepath.Join(t.TempDir(), "branch.json"))
	st, err := mgr.LoadBranchState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil state, got %+v", st)
	}
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Add Auth", "feature/add-auth"},
		{"  Payments: phase 2!  ", "feature/payments-phase-2"},
		{"", "feature/feature"},
		{strings.Repeat("a", 200), "feature/" + strings.Repeat("a", 100)},
	}
	for _, tc := range tests {
		if got := BranchName(tc.input); got != tc.expected {
			t.Errorf("BranchName(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

// assertArgs verifies exact argument match (no substring false positives).
func assertArgs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("args length mismatch: got %v, want %v", got, want)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("arg[%d] mismatch: got %q, want %q", i, got[i], want[i])
		}
	}
}
