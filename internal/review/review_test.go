package review

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Verdict
	}{
		{"pass", "# Review\n\nSTATUS: PASS\n", Pass},
		{"fail", "# Review\n\nSTATUS: FAIL\n\n- [ ] fix auth\n", Fail},
		{"fail wins tie", "STATUS: PASS\nSTATUS: FAIL\n", Fail},
		{"no token", "# Review\n\nLooks good to me.\n", Pending},
		{"empty", "", Pending},
		{"lowercase not trusted", "status: pass\n", Pending},
		{"forced pass", "STATUS: PASS (forced)\n", Pass},
		{"token mid-line", "Final verdict: STATUS: PASS after checks\n", Pass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.text); got != tt.want {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	if got := ParseFile(filepath.Join(t.TempDir(), "REVIEW.md")); got != Pending {
		t.Errorf("missing artifact verdict = %v, want PENDING", got)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "REVIEW.md")
	if err := os.WriteFile(path, []byte("STATUS: FAIL\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ParseFile(path); got != Fail {
		t.Errorf("verdict = %v, want FAIL", got)
	}
}

func TestIssues(t *testing.T) {
	text := `# Review

STATUS: FAIL

## Issues

- handler ignores context cancellation
- [ ] missing test for empty payload
- [x] rename fixed

## Notes

- this bullet is commentary, not an issue
`
	got := Issues(text)
	want := []string{
		"handler ignores context cancellation",
		"missing test for empty payload",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Issues() = %v, want %v", got, want)
	}
}

func TestIssuesUncheckedOutsideSection(t *testing.T) {
	text := "# Review\n\nSTATUS: FAIL\n\n- [ ] flaky retry loop\n"
	got := Issues(text)
	if len(got) != 1 || got[0] != "flaky retry loop" {
		t.Errorf("Issues() = %v", got)
	}
}

func TestForcePass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "REVIEW.md")
	body := "# Review\n\nSTATUS: FAIL\n\n- [ ] unresolved\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ForcePass(path); err != nil {
		t.Fatalf("ForcePass: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "STATUS: PASS (forced)") {
		t.Errorf("rewritten artifact missing forced token:\n%s", data)
	}
	if got := ParseFile(path); got != Pass {
		t.Errorf("verdict after force = %v, want PASS", got)
	}
}

func TestForcePassRequiresFailToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "REVIEW.md")
	if err := os.WriteFile(path, []byte("STATUS: PASS\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ForcePass(path); err == nil {
		t.Error("expected error forcing a review that did not fail")
	}
}
