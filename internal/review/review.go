// Package review extracts a PASS/FAIL/PENDING verdict from the review
// artifact a reviewer worker writes, plus the unresolved issues listed
// in it.
package review

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Verdict is the outcome read from a review artifact.
type Verdict string

const (
	Pass    Verdict = "PASS"
	Fail    Verdict = "FAIL"
	Pending Verdict = "PENDING"
)

const (
	passToken   = "STATUS: PASS"
	failToken   = "STATUS: FAIL"
	forcedToken = "STATUS: PASS (forced)"
)

// Parse scans text for the case-sensitive status tokens. FAIL wins if
// both appear; no token means PENDING. A verdict is never inferred
// from the absence of problems.
func Parse(text string) Verdict {
	var sawPass, sawFail bool
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, failToken) {
			sawFail = true
		}
		if strings.Contains(line, passToken) {
			sawPass = true
		}
	}
	switch {
	case sawFail:
		return Fail
	case sawPass:
		return Pass
	default:
		return Pending
	}
}

// ParseFile reads the artifact at path and parses it. A missing or
// unreadable artifact is PENDING, not an error: the reviewer may not
// have written it yet.
func ParseFile(path string) Verdict {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pending
	}
	return Parse(string(data))
}

// Issues returns the unresolved issue lines from a review body:
// unchecked task items anywhere, and plain bullets under a heading
// containing "Issue". Used for the escalation display and for folding
// into refine instructions.
func Issues(text string) []string {
	var issues []string
	inIssueSection := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "#") {
			heading := strings.ToLower(line)
			inIssueSection = strings.Contains(heading, "issue")
			continue
		}
		switch {
		case strings.HasPrefix(line, "- [ ]"):
			issues = append(issues, strings.TrimSpace(strings.TrimPrefix(line, "- [ ]")))
		case inIssueSection && strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "- [x]"):
			issues = append(issues, strings.TrimSpace(strings.TrimPrefix(line, "- ")))
		}
	}
	return issues
}

// IssuesFromFile reads the artifact and extracts its unresolved issues.
// Missing artifact means no issues to report.
func IssuesFromFile(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return Issues(string(data))
}

// ForcePass rewrites every FAIL token in the artifact to an annotated
// forced pass. Callers must treat this as an operator override and
// journal it; it is never applied automatically.
func ForcePass(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read review artifact: %w", err)
	}
	text := string(data)
	if !strings.Contains(text, failToken) {
		return fmt.Errorf("no %q token in %s", failToken, filepath.Base(path))
	}
	text = strings.ReplaceAll(text, failToken, forcedToken)
	return writeAtomic(path, []byte(text))
}

// writeAtomic replaces path via a temp file in the same directory so a
// concurrent ParseFile never sees a truncated artifact.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".review-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	return nil
}
