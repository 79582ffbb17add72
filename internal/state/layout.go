// Package state owns the .workflow directory: the path layout shared
// with worker processes, and the state record rebuilt from signals on
// every read.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// DirName is the orchestrator's state directory at the project root.
// Workers navigate this layout by convention, so paths under it are
// part of the interop contract.
const DirName = ".workflow"

// Layout resolves every path under the state directory.
type Layout struct {
	root string
}

// NewLayout returns a Layout for the project rooted at root.
func NewLayout(root string) Layout {
	return Layout{root: root}
}

// Root returns the project root.
func (l Layout) Root() string {
	return l.root
}

// Dir returns the state directory path.
func (l Layout) Dir() string {
	return filepath.Join(l.root, DirName)
}

// Initialized reports whether the state directory exists.
func (l Layout) Initialized() bool {
	info, err := os.Stat(l.Dir())
	return err == nil && info.IsDir()
}

func (l Layout) StatePath() string   { return filepath.Join(l.Dir(), "state.json") }
func (l Layout) ConfigPath() string  { return filepath.Join(l.Dir(), "config.json") }
func (l Layout) CrewPath() string    { return filepath.Join(l.Dir(), "crew.yaml") }
func (l Layout) PlanPath() string    { return filepath.Join(l.Dir(), "PLAN.md") }
func (l Layout) ReviewPath() string  { return filepath.Join(l.Dir(), "REVIEW.md") }
func (l Layout) BranchPath() string  { return filepath.Join(l.Dir(), "branch.json") }
func (l Layout) JournalPath() string { return filepath.Join(l.Dir(), "journal.db") }
func (l Layout) ContractsDir() string { return filepath.Join(l.Dir(), "contracts") }
func (l Layout) TasksDir() string     { return filepath.Join(l.Dir(), "tasks") }
func (l Layout) SignalsDir() string   { return filepath.Join(l.Dir(), "signals") }
func (l Layout) ArchiveDir() string   { return filepath.Join(l.Dir(), "archive") }

// TaskPath returns the instruction file for a role.
func (l Layout) TaskPath(role string) string {
	return filepath.Join(l.TasksDir(), role+".md")
}

// Resolve joins a relative path (as stored in crew.yaml) under the
// state directory. Absolute paths pass through.
func (l Layout) Resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(l.Dir(), rel)
}

// Scaffold creates the directory tree. Existing directories are left
// alone, so re-running init is safe.
func (l Layout) Scaffold() error {
	for _, dir := range []string{l.Dir(), l.SignalsDir(), l.ContractsDir(), l.TasksDir(), l.ArchiveDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}

var archivedReviewRe = regexp.MustCompile(`^REVIEW\.(\d+)\.md$`)

// ArchivedReviewCount counts completed review cycles: one archived
// artifact per cycle. This count anchors the derived iteration number.
func (l Layout) ArchivedReviewCount() (int, error) {
	entries, err := os.ReadDir(l.ArchiveDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read archive dir: %w", err)
	}
	count := 0
	for _, entry := range entries {
		if archivedReviewRe.MatchString(entry.Name()) {
			count++
		}
	}
	return count, nil
}

// ArchiveReview moves REVIEW.md to archive/REVIEW.<n>.md, numbering
// past the highest existing archive. Returns the destination path, or
// "" when there is no artifact to archive.
func (l Layout) ArchiveReview() (string, error) {
	if !Exists(l.ReviewPath()) {
		return "", nil
	}
	if err := os.MkdirAll(l.ArchiveDir(), 0o755); err != nil {
		return "", fmt.Errorf("mkdir archive dir: %w", err)
	}
	next := 1
	entries, err := os.ReadDir(l.ArchiveDir())
	if err != nil {
		return "", fmt.Errorf("read archive dir: %w", err)
	}
	for _, entry := range entries {
		m := archivedReviewRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
			next = n + 1
		}
	}
	dst := filepath.Join(l.ArchiveDir(), fmt.Sprintf("REVIEW.%d.md", next))
	if err := os.Rename(l.ReviewPath(), dst); err != nil {
		return "", fmt.Errorf("archive review: %w", err)
	}
	return dst, nil
}

// RetireArchive moves the top-level archive files into a dated
// subdirectory. The archived review count, and with it the derived
// iteration number, restarts at zero for the next feature while the
// old artifacts stay browsable. Returns "" when the archive is empty.
func (l Layout) RetireArchive(now time.Time) (string, error) {
	entries, err := os.ReadDir(l.ArchiveDir())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read archive dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return "", nil
	}
	dst := filepath.Join(l.ArchiveDir(), now.UTC().Format("20060102-150405"))
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dst, err)
	}
	for _, name := range files {
		if err := os.Rename(filepath.Join(l.ArchiveDir(), name), filepath.Join(dst, name)); err != nil {
			return "", fmt.Errorf("retire %s: %w", name, err)
		}
	}
	return dst, nil
}

// ArchivePlan moves PLAN.md to archive/PLAN.<timestamp>.md. Returns ""
// when there is no plan to archive.
func (l Layout) ArchivePlan(now time.Time) (string, error) {
	if !Exists(l.PlanPath()) {
		return "", nil
	}
	if err := os.MkdirAll(l.ArchiveDir(), 0o755); err != nil {
		return "", fmt.Errorf("mkdir archive dir: %w", err)
	}
	dst := filepath.Join(l.ArchiveDir(), fmt.Sprintf("PLAN.%s.md", now.UTC().Format("20060102-150405")))
	if err := os.Rename(l.PlanPath(), dst); err != nil {
		return "", fmt.Errorf("archive plan: %w", err)
	}
	return dst, nil
}
