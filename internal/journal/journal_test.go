package journal

import (
	"path/filepath"
	"testing"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenMigrates(t *testing.T) {
	j := testJournal(t)

	tables := []string{"schema_version", "workflow_events"}
	for _, table := range tables {
		var name string
		err := j.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := j.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}

	// Migrate again should be idempotent
	if err := j.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	if err := j.Log("init", "init", "workspace scaffolded"); err != nil {
		t.Fatalf("log: %v", err)
	}
	events, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestLogAndRecent(t *testing.T) {
	j := testJournal(t)

	if err := j.Log("plan_approved", "planning", "feature: dark mode"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := j.Log("dispatch", "implementing", "backend frontend tests"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := j.Log("review_requested", "reviewing", "iteration 0"); err != nil {
		t.Fatalf("log: %v", err)
	}

	events, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// Most recent first
	if events[0].Event != "review_requested" {
		t.Errorf("events[0].Event = %q, want review_requested", events[0].Event)
	}
	if events[2].Event != "plan_approved" {
		t.Errorf("events[2].Event = %q, want plan_approved", events[2].Event)
	}
	if events[0].Phase != "reviewing" {
		t.Errorf("events[0].Phase = %q, want reviewing", events[0].Phase)
	}
	if events[1].Detail != "backend frontend tests" {
		t.Errorf("events[1].Detail = %q", events[1].Detail)
	}
	if events[0].Timestamp == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestRecentLimit(t *testing.T) {
	j := testJournal(t)

	for i := 0; i < 5; i++ {
		if err := j.Log("signal", "implementing", "x"); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	events, err := j.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
}

func TestRecentEmpty(t *testing.T) {
	j := testJournal(t)

	events, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestPhaseStats(t *testing.T) {
	j := testJournal(t)

	// Controlled timestamps so first/last are deterministic
	inserts := []struct {
		event, phase, ts string
	}{
		{"plan_approved", "planning", "2024-01-15 10:00:00"},
		{"dispatch", "implementing", "2024-01-15 10:01:00"},
		{"signal", "implementing", "2024-01-15 10:30:00"},
		{"review_requested", "reviewing", "2024-01-15 10:40:00"},
	}
	for _, in := range inserts {
		if _, err := j.conn.Exec(
			`INSERT INTO workflow_events (event, phase, timestamp) VALUES (?, ?, ?)`,
			in.event, in.phase, in.ts,
		); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	stats, err := j.PhaseStats()
	if err != nil {
		t.Fatalf("phase stats: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d phases, want 3", len(stats))
	}
	// Ordered by first appearance
	if stats[0].Phase != "planning" || stats[1].Phase != "implementing" || stats[2].Phase != "reviewing" {
		t.Errorf("phase order = %q, %q, %q", stats[0].Phase, stats[1].Phase, stats[2].Phase)
	}
	if stats[1].Events != 2 {
		t.Errorf("implementing events = %d, want 2", stats[1].Events)
	}
	if stats[1].First != "2024-01-15 10:01:00" {
		t.Errorf("implementing first = %q", stats[1].First)
	}
	if stats[1].Last != "2024-01-15 10:30:00" {
		t.Errorf("implementing last = %q", stats[1].Last)
	}
}

func TestPhaseStatsSkipsEmptyPhase(t *testing.T) {
	j := testJournal(t)

	if err := j.Log("error", "", "git push failed"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := j.Log("dispatch", "implementing", ""); err != nil {
		t.Fatalf("log: %v", err)
	}

	stats, err := j.PhaseStats()
	if err != nil {
		t.Fatalf("phase stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("got %d phases, want 1", len(stats))
	}
	if stats[0].Phase != "implementing" {
		t.Errorf("phase = %q, want implementing", stats[0].Phase)
	}
}

func TestCountByEvent(t *testing.T) {
	j := testJournal(t)

	for i := 0; i < 3; i++ {
		if err := j.Log("signal", "implementing", ""); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	if err := j.Log("review_requested", "reviewing", ""); err != nil {
		t.Fatalf("log: %v", err)
	}

	counts, err := j.CountByEvent()
	if err != nil {
		t.Fatalf("count by event: %v", err)
	}
	if counts["signal"] != 3 {
		t.Errorf("signal count = %d, want 3", counts["signal"])
	}
	if counts["review_requested"] != 1 {
		t.Errorf("review_requested count = %d, want 1", counts["review_requested"])
	}
}

func TestReset(t *testing.T) {
	j := testJournal(t)

	if err := j.Log("dispatch", "implementing", ""); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := j.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	events, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent after reset: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events after reset, want 0", len(events))
	}

	// Journal still usable after reset
	if err := j.Log("init", "init", ""); err != nil {
		t.Fatalf("log after reset: %v", err)
	}
}
