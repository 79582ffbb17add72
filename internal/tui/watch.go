package tui

import (
	"github.com/lucasnoah/foreman/internal/orchestrator"
	"github.com/lucasnoah/foreman/internal/watch"
)

// NewWatch returns the read-only console used by the watch command:
// the same live view with every operation key disabled, so it can run
// in a spare pane without risk of driving the workflow from two
// places.
func NewWatch(orch *orchestrator.Orchestrator, watcher *watch.Watcher) *Model {
	m := New(orch, watcher)
	m.readOnly = true
	m.keys.disableActions()
	m.notice = "watching (read-only)"
	return m
}
