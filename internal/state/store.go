package state

import (
	"fmt"
	"time"

	"github.com/lucasnoah/foreman/internal/config"
	"github.com/lucasnoah/foreman/internal/phase"
	"github.com/lucasnoah/foreman/internal/review"
	"github.com/lucasnoah/foreman/internal/signal"
)

// maxErrorLog bounds the error log carried in the record.
const maxErrorLog = 20

// ErrorEntry is one logged failure, kept visible in state.json instead
// of crashing the orchestrator.
type ErrorEntry struct {
	At      string `json:"at"`
	Message string `json:"message"`
}

// Record is the workflow state written to state.json. The file is a
// cache for external introspection; the signals directory and the
// review artifact stay authoritative, so the record is rebuilt from
// them on every read.
type Record struct {
	Phase       phase.Phase  `json:"phase"`
	Iteration   int          `json:"iteration"`
	Escalated   bool         `json:"escalated,omitempty"`
	StartedAt   string       `json:"startedAt"`
	LastUpdated string       `json:"lastUpdated"`
	Signals     []string     `json:"signals"`
	Errors      []ErrorEntry `json:"errors"`
}

// HasSignal reports whether id is in the record's signal list.
func (r *Record) HasSignal(id string) bool {
	for _, s := range r.Signals {
		if s == id {
			return true
		}
	}
	return false
}

// Store rebuilds and caches the workflow record.
type Store struct {
	layout Layout
	bus    signal.Bus
}

// NewStore returns a Store over an explicit bus, which tests swap for
// an in-memory one.
func NewStore(layout Layout, bus signal.Bus) *Store {
	return &Store{layout: layout, bus: bus}
}

// Open returns a Store for the project at root, backed by the signal
// directory on disk.
func Open(root string) (*Store, error) {
	layout := NewLayout(root)
	bus, err := signal.NewDirBus(layout.SignalsDir())
	if err != nil {
		return nil, err
	}
	return NewStore(layout, bus), nil
}

// Layout returns the store's path layout.
func (s *Store) Layout() Layout {
	return s.layout
}

// Bus returns the store's signal bus.
func (s *Store) Bus() signal.Bus {
	return s.bus
}

// Compute rebuilds the record from the signal set, the review artifact
// and the config. StartedAt and the error log are carried over from
// the cached file when it is readable; a corrupt cache is ignored.
func (s *Store) Compute(cfg config.Config) (*Record, error) {
	set, err := s.bus.Published()
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	archived, err := s.layout.ArchivedReviewCount()
	if err != nil {
		return nil, err
	}

	out := phase.Resolve(phase.Snapshot{
		Signals:         set,
		Verdict:         review.ParseFile(s.layout.ReviewPath()),
		PlanExists:      Exists(s.layout.PlanPath()),
		Workers:         cfg.Workers,
		ArchivedReviews: archived,
		MaxIterations:   cfg.MaxIterations,
	})

	rec := &Record{
		Phase:       out.Phase,
		Iteration:   out.Iteration,
		Escalated:   out.Escalated,
		Signals:     set.Sorted(),
		LastUpdated: nowStamp(),
	}
	if cached := s.cached(); cached != nil {
		rec.StartedAt = cached.StartedAt
		rec.Errors = cached.Errors
	}
	if rec.StartedAt == "" {
		rec.StartedAt = rec.LastUpdated
	}
	return rec, nil
}

// cached reads the state.json cache, or returns nil when the file is
// missing or corrupt.
func (s *Store) cached() *Record {
	var rec Record
	if err := ReadJSON(s.layout.StatePath(), &rec); err != nil {
		return nil
	}
	return &rec
}

// Rebuild computes the record and refreshes the state.json cache.
func (s *Store) Rebuild(cfg config.Config) (*Record, error) {
	rec, err := s.Compute(cfg)
	if err != nil {
		return nil, err
	}
	if err := WriteJSON(s.layout.StatePath(), rec); err != nil {
		return nil, fmt.Errorf("write state cache: %w", err)
	}
	return rec, nil
}

// RecordError appends to the bounded error log and refreshes the
// cache. Failures land in the log rather than aborting the pipeline.
func (s *Store) RecordError(cfg config.Config, msg string) error {
	rec, err := s.Compute(cfg)
	if err != nil {
		return err
	}
	rec.Errors = append(rec.Errors, ErrorEntry{At: nowStamp(), Message: msg})
	if len(rec.Errors) > maxErrorLog {
		rec.Errors = rec.Errors[len(rec.Errors)-maxErrorLog:]
	}
	if err := WriteJSON(s.layout.StatePath(), rec); err != nil {
		return fmt.Errorf("write state cache: %w", err)
	}
	return nil
}

// InitRecord writes a fresh record with StartedAt set to now. Used by
// init and by reset when a new feature begins in the same session.
func (s *Store) InitRecord() error {
	now := nowStamp()
	rec := &Record{
		Phase:       phase.Init,
		StartedAt:   now,
		LastUpdated: now,
		Signals:     []string{},
		Errors:      []ErrorEntry{},
	}
	if err := WriteJSON(s.layout.StatePath(), rec); err != nil {
		return fmt.Errorf("write state cache: %w", err)
	}
	return nil
}

// ClearSignals removes every published marker.
func (s *Store) ClearSignals() error {
	set, err := s.bus.Published()
	if err != nil {
		return fmt.Errorf("list signals: %w", err)
	}
	if err := s.bus.Clear(set.Sorted()...); err != nil {
		return fmt.Errorf("clear signals: %w", err)
	}
	return nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
