package signal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// markerSuffix is the extension for completion marker files.
const markerSuffix = ".done"

// Set is the set of published signal IDs.
type Set map[string]bool

// Has reports whether every given id is present in the set.
func (s Set) Has(ids ...string) bool {
	for _, id := range ids {
		if !s[id] {
			return false
		}
	}
	return true
}

// Sorted returns the IDs in lexical order.
func (s Set) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bus is the completion-marker primitive shared with worker processes.
// Markers are append-only: workers only ever create their own marker,
// and only Clear (refine-iteration boundary or reset) removes any.
type Bus interface {
	// Publish creates a durable marker for id. Publishing an already
	// published id is a no-op.
	Publish(id string) error
	// Published enumerates all markers. Implementations must not serve
	// a cached copy: external workers publish while the orchestrator is
	// not running.
	Published() (Set, error)
	// Clear removes the given markers. Missing markers are ignored.
	Clear(ids ...string) error
}

// ValidateID rejects ids that would escape the signal directory or
// produce unaddressable marker files.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("signal id is empty")
	}
	if strings.ContainsAny(id, "/\\") || id != filepath.Base(id) {
		return fmt.Errorf("invalid signal id %q: must not contain path separators", id)
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid signal id %q: must not start with a dot", id)
	}
	return nil
}

// DirBus stores markers as empty <id>.done files in a single directory.
// Every read is a fresh directory scan, so markers written by workers
// while the orchestrator was down are picked up on the next poll.
type DirBus struct {
	dir string
}

// NewDirBus returns a DirBus rooted at dir, creating it if needed.
func NewDirBus(dir string) (*DirBus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &DirBus{dir: dir}, nil
}

// Dir returns the marker directory.
func (b *DirBus) Dir() string {
	return b.dir
}

// MarkerPath returns the on-disk path for a signal id.
func (b *DirBus) MarkerPath(id string) string {
	return filepath.Join(b.dir, id+markerSuffix)
}

func (b *DirBus) Publish(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	path := b.MarkerPath(id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	// Write through a temp file so a half-written marker is never
	// visible to a concurrent scan.
	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close marker: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish %s: %w", id, err)
	}
	return nil
}

func (b *DirBus) Published() (Set, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("read signal dir %s: %w", b.dir, err)
	}
	set := Set{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, markerSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, markerSuffix)
		if id == "" || strings.HasPrefix(id, ".") {
			continue
		}
		set[id] = true
	}
	return set, nil
}

func (b *DirBus) Clear(ids ...string) error {
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			return err
		}
		if err := os.Remove(b.MarkerPath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear %s: %w", id, err)
		}
	}
	return nil
}

// MemBus is a map-backed Bus for tests.
type MemBus struct {
	mu  sync.Mutex
	set Set
}

// NewMemBus returns an empty in-memory bus.
func NewMemBus() *MemBus {
	return &MemBus{set: Set{}}
}

func (b *MemBus) Publish(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set[id] = true
	return nil
}

func (b *MemBus) Published() (Set, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(Set, len(b.set))
	for id := range b.set {
		out[id] = true
	}
	return out, nil
}

func (b *MemBus) Clear(ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.set, id)
	}
	return nil
}
