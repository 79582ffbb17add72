// Package watch surfaces workspace changes to the display layers.
// Worker panes communicate by touching files under .workflow/, so a
// filesystem watcher is the push channel: any write, create, or
// remove in the watched directories coalesces into a single change
// notification after a short debounce.
package watch

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher coalesces filesystem events from the workflow directories
// into a change channel. Consumers re-read state on each notification
// rather than inspecting individual events.
type Watcher struct {
	fs       *fsnotify.Watcher
	changes  chan struct{}
	stop     chan struct{}
	debounce time.Duration
}

// New creates a watcher over the given directories. fsnotify watches
// directories, not trees, so callers list each directory of interest.
func New(dirs ...string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return &Watcher{
		fs:       fs,
		changes:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		debounce: defaultDebounce,
	}, nil
}

// Changes returns the notification channel. It carries at most one
// pending notification; bursts of filesystem activity collapse into
// a single receive. The channel is closed when the watcher stops.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop shuts the watcher down and closes the change channel.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fs.Close()
}

func (w *Watcher) loop() {
	defer close(w.changes)

	// Editors and atomic renames produce bursts of events for one
	// logical change. Hold a timer and only notify once it settles.
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !pending {
				pending = true
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		}
	}
}
