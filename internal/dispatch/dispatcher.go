package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// Task is one rendered worker instruction ready for delivery.
type Task struct {
	Role             string
	Destination      string
	Instruction      string
	CompletionSignal string
}

// Dispatcher delivers tasks to panes. Deliveries to multiple
// destinations are staggered so the multiplexer never races its own
// target selection; the workflow itself does not depend on order.
type Dispatcher struct {
	pane         Pane
	confirmDelay time.Duration
	stagger      time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfirmDelay sets the pause between pasting a payload and
// submitting it. Large pastes need time to be received.
func WithConfirmDelay(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.confirmDelay = d }
}

// WithStagger sets the pause between deliveries to different
// destinations.
func WithStagger(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.stagger = d }
}

// NewDispatcher creates a Dispatcher over the given pane transport.
func NewDispatcher(pane Pane, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pane:         pane,
		confirmDelay: time.Second,
		stagger:      2 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers one task: the instruction body plus an explicit
// completion sentence naming the exact signal the worker must create.
// A failed delivery changes no state; the operator retries it.
func (d *Dispatcher) Dispatch(task Task) error {
	if task.Destination == "" {
		return fmt.Errorf("dispatch %s: no destination configured", task.Role)
	}
	if task.CompletionSignal == "" {
		return fmt.Errorf("dispatch %s: no completion signal configured", task.Role)
	}

	ok, err := d.pane.HasTarget(task.Destination)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", task.Role, err)
	}
	if !ok {
		return fmt.Errorf("dispatch %s: destination %q unreachable", task.Role, task.Destination)
	}

	payload := task.Instruction + completionFooter(task.CompletionSignal)
	if err := d.pane.SendText(task.Destination, payload); err != nil {
		return fmt.Errorf("dispatch %s: %w", task.Role, err)
	}
	if d.confirmDelay > 0 {
		time.Sleep(d.confirmDelay)
	}
	if err := d.pane.Confirm(task.Destination); err != nil {
		return fmt.Errorf("dispatch %s: %w", task.Role, err)
	}
	return nil
}

// DispatchAll delivers every task, staggered. It keeps going past
// individual failures so one dead pane does not strand the others,
// and returns the failures joined.
func (d *Dispatcher) DispatchAll(tasks []Task) error {
	var errs []error
	for i, task := range tasks {
		if i > 0 && d.stagger > 0 {
			time.Sleep(d.stagger)
		}
		if err := d.Dispatch(task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func completionFooter(signal string) string {
	return fmt.Sprintf(`

---
When the work above is fully complete and your tests pass, mark it done
from the project root with:

    foreman signal done %s

Do not mark it done early; the marker is what advances the pipeline.
`, signal)
}
