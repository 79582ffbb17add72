// Package dispatch delivers worker instructions to their destinations.
// A destination is an opaque address with two primitives: send text,
// send a confirm keystroke. tmux panes are the default transport; any
// sink with those two operations can stand in.
package dispatch

import (
	"fmt"
	"os"
	"os/exec"
)

// Pane is the delivery contract for one destination.
type Pane interface {
	// SendText delivers a multiline payload to the target without
	// submitting it.
	SendText(target string, text string) error
	// Confirm submits whatever the target has received.
	Confirm(target string) error
	// HasTarget reports whether the target is reachable.
	HasTarget(target string) (bool, error)
}

// ExecTmux implements Pane by shelling out to tmux. Targets are tmux
// addresses such as "workflow:backend".
type ExecTmux struct{}

// NewExecTmux returns a new ExecTmux.
func NewExecTmux() *ExecTmux {
	return &ExecTmux{}
}

// SendText writes the payload to a temp file, loads it into a tmux
// buffer and pastes it into the target. Pasting through a buffer
// keeps multiline instructions intact where send-keys would mangle
// them.
func (e *ExecTmux) SendText(target string, text string) error {
	f, err := os.CreateTemp("", "foreman-task-*.txt")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	f.Close()

	if err := exec.Command("tmux", "load-buffer", f.Name()).Run(); err != nil {
		return fmt.Errorf("load-buffer: %w", err)
	}
	if err := exec.Command("tmux", "paste-buffer", "-t", target).Run(); err != nil {
		return fmt.Errorf("paste-buffer: %w", err)
	}
	return nil
}

// Confirm submits the pasted payload with Enter.
func (e *ExecTmux) Confirm(target string) error {
	if err := exec.Command("tmux", "send-keys", "-t", target, "Enter").Run(); err != nil {
		return fmt.Errorf("send-keys: %w", err)
	}
	return nil
}

// HasTarget checks the target with tmux has-session, which accepts
// session:window addresses.
func (e *ExecTmux) HasTarget(target string) (bool, error) {
	err := exec.Command("tmux", "has-session", "-t", target).Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("has-session: %w", err)
}
