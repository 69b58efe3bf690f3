package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/containerd/errdefs"
)

// LaunchError reports a command that could not be started. It is the only
// failure the manager hands back to its caller.
type LaunchError struct {
	Label   string
	Command []string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q (%s): %v", e.Label, strings.Join(e.Command, " "), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func newLaunchError(label string, command []string, err error) *LaunchError {
	return &LaunchError{
		Label:   label,
		Command: append([]string(nil), command...),
		Err:     classifyLaunch(err),
	}
}

// classifyLaunch tags spawn failures with errdefs classes so callers can use
// errdefs.IsNotFound and friends.
func classifyLaunch(err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", errdefs.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", errdefs.ErrPermissionDenied, err)
	default:
		return err
	}
}

// TerminationWarning records a termination that could not be confirmed.
// Warnings are collected in a Result and logged; they are never returned as errors.
type TerminationWarning struct {
	ID    int
	Label string
	Name  string
	Phase Phase
	Err   error
}

func (w *TerminationWarning) Error() string {
	who := w.Label
	if who == "" {
		who = w.Name
	}
	if w.ID > 0 {
		who = fmt.Sprintf("%s (pid %d)", who, w.ID)
	}
	if w.Err == nil {
		return fmt.Sprintf("%s: termination not confirmed after %s phase", who, w.Phase)
	}
	return fmt.Sprintf("%s: %s: %v", who, w.Phase, w.Err)
}

func (w *TerminationWarning) Unwrap() error { return w.Err }
