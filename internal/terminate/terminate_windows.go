//go:build windows

package terminate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	taskkillTimeout = 15 * time.Second
	// taskkill exits with 128 when the target does not exist.
	taskkillNotFound = 128
)

type taskTerminator struct{}

// New returns the taskkill-based strategy.
func New() Terminator {
	return &taskTerminator{}
}

func (t *taskTerminator) Name() string { return "taskkill" }

// Interrupt posts a close request to the tree; GUI applications receive
// WM_CLOSE rather than being ended.
func (t *taskTerminator) Interrupt(ctx context.Context, pid int) error {
	return taskkill(ctx, "/T", "/PID", strconv.Itoa(pid))
}

func (t *taskTerminator) Kill(ctx context.Context, pid int) error {
	return taskkill(ctx, "/F", "/T", "/PID", strconv.Itoa(pid))
}

func (t *taskTerminator) Descendants(ctx context.Context, pid int) []int {
	return descendants(ctx, pid)
}

// KillRemnants ends each surviving member of tree on its own; taskkill /T
// cannot walk from a root that no longer exists.
func (t *taskTerminator) KillRemnants(ctx context.Context, pid int, tree []int) error {
	var err error
	for _, child := range tree {
		if !alive(ctx, child) {
			continue
		}
		if kerr := taskkill(ctx, "/F", "/T", "/PID", strconv.Itoa(child)); kerr != nil {
			err = errors.Join(err, fmt.Errorf("kill descendant %d of %d: %w", child, pid, kerr))
		}
	}
	return err
}

func (t *taskTerminator) Alive(ctx context.Context, pid int) bool {
	return alive(ctx, pid)
}

func (t *taskTerminator) Find(ctx context.Context, m Matcher) ([]Match, error) {
	return find(ctx, m)
}

func taskkill(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, taskkillTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "taskkill", args...).CombinedOutput()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == taskkillNotFound {
		return nil
	}
	return fmt.Errorf("taskkill %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
}
