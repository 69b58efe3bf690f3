package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"battproc/internal/metrics"
	"battproc/internal/registry"
	"battproc/internal/terminate"
)

// LaunchAndTrack starts command in its own process group, records it under
// label and returns its pid. An empty label defaults to the executable name.
// Failures are returned as *LaunchError; nothing is recorded in that case, so
// the same label can simply be retried.
func (m *Manager) LaunchAndTrack(ctx context.Context, command []string, label string) (int, error) {
	label = strings.TrimSpace(label)
	if label == "" && len(command) > 0 {
		label = filepath.Base(command[0])
	}
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		err := newLaunchError(label, command, fmt.Errorf("empty command: %w", errdefs.ErrInvalidArgument))
		metrics.RecordLaunch(label, err)
		return 0, err
	}
	if _, err := registry.NormalizeLabel(label); err != nil {
		lerr := newLaunchError(label, command, fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err))
		metrics.RecordLaunch(label, lerr)
		return 0, lerr
	}

	logger := log.G(ctx).WithFields(log.Fields{
		"label":   label,
		"command": strings.Join(command, " "),
	})

	cmd := exec.Command(command[0], command[1:]...)
	terminate.Detach(cmd)
	cmd.WaitDelay = outputWaitDelay

	var sinks []io.Closer
	if m.captureOutput {
		stdout := logger.WithField("stream", "stdout").WriterLevel(log.DebugLevel)
		stderr := logger.WithField("stream", "stderr").WriterLevel(log.DebugLevel)
		cmd.Stdout, cmd.Stderr = stdout, stderr
		sinks = append(sinks, stdout, stderr)
	}

	if err := cmd.Start(); err != nil {
		closeAll(sinks)
		lerr := newLaunchError(label, command, err)
		metrics.RecordLaunch(label, lerr)
		logger.WithError(lerr.Err).Error("launch failed")
		return 0, lerr
	}

	pid := cmd.Process.Pid
	done := make(chan struct{})
	go m.reap(context.WithoutCancel(ctx), cmd, label, done, sinks)

	entry, err := m.reg.Add(registry.TrackedProcess{
		ID:      pid,
		Label:   label,
		Command: command,
		Done:    done,
	})
	if err != nil {
		// Never leave an untracked child behind.
		if kerr := m.term.Kill(ctx, pid); kerr != nil {
			logger.WithError(kerr).WithField("pid", pid).Warn("failed to kill untrackable process")
		}
		lerr := newLaunchError(label, command, err)
		metrics.RecordLaunch(label, lerr)
		logger.WithError(err).WithField("pid", pid).Error("launch could not be tracked")
		return 0, lerr
	}

	metrics.RecordLaunch(label, nil)
	m.publish()
	logger.WithFields(log.Fields{
		"pid":      pid,
		"strategy": m.term.Name(),
	}).Info("launched and tracking")
	return entry.ID, nil
}

// reap waits for the child so its pid cannot be recycled while still
// registered, then closes done.
func (m *Manager) reap(ctx context.Context, cmd *exec.Cmd, label string, done chan<- struct{}, sinks []io.Closer) {
	err := cmd.Wait()
	closeAll(sinks)
	close(done)

	logger := log.G(ctx).WithFields(log.Fields{
		"label": label,
		"pid":   cmd.Process.Pid,
	})
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logger.Debug("process exited")
	case errors.As(err, &exitErr):
		logger.WithField("status", exitErr.ProcessState.String()).Debug("process exited")
	default:
		logger.WithError(err).Debug("process wait failed")
	}
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		_ = c.Close()
	}
}
