//go:build !windows

package terminate

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

type signalTerminator struct{}

// New returns the signal-based strategy.
func New() Terminator {
	return &signalTerminator{}
}

func (s *signalTerminator) Name() string { return "signal" }

func (s *signalTerminator) Interrupt(ctx context.Context, pid int) error {
	return signalTree(pid, unix.SIGTERM)
}

func (s *signalTerminator) Kill(ctx context.Context, pid int) error {
	// Collect the tree first: once the parent dies its children are
	// re-parented and can no longer be found from pid.
	tree := descendants(ctx, pid)
	err := signalTree(pid, unix.SIGKILL)
	return errors.Join(err, killDescendants(ctx, pid, tree, false))
}

func (s *signalTerminator) Descendants(ctx context.Context, pid int) []int {
	return descendants(ctx, pid)
}

// KillRemnants expects pid to have led its own group, as launched processes
// do. A group id stays reserved while any member lives, so -pid cannot hit a
// stranger.
func (s *signalTerminator) KillRemnants(ctx context.Context, pid int, tree []int) error {
	if pid <= 1 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	var err error
	if pid != unix.Getpgrp() {
		if kerr := unix.Kill(-pid, unix.SIGKILL); kerr != nil && !errors.Is(kerr, unix.ESRCH) {
			err = fmt.Errorf("kill group %d: %w", pid, kerr)
		}
	}
	return errors.Join(err, killDescendants(ctx, pid, tree, true))
}

// killDescendants SIGKILLs every pid in tree. With checkAlive, pids that have
// already gone are skipped rather than signalled.
func killDescendants(ctx context.Context, root int, tree []int, checkAlive bool) error {
	var err error
	for _, child := range tree {
		if child <= 1 || (checkAlive && !alive(ctx, child)) {
			continue
		}
		if kerr := unix.Kill(child, unix.SIGKILL); kerr != nil && !errors.Is(kerr, unix.ESRCH) {
			err = errors.Join(err, fmt.Errorf("kill descendant %d of %d: %w", child, root, kerr))
		}
	}
	return err
}

func (s *signalTerminator) Alive(ctx context.Context, pid int) bool {
	return alive(ctx, pid)
}

func (s *signalTerminator) Find(ctx context.Context, m Matcher) ([]Match, error) {
	return find(ctx, m)
}

// signalTree signals the whole process group when pid leads one that is not
// our own, and pid alone otherwise.
func signalTree(pid int, sig syscall.Signal) error {
	if pid <= 1 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	target := pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid && pgid != unix.Getpgrp() {
		target = -pid
	}
	if err := unix.Kill(target, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("send %s to %d: %w", unix.SignalName(sig), target, err)
	}
	return nil
}
