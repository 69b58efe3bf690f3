package manager

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/containerd/log"
	"golang.org/x/sync/errgroup"

	"battproc/internal/metrics"
	"battproc/internal/registry"
)

const maxCleanupRounds = 3

// Target selects tracked processes either by pid or by label.
type Target struct {
	id    int
	label string
}

// ByID targets the tracked process with pid id.
func ByID(id int) Target { return Target{id: id} }

// ByLabel targets every tracked process sharing label.
func ByLabel(label string) Target { return Target{label: label} }

func (t Target) String() string {
	if t.label != "" {
		return "label=" + t.label
	}
	return "id=" + strconv.Itoa(t.id)
}

// Terminate ends the targeted tracked processes. Without force a graceful
// request comes first and is escalated to a forced kill once the grace period
// expires. A target that is not tracked, or already exited, yields a zero
// count and no warning. Cancelling ctx does not interrupt a termination in
// flight; every wait is bounded by the grace period or kill timeout.
func (m *Manager) Terminate(ctx context.Context, target Target, force bool) Result {
	ctx = context.WithoutCancel(ctx)

	var entries []registry.TrackedProcess
	if target.label != "" {
		entries = m.reg.ByLabel(target.label)
	} else if p, ok := m.reg.Get(target.id); ok {
		entries = append(entries, p)
	}
	if len(entries) == 0 {
		log.G(ctx).WithField("target", target.String()).Debug("terminate: nothing tracked, treating as done")
		return Result{}
	}

	res := m.terminateEntries(ctx, entries, force, m.escalate)
	m.publish()
	return res
}

// CleanupAllTracked terminates every tracked process and always leaves the
// registry empty, whatever the individual outcomes were. Entries launched
// while the cleanup runs are picked up too.
func (m *Manager) CleanupAllTracked(ctx context.Context, force bool) Result {
	ctx = context.WithoutCancel(ctx)
	logger := log.G(ctx)

	var res Result
	for round := 0; round < maxCleanupRounds; round++ {
		entries := m.reg.List()
		if len(entries) == 0 {
			break
		}
		res.merge(m.terminateEntries(ctx, entries, force, true))
		for _, p := range entries {
			if m.reg.Remove(p.ID) {
				m.sampler.Forget(p.ID)
				logger.WithFields(log.Fields{"label": p.Label, "pid": p.ID}).Warn("dropping unconfirmed entry from registry")
			}
		}
	}
	for _, p := range m.reg.Reset() {
		m.sampler.Forget(p.ID)
		res.warn(&TerminationWarning{ID: p.ID, Label: p.Label, Phase: PhaseUnconfirmed, Err: fmt.Errorf("launched during cleanup and dropped")})
	}
	m.publish()

	logger.WithFields(log.Fields{
		"terminated": res.Terminated,
		"warnings":   len(res.Warnings),
		"force":      force,
	}).Info("cleanup of tracked processes finished")
	return res
}

// terminateEntries runs terminateOne for each entry with bounded parallelism.
// Entries are independent, so no failure stops the others.
func (m *Manager) terminateEntries(ctx context.Context, entries []registry.TrackedProcess, force, escalate bool) Result {
	var (
		mu  sync.Mutex
		res Result
		g   errgroup.Group
	)
	g.SetLimit(m.parallelism)
	for _, p := range entries {
		g.Go(func() error {
			one := m.terminateOne(ctx, p, force, escalate)
			mu.Lock()
			res.merge(one)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return res
}

// terminateOne drives a single entry through Requested-Graceful,
// Escalated-Forced and Confirmed-Absent. The entry is removed only once
// absence is confirmed, and only the caller whose removal succeeds counts it.
func (m *Manager) terminateOne(ctx context.Context, p registry.TrackedProcess, force, escalate bool) Result {
	logger := log.G(ctx).WithFields(log.Fields{"label": p.Label, "pid": p.ID})
	var res Result

	if p.Exited() {
		m.confirm(p)
		logger.WithField("outcome", PhaseAlreadyGone).Info("process had already exited")
		res.add(Event{ID: p.ID, Label: p.Label, Phase: PhaseAlreadyGone}, false)
		return res
	}

	phase := PhaseForced
	var tree []int
	if !force {
		// The tree must be known before the root goes; its orphans are
		// re-parented and unreachable from p.ID afterwards.
		tree = m.term.Descendants(ctx, p.ID)
		logger.WithFields(log.Fields{"phase": "graceful", "descendants": len(tree)}).Info("requesting graceful stop")
		if err := m.term.Interrupt(ctx, p.ID); err != nil {
			logger.WithError(err).Warn("graceful stop request failed")
		}
		if m.waitExit(ctx, p, m.grace) {
			m.reapRemnants(ctx, logger, p, tree)
			return m.finish(logger, p, PhaseGraceful, nil)
		}
		if !escalate {
			w := &TerminationWarning{ID: p.ID, Label: p.Label, Phase: PhaseRequested,
				Err: fmt.Errorf("still running after %s grace period", m.grace)}
			logger.WithField("outcome", PhaseRequested).Warn(w.Error())
			res.add(Event{ID: p.ID, Label: p.Label, Phase: PhaseRequested, Err: w}, false)
			res.warn(w)
			return res
		}
		metrics.RecordEscalation(p.Label)
		logger.WithField("grace", m.grace).Warn("still running after grace period, escalating to forced kill")
		phase = PhaseEscalated
	}

	logger.WithField("phase", "forced").Info("forcing termination of process tree")
	killErr := m.term.Kill(ctx, p.ID)
	if killErr != nil {
		logger.WithError(killErr).Warn("forced kill reported an error")
	}
	if m.waitExit(ctx, p, m.killTimeout) {
		if len(tree) > 0 {
			m.reapRemnants(ctx, logger, p, tree)
		}
		return m.finish(logger, p, phase, killErr)
	}

	w := &TerminationWarning{ID: p.ID, Label: p.Label, Phase: phase, Err: killErr}
	if killErr == nil {
		w.Err = fmt.Errorf("still running %s after forced kill", m.killTimeout)
	}
	metrics.RecordTermination(p.Label, string(PhaseUnconfirmed))
	logger.WithField("outcome", PhaseUnconfirmed).Warn(w.Error())
	res.add(Event{ID: p.ID, Label: p.Label, Phase: PhaseUnconfirmed, Err: w}, false)
	res.warn(w)
	return res
}

func (m *Manager) finish(logger *log.Entry, p registry.TrackedProcess, phase Phase, err error) Result {
	var res Result
	counted := m.confirm(p)
	if counted {
		metrics.RecordTermination(p.Label, string(phase))
	}
	logger.WithFields(log.Fields{"outcome": phase, "counted": counted}).Info("process confirmed absent")
	res.add(Event{ID: p.ID, Label: p.Label, Phase: phase, Err: err}, counted)
	return res
}

// reapRemnants force-kills whatever survived of p's tree after p itself
// exited. Failures are logged; the entry is still confirmed.
func (m *Manager) reapRemnants(ctx context.Context, logger *log.Entry, p registry.TrackedProcess, tree []int) {
	if err := m.term.KillRemnants(ctx, p.ID, tree); err != nil {
		logger.WithError(err).Warn("could not kill leftover descendants")
	}
}

// confirm drops a confirmed-absent entry and reports whether this caller removed it.
func (m *Manager) confirm(p registry.TrackedProcess) bool {
	removed := m.reg.Remove(p.ID)
	if removed {
		m.sampler.Forget(p.ID)
	}
	return removed
}

// waitExit blocks until p is confirmed absent or d elapses. Our own children
// are confirmed through their reaper; anything else is polled at the OS.
func (m *Manager) waitExit(ctx context.Context, p registry.TrackedProcess, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	if p.Done != nil {
		select {
		case <-p.Done:
			return true
		case <-timer.C:
			return false
		}
	}

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		if !m.term.Alive(ctx, p.ID) {
			return true
		}
		select {
		case <-timer.C:
			return !m.term.Alive(ctx, p.ID)
		case <-ticker.C:
		}
	}
}
