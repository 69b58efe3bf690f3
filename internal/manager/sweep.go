package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/log"

	"battproc/internal/metrics"
	"battproc/internal/terminate"
)

const startPollInterval = 500 * time.Millisecond

// TerminateByName ends every OS process whose executable name matches one of
// patterns, whether or not this manager launched it. There is no built-in
// pattern list: an empty set does nothing. Callers must restrict patterns to
// the run's own applications. Without force, survivors of the grace period
// are always escalated to a forced kill.
func (m *Manager) TerminateByName(ctx context.Context, patterns []string, force bool) Result {
	ctx = context.WithoutCancel(ctx)
	logger := log.G(ctx).WithFields(log.Fields{"patterns": patterns, "force": force})

	var res Result
	matcher, err := terminate.NewMatcher(patterns)
	if err != nil {
		logger.WithError(err).Warn("sweep skipped: invalid pattern set")
		res.warn(&TerminationWarning{Phase: PhaseUnconfirmed, Err: err})
		return res
	}
	if matcher.Empty() {
		logger.Debug("sweep skipped: no patterns")
		return res
	}

	matches, err := m.term.Find(ctx, matcher)
	if err != nil {
		logger.WithError(err).Warn("sweep could not enumerate processes")
		res.warn(&TerminationWarning{Phase: PhaseUnconfirmed, Err: fmt.Errorf("enumerate processes: %w", err)})
		return res
	}
	if len(matches) == 0 {
		logger.Info("sweep found no matching processes")
		return res
	}

	pending := matches
	if !force {
		for _, mt := range pending {
			if err := m.term.Interrupt(ctx, mt.PID); err != nil {
				logger.WithError(err).WithField("pid", mt.PID).Warn("sweep graceful request failed")
			}
		}
		var gone []terminate.Match
		gone, pending = m.waitGone(ctx, pending, m.grace)
		for _, mt := range gone {
			m.sweepEnded(ctx, &res, matcher, mt, PhaseGraceful, nil)
		}
		if len(pending) > 0 {
			logger.WithField("survivors", len(pending)).Warn("sweep escalating survivors to forced kill")
		}
	}

	phase := PhaseForced
	if !force {
		phase = PhaseEscalated
	}
	killErrs := make(map[int]error, len(pending))
	for _, mt := range pending {
		if err := m.term.Kill(ctx, mt.PID); err != nil {
			killErrs[mt.PID] = err
			logger.WithError(err).WithField("pid", mt.PID).Warn("sweep forced kill reported an error")
		}
	}
	gone, survivors := m.waitGone(ctx, pending, m.killTimeout)
	for _, mt := range gone {
		m.sweepEnded(ctx, &res, matcher, mt, phase, killErrs[mt.PID])
	}
	for _, mt := range survivors {
		w := &TerminationWarning{ID: mt.PID, Name: mt.Name, Phase: phase, Err: killErrs[mt.PID]}
		if w.Err == nil {
			w.Err = fmt.Errorf("still running %s after forced kill", m.killTimeout)
		}
		log.G(ctx).WithFields(log.Fields{"pid": mt.PID, "name": mt.Name, "outcome": PhaseUnconfirmed}).Warn(w.Error())
		res.add(Event{ID: mt.PID, Name: mt.Name, Phase: PhaseUnconfirmed, Err: w}, false)
		res.warn(w)
	}

	logger.WithFields(log.Fields{
		"matched":    len(matches),
		"terminated": res.Terminated,
		"warnings":   len(res.Warnings),
	}).Info("sweep finished")
	return res
}

func (m *Manager) sweepEnded(ctx context.Context, res *Result, matcher terminate.Matcher, mt terminate.Match, phase Phase, err error) {
	pattern, _ := matcher.Match(mt.Name)
	metrics.RecordSweep(pattern, 1)
	log.G(ctx).WithFields(log.Fields{
		"pid":     mt.PID,
		"name":    mt.Name,
		"pattern": pattern,
		"outcome": phase,
	}).Info("sweep ended process")
	res.add(Event{ID: mt.PID, Name: mt.Name, Phase: phase, Err: err}, true)
}

// waitGone polls until every match is absent or d elapses and splits the set.
func (m *Manager) waitGone(ctx context.Context, ms []terminate.Match, d time.Duration) (gone, alive []terminate.Match) {
	deadline := time.Now().Add(d)
	alive = ms
	for {
		var still []terminate.Match
		for _, mt := range alive {
			if m.term.Alive(ctx, mt.PID) {
				still = append(still, mt)
			} else {
				gone = append(gone, mt)
			}
		}
		alive = still
		if len(alive) == 0 || !time.Now().Before(deadline) {
			return gone, alive
		}
		time.Sleep(m.poll)
	}
}

// Matching lists the processes a sweep with patterns would select.
func (m *Manager) Matching(ctx context.Context, patterns []string) ([]terminate.Match, error) {
	matcher, err := terminate.NewMatcher(patterns)
	if err != nil {
		return nil, err
	}
	return m.term.Find(ctx, matcher)
}

// WaitForProcessStart polls until a process matching patterns exists, the
// timeout elapses, or ctx is done.
func (m *Manager) WaitForProcessStart(ctx context.Context, patterns []string, timeout time.Duration) bool {
	matcher, err := terminate.NewMatcher(patterns)
	if err != nil || matcher.Empty() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(startPollInterval)
	defer ticker.Stop()
	for {
		if found, err := m.term.Find(ctx, matcher); err == nil && len(found) > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
