package manager

import (
	"context"
	"time"

	"github.com/containerd/log"

	"battproc/internal/metrics"
	"battproc/internal/registry"
	"battproc/internal/sampler"
)

// ProcessInfo is a tracked process with a fresh resource reading.
type ProcessInfo struct {
	registry.TrackedProcess
	Runtime  time.Duration
	Sample   sampler.Sample
	SampleOK bool
}

// Sample returns CPU and memory figures for a tracked pid. ok=false means
// "unavailable": the pid is not tracked, has exited, or could not be read.
func (m *Manager) Sample(ctx context.Context, id int) (sampler.Sample, bool) {
	p, ok := m.reg.Get(id)
	if !ok || p.Exited() {
		m.sampleUnavailable(ctx, id, p.Label, "not running")
		return sampler.Sample{}, false
	}
	s, ok := m.sampler.Sample(ctx, id)
	if !ok {
		m.sampleUnavailable(ctx, id, p.Label, "unreadable")
		return sampler.Sample{}, false
	}
	return s, true
}

func (m *Manager) sampleUnavailable(ctx context.Context, id int, label, reason string) {
	metrics.RecordSampleUnavailable()
	log.G(ctx).WithFields(log.Fields{
		"pid":     id,
		"label":   label,
		"outcome": "unavailable",
		"reason":  reason,
	}).Info("resource sample unavailable")
}

// Tracked reports every tracked process that is still running, each with a
// resource sample. Entries whose process has exited on its own are pruned.
func (m *Manager) Tracked(ctx context.Context) []ProcessInfo {
	m.Prune(ctx)
	entries := m.reg.List()
	out := make([]ProcessInfo, 0, len(entries))
	now := time.Now()
	for _, p := range entries {
		info := ProcessInfo{TrackedProcess: p, Runtime: now.Sub(p.LaunchedAt)}
		info.Sample, info.SampleOK = m.Sample(ctx, p.ID)
		out = append(out, info)
	}
	return out
}

// IsRunning reports whether id is tracked and has not exited.
func (m *Manager) IsRunning(ctx context.Context, id int) bool {
	p, ok := m.reg.Get(id)
	if !ok {
		return false
	}
	if p.Exited() {
		m.Prune(ctx)
		return false
	}
	return true
}

// Prune drops entries whose process exited without being terminated by us
// and returns how many were dropped.
func (m *Manager) Prune(ctx context.Context) int {
	pruned := m.reg.Prune()
	for _, p := range pruned {
		m.sampler.Forget(p.ID)
		log.G(ctx).WithFields(log.Fields{
			"label":    p.Label,
			"pid":      p.ID,
			"launched": p.LaunchedAt.Format(time.RFC3339),
		}).Warn("tracked process exited on its own")
	}
	if len(pruned) > 0 {
		m.publish()
	}
	return len(pruned)
}
