// Package sampler reads best-effort CPU and memory figures for a process.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/containerd/log"
	"github.com/shirou/gopsutil/v4/process"
)

const defaultTimeout = 2 * time.Second

// Sample is one reading for a process.
type Sample struct {
	PID         int
	CPUPercent  float64
	MemoryBytes uint64
	At          time.Time
}

// Sampler reads instantaneous figures; ok=false means no usable reading.
type Sampler interface {
	Sample(ctx context.Context, pid int) (Sample, bool)
	Forget(pid int)
}

// Process samples through gopsutil. Handles are cached per pid so that CPU
// usage is measured between consecutive samples; the first reading is 0.
type Process struct {
	timeout time.Duration

	mu      sync.Mutex
	handles map[int]*process.Process
}

// New returns a sampler bounding each read by timeout.
func New(timeout time.Duration) *Process {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Process{
		timeout: timeout,
		handles: make(map[int]*process.Process),
	}
}

// Sample never fails the caller: a vanished or unreadable process yields
// ok=false and a debug record.
func (s *Process) Sample(ctx context.Context, pid int) (Sample, bool) {
	if pid <= 0 {
		return Sample{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := log.G(ctx).WithField("pid", pid)
	h, err := s.handle(ctx, pid)
	if err != nil {
		logger.WithError(err).Debug("sample unavailable: process lookup failed")
		return Sample{}, false
	}

	cpu, err := h.PercentWithContext(ctx, 0)
	if err != nil {
		s.Forget(pid)
		logger.WithError(err).Debug("sample unavailable: cpu read failed")
		return Sample{}, false
	}
	mem, err := h.MemoryInfoWithContext(ctx)
	if err != nil || mem == nil {
		s.Forget(pid)
		logger.WithError(err).Debug("sample unavailable: memory read failed")
		return Sample{}, false
	}
	return Sample{
		PID:         pid,
		CPUPercent:  cpu,
		MemoryBytes: mem.RSS,
		At:          time.Now().UTC(),
	}, true
}

// Forget drops the cached handle for pid. Call it once pid has exited so a
// recycled pid starts a fresh measurement.
func (s *Process) Forget(pid int) {
	s.mu.Lock()
	delete(s.handles, pid)
	s.mu.Unlock()
}

func (s *Process) handle(ctx context.Context, pid int) (*process.Process, error) {
	s.mu.Lock()
	h := s.handles[pid]
	s.mu.Unlock()
	if h != nil {
		return h, nil
	}
	h, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if cached := s.handles[pid]; cached != nil {
		h = cached
	} else {
		s.handles[pid] = h
	}
	s.mu.Unlock()
	return h, nil
}
