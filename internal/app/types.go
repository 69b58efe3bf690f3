package app

import (
	"strconv"
	"strings"
	"time"

	"battproc/internal/manager"
)

// Process mirrors a tracked registry entry with its latest sample.
type Process struct {
	PID         int
	Label       string
	Cmd         string
	LaunchedAt  time.Time
	Runtime     time.Duration
	CPUPercent  float64
	MemoryBytes uint64
	Sampled     bool
}

func procFromInfo(info manager.ProcessInfo) Process {
	p := Process{
		PID:        info.ID,
		Label:      info.Label,
		Cmd:        info.CommandLine(),
		LaunchedAt: info.LaunchedAt,
		Runtime:    info.Runtime,
		Sampled:    info.SampleOK,
	}
	if info.SampleOK {
		p.CPUPercent = info.Sample.CPUPercent
		p.MemoryBytes = info.Sample.MemoryBytes
	}
	return p
}

// Event kinds reported by Kill, Cleanup and Sweep.
const (
	EventTerminated = "terminated"
	EventGone       = "already_gone"
	EventWarning    = "warning"
)

// KillEvent describes one action taken during kill/cleanup/sweep.
type KillEvent struct {
	Kind  string
	PID   int
	Label string
	Name  string
	Phase string
	Err   error
}

func eventsFromResult(res manager.Result) []KillEvent {
	out := make([]KillEvent, 0, len(res.Events))
	for _, ev := range res.Events {
		kind := EventTerminated
		switch {
		case ev.Phase == manager.PhaseAlreadyGone:
			kind = EventGone
		case ev.Phase == manager.PhaseUnconfirmed, ev.Phase == manager.PhaseRequested:
			kind = EventWarning
		}
		out = append(out, KillEvent{
			Kind:  kind,
			PID:   ev.ID,
			Label: ev.Label,
			Name:  ev.Name,
			Phase: string(ev.Phase),
			Err:   ev.Err,
		})
	}
	return out
}

func warningsFromResult(res manager.Result) []string {
	if len(res.Warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		out = append(out, w.Error())
	}
	return out
}

func joinPIDs(pids []int, limit int) string {
	parts := make([]string, 0, limit+1)
	for i := 0; i < len(pids) && i < limit; i++ {
		parts = append(parts, strconv.Itoa(pids[i]))
	}
	if len(pids) > limit {
		parts = append(parts, "...")
	}
	return strings.Join(parts, ", ")
}
