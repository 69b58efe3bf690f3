package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/log"
)

// LaunchParams selects what to start: an ad-hoc Command, or configured
// workloads by name (all workloads with a command when both are empty).
type LaunchParams struct {
	Workloads []string
	Command   []string
	Label     string
	// WaitStart, when positive, waits for a process matching the workload's
	// sweep patterns to appear after launch.
	WaitStart time.Duration
}

// LaunchEvent reports one launch attempt.
type LaunchEvent struct {
	Workload string
	Label    string
	PID      int
	Started  bool
	Err      error
}

// LaunchResult aggregates the command outcome. Launched counts only steps
// that started; a step whose expected process never appeared carries both
// a PID and an Err.
type LaunchResult struct {
	Events   []LaunchEvent
	Launched int
}

type launchStep struct {
	workload string
	label    string
	command  []string
	patterns []string
}

// Launch starts the selected commands and tracks each one.
func (a *App) Launch(ctx context.Context, params LaunchParams) (LaunchResult, error) {
	var result LaunchResult
	steps, err := a.launchSteps(params)
	if err != nil {
		return result, err
	}
	if len(steps) == 0 {
		return result, errors.New("nothing to launch: pass a command or configure workloads with a command")
	}

	for _, step := range steps {
		ev := LaunchEvent{Workload: step.workload, Label: step.label}
		pid, err := a.mgr.LaunchAndTrack(ctx, step.command, step.label)
		if err != nil {
			ev.Err = err
			result.Events = append(result.Events, ev)
			continue
		}
		ev.PID = pid
		if params.WaitStart > 0 && len(step.patterns) > 0 &&
			!a.mgr.WaitForProcessStart(ctx, step.patterns, params.WaitStart) {
			// The launcher stays tracked so cleanup still reaches it.
			ev.Err = fmt.Errorf("%s: no process matching %v appeared within %s",
				step.label, step.patterns, params.WaitStart)
			log.G(ctx).WithFields(log.Fields{
				"label":    step.label,
				"pid":      pid,
				"patterns": step.patterns,
			}).Warn("no matching process appeared after launch")
			result.Events = append(result.Events, ev)
			continue
		}
		ev.Started = true
		result.Events = append(result.Events, ev)
		result.Launched++
	}

	switch {
	case result.Launched == len(steps):
		return result, nil
	case result.Launched == 0:
		return result, errors.Join(launchErrors(result.Events)...)
	default:
		return result, fmt.Errorf("partially successful: launched %d/%d commands", result.Launched, len(steps))
	}
}

func (a *App) launchSteps(params LaunchParams) ([]launchStep, error) {
	if len(params.Command) > 0 {
		return []launchStep{{
			label:   strings.TrimSpace(params.Label),
			command: append([]string(nil), params.Command...),
		}}, nil
	}

	names := params.Workloads
	explicit := len(names) > 0
	if !explicit {
		names = a.cfg.WorkloadNames()
	}
	steps := make([]launchStep, 0, len(names))
	for _, name := range names {
		w, ok := a.cfg.Workloads[name]
		if !ok {
			return nil, fmt.Errorf("unknown workload %q", name)
		}
		if len(w.Command) == 0 {
			if explicit {
				return nil, fmt.Errorf("workload %q has no command to launch", name)
			}
			continue
		}
		steps = append(steps, launchStep{
			workload: name,
			label:    w.Label,
			command:  append([]string(nil), w.Command...),
			patterns: append([]string(nil), w.Patterns...),
		})
	}
	return steps, nil
}

func launchErrors(events []LaunchEvent) []error {
	errs := make([]error, 0, len(events))
	for _, ev := range events {
		if ev.Err != nil {
			errs = append(errs, ev.Err)
		}
	}
	return errs
}
