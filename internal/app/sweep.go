package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SweepParams configures a by-name sweep. Patterns and the patterns of the
// named workloads are combined; with neither, every workload's patterns apply.
type SweepParams struct {
	Patterns  []string
	Workloads []string
	Force     bool
	DryRun    bool
}

// SweepMatch is one OS process a sweep selected.
type SweepMatch struct {
	PID     int
	Name    string
	Cmdline string
}

// SweepResult aggregates the command outcome.
type SweepResult struct {
	Patterns   []string
	Matches    []SweepMatch
	Events     []KillEvent
	Warnings   []string
	Message    string
	Terminated int
}

// Sweep terminates every OS process whose executable name matches the
// resolved patterns. With DryRun it only reports the matches.
func (a *App) Sweep(ctx context.Context, params SweepParams) (SweepResult, error) {
	var result SweepResult
	patterns, err := a.sweepPatterns(params)
	if err != nil {
		return result, err
	}
	result.Patterns = patterns
	if len(patterns) == 0 {
		result.Message = "No sweep patterns configured"
		return result, nil
	}

	if params.DryRun {
		matches, err := a.mgr.Matching(ctx, patterns)
		if err != nil {
			return result, fmt.Errorf("list matching processes: %w", err)
		}
		pids := make([]int, 0, len(matches))
		for _, m := range matches {
			result.Matches = append(result.Matches, SweepMatch{PID: m.PID, Name: m.Name, Cmdline: m.Cmdline})
			pids = append(pids, m.PID)
		}
		if len(pids) == 0 {
			result.Message = "No running processes match the sweep patterns"
		} else {
			result.Message = fmt.Sprintf("Would terminate %d processes (pids: %s)", len(pids), joinPIDs(pids, 10))
		}
		return result, nil
	}

	res := a.mgr.TerminateByName(ctx, patterns, params.Force)
	result.Events = eventsFromResult(res)
	result.Warnings = warningsFromResult(res)
	result.Terminated = res.Terminated
	if len(result.Events) == 0 && len(result.Warnings) == 0 {
		result.Message = "No running processes match the sweep patterns"
	}
	return result, nil
}

func (a *App) sweepPatterns(params SweepParams) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) error {
		clean := strings.TrimSpace(p)
		if clean == "" {
			return errors.New("sweep patterns must not be empty")
		}
		if _, dup := seen[clean]; !dup {
			seen[clean] = struct{}{}
			out = append(out, clean)
		}
		return nil
	}

	for _, p := range params.Patterns {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	if len(params.Patterns) > 0 && len(params.Workloads) == 0 {
		return out, nil
	}
	fromConfig, err := a.cfg.SweepPatterns(params.Workloads...)
	if err != nil {
		return nil, err
	}
	for _, p := range fromConfig {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}
