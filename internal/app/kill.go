package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"battproc/internal/manager"
)

// KillParams configures kill command semantics.
type KillParams struct {
	IDs             []int
	Labels          []string
	AllowAll        bool
	Force           bool
	RequireSelector bool
}

// KillResult aggregates the command outcome.
type KillResult struct {
	Events     []KillEvent
	Warnings   []string
	Message    string
	Terminated int
}

// Kill terminates tracked processes selected by pid or label. AllowAll with
// no selector terminates everything tracked, like Cleanup without a sweep.
func (a *App) Kill(ctx context.Context, params KillParams) (KillResult, error) {
	var result KillResult
	noSelector := len(params.IDs) == 0 && len(params.Labels) == 0
	if params.RequireSelector && !params.AllowAll && noSelector {
		return result, errors.New("provide at least one selector (--pid/--label) or pass --all")
	}

	var targets []manager.Target
	for _, id := range params.IDs {
		if id <= 0 {
			return result, fmt.Errorf("invalid pid selector: %d", id)
		}
		targets = append(targets, manager.ByID(id))
	}
	for _, label := range params.Labels {
		clean := strings.TrimSpace(label)
		if clean == "" {
			return result, errors.New("label selectors must not be empty")
		}
		targets = append(targets, manager.ByLabel(clean))
	}

	var combined manager.Result
	if noSelector && params.AllowAll {
		combined = a.mgr.CleanupAllTracked(ctx, params.Force)
	} else {
		for _, target := range targets {
			res := a.mgr.Terminate(ctx, target, params.Force)
			combined.Terminated += res.Terminated
			combined.Events = append(combined.Events, res.Events...)
			combined.Warnings = append(combined.Warnings, res.Warnings...)
		}
	}

	result.Events = eventsFromResult(combined)
	result.Warnings = warningsFromResult(combined)
	result.Terminated = combined.Terminated
	if len(result.Events) == 0 {
		result.Message = "No tracked processes match the provided selectors"
	}
	return result, nil
}
