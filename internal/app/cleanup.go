package app

import (
	"context"
	"fmt"
)

// CleanupParams configures the end-of-run cleanup.
type CleanupParams struct {
	Force bool
	// Sweep also terminates processes matching the workloads' sweep patterns,
	// which catches applications that detached from the launched process.
	Sweep     bool
	Workloads []string
}

// Cleanup terminates everything tracked, then optionally sweeps by name.
// The registry is always empty afterwards.
func (a *App) Cleanup(ctx context.Context, params CleanupParams) (KillResult, error) {
	var result KillResult
	res := a.mgr.CleanupAllTracked(ctx, params.Force)
	result.Events = eventsFromResult(res)
	result.Warnings = warningsFromResult(res)
	result.Terminated = res.Terminated

	if params.Sweep {
		swept, err := a.Sweep(ctx, SweepParams{Workloads: params.Workloads, Force: params.Force})
		if err != nil {
			return result, fmt.Errorf("sweep after cleanup: %w", err)
		}
		result.Events = append(result.Events, swept.Events...)
		result.Warnings = append(result.Warnings, swept.Warnings...)
		result.Terminated += swept.Terminated
	}

	if len(result.Events) == 0 && len(result.Warnings) == 0 {
		result.Message = "Nothing to clean up"
	}
	return result, nil
}
