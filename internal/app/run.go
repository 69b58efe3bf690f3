package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/containerd/log"
)

// RunParams configures a full launch, hold and cleanup cycle.
type RunParams struct {
	Launch LaunchParams
	// Duration bounds the hold; zero holds until ctx is done or every
	// tracked process has exited.
	Duration time.Duration
	Force    bool
	NoSweep  bool
	// OnSample receives the tracked processes every sample interval.
	OnSample func([]Process)
}

// RunResult aggregates the outcome of every phase.
type RunResult struct {
	Launch        LaunchResult
	Cleanup       KillResult
	Samples       int
	Interrupted   bool
	WatchdogFired bool
}

// Run launches the selected workloads, holds them while sampling, and always
// cleans up afterwards, including when ctx is cancelled mid-hold. Workload
// runs also sweep the workloads' patterns; ad-hoc command runs do not. A
// positive step_timeout arms a watchdog that force-cleans the run if the hold
// outlives it.
func (a *App) Run(ctx context.Context, params RunParams) (RunResult, error) {
	var result RunResult
	logger := log.G(ctx)

	launch, launchErr := a.Launch(ctx, params.Launch)
	result.Launch = launch
	if launchErr != nil {
		logger.WithError(launchErr).Warn("launch phase reported errors")
	}

	if launch.Launched > 0 {
		stopWatchdog := a.armWatchdog(ctx, &result)
		result.Samples, result.Interrupted = a.hold(ctx, params)
		stopWatchdog()
	}

	cleanupCtx := context.WithoutCancel(ctx)
	cleanup, err := a.Cleanup(cleanupCtx, CleanupParams{
		Force:     params.Force,
		Sweep:     !params.NoSweep && len(params.Launch.Command) == 0,
		Workloads: params.Launch.Workloads,
	})
	result.Cleanup = cleanup
	return result, errors.Join(launchErr, err)
}

func (a *App) hold(ctx context.Context, params RunParams) (samples int, interrupted bool) {
	var deadline <-chan time.Time
	if params.Duration > 0 {
		timer := time.NewTimer(params.Duration)
		defer timer.Stop()
		deadline = timer.C
	}
	interval := a.cfg.SampleInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.G(ctx).Warn("run interrupted, cleaning up")
			return samples, true
		case <-deadline:
			return samples, false
		case <-ticker.C:
			procs, _ := a.List(ctx, ListParams{})
			samples++
			if params.OnSample != nil {
				params.OnSample(procs)
			}
			if len(procs) == 0 {
				log.G(ctx).Info("no tracked process left running, ending hold")
				return samples, false
			}
		}
	}
}

// armWatchdog force-cleans the run once step_timeout elapses. The returned
// func disarms it and waits for a cleanup already in progress.
func (a *App) armWatchdog(ctx context.Context, result *RunResult) func() {
	timeout := a.cfg.StepTimeout
	if timeout <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		log.G(ctx).WithField("step_timeout", timeout).Warn("watchdog fired, force-killing tracked processes")
		res := a.mgr.CleanupAllTracked(ctx, true)
		result.WatchdogFired = true
		log.G(ctx).WithField("terminated", res.Terminated).Info("watchdog cleanup finished")
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}
