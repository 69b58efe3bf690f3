//go:build !windows

package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/containerd/errdefs"

	"battproc/internal/config"
	"battproc/internal/manager"
	"battproc/internal/terminate"
)

func TestAppLaunchListKill(t *testing.T) {
	a := newTestApp(t, testConfig(), terminate.New())

	launched, err := a.Launch(context.Background(), LaunchParams{Workloads: []string{"browser"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if launched.Launched != 1 || launched.Events[0].PID <= 0 || launched.Events[0].Label != "browser" {
		t.Fatalf("unexpected launch result %+v", launched)
	}

	procs, err := a.List(context.Background(), ListParams{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(procs) != 1 || procs[0].PID != launched.Events[0].PID || procs[0].Cmd != "sleep 30" {
		t.Fatalf("unexpected processes %+v", procs)
	}
	if procs, _ := a.List(context.Background(), ListParams{Labels: []string{"office"}}); len(procs) != 0 {
		t.Fatalf("label filter should exclude browser, got %+v", procs)
	}

	res, err := a.Kill(context.Background(), KillParams{Labels: []string{"browser"}, Force: true, RequireSelector: true})
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if res.Terminated != 1 {
		t.Fatalf("expected 1 terminated, got %+v", res)
	}
	if procs, _ := a.List(context.Background(), ListParams{}); len(procs) != 0 {
		t.Fatalf("expected empty list after kill, got %+v", procs)
	}
}

func TestAppKillAllTracked(t *testing.T) {
	a := newTestApp(t, testConfig(), terminate.New())
	for _, label := range []string{"browser", "office"} {
		if _, err := a.Launch(context.Background(), LaunchParams{Command: []string{"sleep", "30"}, Label: label}); err != nil {
			t.Fatalf("Launch %s: %v", label, err)
		}
	}

	res, err := a.Kill(context.Background(), KillParams{AllowAll: true, RequireSelector: true})
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if res.Terminated != 2 {
		t.Fatalf("expected 2 terminated, got %d", res.Terminated)
	}
}

func TestAppLaunchMissingExecutable(t *testing.T) {
	a := newTestApp(t, testConfig(), terminate.New())
	res, err := a.Launch(context.Background(), LaunchParams{Command: []string{"battproc-no-such-binary"}, Label: "ghost"})
	if err == nil {
		t.Fatalf("expected launch error")
	}
	var lerr *manager.LaunchError
	if !errors.As(err, &lerr) || !errdefs.IsNotFound(err) {
		t.Fatalf("expected not-found LaunchError, got %v", err)
	}
	if res.Launched != 0 || len(res.Events) != 1 || res.Events[0].Label != "ghost" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAppLaunchWaitStartTimeoutIsNotCounted(t *testing.T) {
	cfg := testConfig()
	cfg.Workloads["video"] = config.Workload{
		Label:    "video",
		Command:  []string{"sleep", "30"},
		Patterns: []string{"battproc-never-appears"},
	}
	a := newTestApp(t, cfg, terminate.New())

	res, err := a.Launch(context.Background(), LaunchParams{Workloads: []string{"video"}, WaitStart: 300 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected an error when the expected process never appears")
	}
	if res.Launched != 0 || len(res.Events) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	ev := res.Events[0]
	if ev.PID <= 0 || ev.Started || ev.Err == nil {
		t.Fatalf("expected a tracked pid with an error, got %+v", ev)
	}

	cleanup, err := a.Cleanup(context.Background(), CleanupParams{})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if cleanup.Terminated != 1 {
		t.Fatalf("expected the launcher to stay tracked for cleanup, got %+v", cleanup)
	}
}

func TestAppRunHoldsThenCleansUp(t *testing.T) {
	a := newTestApp(t, testConfig(), terminate.New())

	var samples atomic.Int32
	res, err := a.Run(context.Background(), RunParams{
		Launch:   LaunchParams{Workloads: []string{"browser"}},
		Duration: 300 * time.Millisecond,
		NoSweep:  true,
		OnSample: func(procs []Process) {
			if len(procs) == 1 {
				samples.Add(1)
			}
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Launch.Launched != 1 {
		t.Fatalf("expected 1 launched, got %+v", res.Launch)
	}
	if samples.Load() == 0 {
		t.Fatalf("expected at least one sample during hold")
	}
	if res.Cleanup.Terminated != 1 {
		t.Fatalf("expected cleanup to terminate 1, got %+v", res.Cleanup)
	}
	if res.Interrupted || res.WatchdogFired {
		t.Fatalf("unexpected flags %+v", res)
	}
}

func TestAppRunInterrupted(t *testing.T) {
	a := newTestApp(t, testConfig(), terminate.New())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)

	res, err := a.Run(ctx, RunParams{
		Launch:  LaunchParams{Command: []string{"sleep", "30"}, Label: "video"},
		NoSweep: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Interrupted {
		t.Fatalf("expected interrupted run")
	}
	if res.Cleanup.Terminated != 1 {
		t.Fatalf("expected cleanup after interrupt, got %+v", res.Cleanup)
	}
}

func TestAppRunWatchdog(t *testing.T) {
	cfg := testConfig()
	cfg.StepTimeout = 200 * time.Millisecond
	a := newTestApp(t, cfg, terminate.New())

	start := time.Now()
	res, err := a.Run(context.Background(), RunParams{
		Launch:   LaunchParams{Command: []string{"sleep", "30"}, Label: "video"},
		Duration: 10 * time.Second,
		NoSweep:  true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.WatchdogFired {
		t.Fatalf("expected watchdog to fire")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("hold should end once the watchdog emptied the run, took %v", elapsed)
	}
	if res.Cleanup.Terminated != 0 {
		t.Fatalf("watchdog already terminated everything, cleanup reported %+v", res.Cleanup)
	}
}
