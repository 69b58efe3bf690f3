package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"battproc/internal/app"
	"battproc/internal/metrics"
)

var (
	runWorkloads   []string
	runLabel       string
	runDuration    time.Duration
	runForce       bool
	runNoSweep     bool
	runWaitStart   time.Duration
	runMetricsAddr string
	runNoSpinner   bool
)

func init() {
	rootCmd.AddCommand(cmdRun)

	cmdRun.Flags().StringSliceVar(&runWorkloads, "workload", nil, "Configured workload to launch (repeatable; default: all with a command)")
	cmdRun.Flags().StringVar(&runLabel, "label", "", "Label for an ad-hoc command given after --")
	cmdRun.Flags().DurationVar(&runDuration, "duration", 0, "How long to hold the workloads (0 = until interrupted or all exit)")
	cmdRun.Flags().BoolVar(&runForce, "force", false, "Skip the graceful stop during cleanup")
	cmdRun.Flags().BoolVar(&runNoSweep, "no-sweep", false, "Do not sweep workload patterns after cleanup")
	cmdRun.Flags().DurationVar(&runWaitStart, "wait-start", 0, "Wait up to this long for each workload's process to appear")
	cmdRun.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides the config)")
	cmdRun.Flags().BoolVar(&runNoSpinner, "no-spinner", false, "Disable the progress spinner")
}

var cmdRun = &cobra.Command{
	Use:   "run [--workload name...] [-- <command> [args...]]",
	Short: "Launch workloads, hold them, then clean up",
	Long: `Launches the selected workloads (or the command after --), samples their CPU
and memory while holding, and always terminates everything it started when the
hold ends, the watchdog fires, or the run is interrupted with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controller()
		if err != nil {
			return err
		}
		if len(args) > 0 && len(runWorkloads) > 0 {
			return fmt.Errorf("pass either --workload or a command after --, not both")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := runMetricsAddr
		if addr == "" {
			addr = ctrl.Config().MetricsAddr
		}
		if addr != "" {
			srv, err := metrics.Listen(ctx, addr)
			if err != nil {
				return fmt.Errorf("serve metrics: %w", err)
			}
			defer srv.Close()
		}

		out := cmd.OutOrStdout()
		progress := newProgress(out, runNoSpinner)
		progress.Start()
		res, runErr := ctrl.Run(ctx, app.RunParams{
			Launch: app.LaunchParams{
				Workloads: runWorkloads,
				Command:   args,
				Label:     runLabel,
				WaitStart: runWaitStart,
			},
			Duration: runDuration,
			Force:    runForce,
			NoSweep:  runNoSweep,
			OnSample: func(procs []app.Process) {
				progress.Update(procs)
				logSamples(ctx, procs)
			},
		})
		progress.Stop()

		printRun(out, res)
		return runErr
	},
}

// progress wraps the spinner so it can be disabled for non-interactive runs.
type progress struct {
	spin *spinner.Spinner
}

func newProgress(w io.Writer, disabled bool) *progress {
	if disabled {
		return &progress{}
	}
	s := spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Holding workloads..."
	return &progress{spin: s}
}

func (p *progress) Start() {
	if p.spin != nil {
		p.spin.Start()
	}
}

func (p *progress) Stop() {
	if p.spin != nil {
		p.spin.Stop()
	}
}

func (p *progress) Update(procs []app.Process) {
	if p.spin == nil {
		return
	}
	p.spin.Lock()
	p.spin.Suffix = fmt.Sprintf(" Holding %d process(es)...", len(procs))
	p.spin.Unlock()
}

func logSamples(ctx context.Context, procs []app.Process) {
	for _, p := range procs {
		entry := log.G(ctx).WithFields(log.Fields{
			"label":   p.Label,
			"pid":     p.PID,
			"runtime": p.Runtime.Truncate(time.Second).String(),
		})
		if !p.Sampled {
			entry.Debug("sample unavailable")
			continue
		}
		entry.WithFields(log.Fields{
			"cpu_percent":  fmt.Sprintf("%.1f", p.CPUPercent),
			"memory_bytes": p.MemoryBytes,
		}).Info("resource sample")
	}
}

func printRun(w io.Writer, res app.RunResult) {
	for _, ev := range res.Launch.Events {
		switch {
		case ev.Err != nil && ev.PID > 0:
			fmt.Fprintf(w, "Launched %s pid=%d but it did not start: %v\n", ev.Label, ev.PID, ev.Err)
			continue
		case ev.Err != nil:
			fmt.Fprintf(w, "Failed to launch %s: %v\n", valueOrDash(ev.Label), ev.Err)
			continue
		}
		fmt.Fprintf(w, "Launched %s pid=%d\n", ev.Label, ev.PID)
	}
	if res.Interrupted {
		fmt.Fprintln(w, "Run interrupted")
	}
	if res.WatchdogFired {
		fmt.Fprintln(w, "Watchdog fired: step timeout exceeded, tracked processes were force-killed")
	}
	printKill(w, res.Cleanup.Events, res.Cleanup.Warnings)
	fmt.Fprintf(w, "Cleanup terminated %d process(es)\n", res.Cleanup.Terminated)
}
