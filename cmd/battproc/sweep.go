package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"battproc/internal/app"
)

var (
	sweepPatterns  []string
	sweepWorkloads []string
	sweepForce     bool
	sweepDryRun    bool
)

func init() {
	rootCmd.AddCommand(cmdSweep)
	cmdSweep.Flags().StringSliceVar(&sweepPatterns, "pattern", nil, "Executable name or glob to terminate (repeatable)")
	cmdSweep.Flags().StringSliceVar(&sweepWorkloads, "workload", nil, "Use the sweep patterns of this workload (repeatable)")
	cmdSweep.Flags().BoolVar(&sweepForce, "force", false, "Kill immediately instead of asking first")
	cmdSweep.Flags().BoolVar(&sweepDryRun, "dry-run", false, "Only list the processes that would be terminated")
}

var cmdSweep = &cobra.Command{
	Use:   "sweep",
	Short: "Terminate leftover workload processes by executable name",
	Long: `Terminates every running process whose executable name matches the given
patterns, or the configured workload patterns when none are given. Matching is
case-insensitive and ignores a trailing .exe. Never pass patterns that could
match system processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controller()
		if err != nil {
			return err
		}
		res, err := ctrl.Sweep(cmd.Context(), app.SweepParams{
			Patterns:  sweepPatterns,
			Workloads: sweepWorkloads,
			Force:     sweepForce,
			DryRun:    sweepDryRun,
		})
		out := cmd.OutOrStdout()
		if res.Message != "" {
			fmt.Fprintln(out, res.Message)
		}
		for _, m := range res.Matches {
			fmt.Fprintf(out, "pid=%d name=%s cmd=%s\n", m.PID, m.Name, valueOrDash(m.Cmdline))
		}
		printKill(out, res.Events, res.Warnings)
		if err != nil {
			return err
		}
		if !sweepDryRun && len(res.Events) > 0 {
			fmt.Fprintf(out, "Swept %d process(es)\n", res.Terminated)
		}
		return nil
	},
}

func printKill(w io.Writer, events []app.KillEvent, warnings []string) {
	for _, ev := range events {
		who := ev.Label
		if who == "" {
			who = ev.Name
		}
		switch ev.Kind {
		case app.EventTerminated:
			fmt.Fprintf(w, "Terminated pid=%d %s (%s)\n", ev.PID, valueOrDash(who), ev.Phase)
		case app.EventGone:
			fmt.Fprintf(w, "Already exited pid=%d %s\n", ev.PID, valueOrDash(who))
		}
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
