package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"battproc/internal/app"
	"battproc/internal/tui"
)

var tuiWorkloads []string

func init() {
	rootCmd.AddCommand(cmdTUI)
	cmdTUI.Flags().StringSliceVar(&tuiWorkloads, "workload", nil, "Configured workload to launch (repeatable; default: all with a command)")
}

var cmdTUI = &cobra.Command{
	Use:   "tui [-- <command> [args...]]",
	Short: "Launch workloads and monitor them in the interactive terminal UI",
	Long:  "Launches the selected workloads, shows their CPU and memory, and lets you terminate them. Quitting cleans up and sweeps.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controller()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		launched, err := ctrl.Launch(cmd.Context(), app.LaunchParams{Workloads: tuiWorkloads, Command: args})
		defer func() {
			res, cerr := ctrl.Cleanup(context.WithoutCancel(cmd.Context()), app.CleanupParams{
				Sweep:     len(args) == 0,
				Workloads: tuiWorkloads,
			})
			printKill(out, res.Events, res.Warnings)
			if cerr != nil {
				fmt.Fprintf(out, "Cleanup: %v\n", cerr)
			}
		}()
		if err != nil && launched.Launched == 0 {
			return err
		}

		if err := tui.Run(ctrl, ctrl.Config().SampleInterval); err != nil {
			return fmt.Errorf("tui exited with error: %w", err)
		}
		return nil
	},
}
