package main

import (
	"os"

	"github.com/containerd/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "battproc [command]",
	Short: "battproc: process lifecycle manager for battery-endurance runs",
	Long: `battproc launches the applications exercised by a battery run, tracks them,
and reliably terminates them (and anything they spawned) when the run ends.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controller()
		if err != nil {
			return err
		}
		return setupLogging(ctrl.Config().LogLevel, ctrl.Config().LogFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text or json); overrides the config")
}

func setupLogging(cfgLevel, cfgFormat string) error {
	level := cfgLevel
	if logLevel != "" {
		level = logLevel
	}
	format := cfgFormat
	if logFormat != "" {
		format = logFormat
	}
	if level != "" {
		if err := log.SetLevel(level); err != nil {
			return err
		}
	}
	if format != "" {
		if err := log.SetFormat(log.OutputFormat(format)); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.L.WithError(err).Error("battproc failed")
		os.Exit(1)
	}
}
