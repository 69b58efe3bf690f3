package main

import (
	"context"

	"battproc/internal/app"
	"battproc/internal/config"
)

// controllerAPI is the slice of app.App the commands use.
type controllerAPI interface {
	Config() config.Config
	Strategy() string
	Run(context.Context, app.RunParams) (app.RunResult, error)
	Sweep(context.Context, app.SweepParams) (app.SweepResult, error)
	List(context.Context, app.ListParams) ([]app.Process, error)
	Kill(context.Context, app.KillParams) (app.KillResult, error)
	Cleanup(context.Context, app.CleanupParams) (app.KillResult, error)
	Launch(context.Context, app.LaunchParams) (app.LaunchResult, error)
}

var (
	controllerFactory = func() (controllerAPI, error) {
		return app.New(app.Options{ConfigPath: configPath})
	}
	current controllerAPI
)

func controller() (controllerAPI, error) {
	if current != nil {
		return current, nil
	}
	ctrl, err := controllerFactory()
	if err != nil {
		return nil, err
	}
	current = ctrl
	return current, nil
}
