package app

import (
	"battproc/internal/config"
	"battproc/internal/manager"
	"battproc/internal/sampler"
)

// Options configures the top-level controller.
type Options struct {
	// ConfigPath points to the optional YAML config file.
	ConfigPath string
	// Config, when set, is used as-is instead of loading ConfigPath.
	Config *config.Config
	// Manager overrides the process manager built from the config.
	Manager *manager.Manager
}

// App exposes high-level operations that the CLI/TUI can reuse.
type App struct {
	cfgPath string
	cfg     config.Config
	mgr     *manager.Manager
}

// New constructs the shared controller facade.
func New(opts Options) (*App, error) {
	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	mgr := opts.Manager
	if mgr == nil {
		mgr = manager.New(managerOptions(cfg))
	}
	return &App{
		cfgPath: opts.ConfigPath,
		cfg:     cfg,
		mgr:     mgr,
	}, nil
}

func managerOptions(cfg config.Config) manager.Options {
	return manager.Options{
		GracePeriod:        cfg.GracePeriod,
		KillTimeout:        cfg.KillTimeout,
		NoEscalation:       !cfg.AutoEscalate,
		CleanupParallelism: cfg.CleanupParallelism,
		CaptureOutput:      cfg.CaptureOutput,
		Sampler:            sampler.New(cfg.SampleTimeout),
	}
}

// ConfigPath returns the configured config file path (if any).
func (a *App) ConfigPath() string {
	return a.cfgPath
}

// Config returns the effective configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Strategy names the platform termination strategy in use.
func (a *App) Strategy() string {
	return a.mgr.Strategy()
}
