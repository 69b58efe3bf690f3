package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/log"
	"gopkg.in/yaml.v3"
)

const (
	defaultGracePeriod        = 5 * time.Second
	defaultKillTimeout        = 3 * time.Second
	defaultSampleTimeout      = 2 * time.Second
	defaultSampleInterval     = 5 * time.Second
	defaultCleanupParallelism = 4
	defaultLogLevel           = "info"
	defaultLogFormat          = "text"

	envGracePeriod  = "BATTPROC_GRACE_PERIOD"
	envKillTimeout  = "BATTPROC_KILL_TIMEOUT"
	envAutoEscalate = "BATTPROC_AUTO_ESCALATE"
	envLogLevel     = "BATTPROC_LOG_LEVEL"
)

// Workload describes one application the run opens and later sweeps.
type Workload struct {
	Label    string
	Command  []string
	Patterns []string
}

// Config aggregates the tunables of a run.
type Config struct {
	GracePeriod        time.Duration
	KillTimeout        time.Duration
	AutoEscalate       bool
	SampleTimeout      time.Duration
	SampleInterval     time.Duration
	CleanupParallelism int
	StepTimeout        time.Duration
	CaptureOutput      bool
	LogLevel           string
	LogFormat          string
	MetricsAddr        string
	Workloads          map[string]Workload
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GracePeriod:        defaultGracePeriod,
		KillTimeout:        defaultKillTimeout,
		AutoEscalate:       true,
		SampleTimeout:      defaultSampleTimeout,
		SampleInterval:     defaultSampleInterval,
		CleanupParallelism: defaultCleanupParallelism,
		LogLevel:           defaultLogLevel,
		LogFormat:          defaultLogFormat,
		Workloads:          map[string]Workload{},
	}
}

// Load builds a Config from an optional YAML (or JSON) file plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// WorkloadNames returns configured workload names in stable order.
func (c Config) WorkloadNames() []string {
	names := make([]string, 0, len(c.Workloads))
	for name := range c.Workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SweepPatterns returns the union of patterns of the named workloads, or of
// every workload when names is empty.
func (c Config) SweepPatterns(names ...string) ([]string, error) {
	if len(names) == 0 {
		names = c.WorkloadNames()
	}
	seen := make(map[string]struct{})
	var out []string
	for _, name := range names {
		w, ok := c.Workloads[name]
		if !ok {
			return nil, fmt.Errorf("unknown workload %q", name)
		}
		for _, p := range w.Patterns {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envGracePeriod); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.GracePeriod = dur
		} else {
			log.L.WithField("env", envGracePeriod).Warnf("ignoring invalid value %q", v)
		}
	}

	if v := os.Getenv(envKillTimeout); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.KillTimeout = dur
		} else {
			log.L.WithField("env", envKillTimeout).Warnf("ignoring invalid value %q", v)
		}
	}

	if v := os.Getenv(envAutoEscalate); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoEscalate = b
		} else {
			log.L.WithField("env", envAutoEscalate).Warnf("ignoring invalid value %q", v)
		}
	}

	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		cfg.LogLevel = v
	}
}

type fileWorkload struct {
	Label    string   `yaml:"label"`
	Command  []string `yaml:"command"`
	Patterns []string `yaml:"patterns"`
}

type fileConfig struct {
	GracePeriod        string                  `yaml:"grace_period"`
	KillTimeout        string                  `yaml:"kill_timeout"`
	AutoEscalate       *bool                   `yaml:"auto_escalate"`
	SampleTimeout      string                  `yaml:"sample_timeout"`
	SampleInterval     string                  `yaml:"sample_interval"`
	CleanupParallelism int                     `yaml:"cleanup_parallelism"`
	StepTimeout        string                  `yaml:"step_timeout"`
	CaptureOutput      bool                    `yaml:"capture_output"`
	LogLevel           string                  `yaml:"log_level"`
	LogFormat          string                  `yaml:"log_format"`
	MetricsAddr        string                  `yaml:"metrics_addr"`
	Workloads          map[string]fileWorkload `yaml:"workloads"`
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
		zero  bool
	}{
		{"grace_period", raw.GracePeriod, &cfg.GracePeriod, false},
		{"kill_timeout", raw.KillTimeout, &cfg.KillTimeout, false},
		{"sample_timeout", raw.SampleTimeout, &cfg.SampleTimeout, false},
		{"sample_interval", raw.SampleInterval, &cfg.SampleInterval, false},
		{"step_timeout", raw.StepTimeout, &cfg.StepTimeout, true},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		dur, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		if dur < 0 || (dur == 0 && !d.zero) {
			return fmt.Errorf("%s must be > 0", d.key)
		}
		*d.dst = dur
	}

	if raw.AutoEscalate != nil {
		cfg.AutoEscalate = *raw.AutoEscalate
	}
	if raw.CleanupParallelism < 0 {
		return errors.New("cleanup_parallelism must be >= 0")
	}
	if raw.CleanupParallelism > 0 {
		cfg.CleanupParallelism = raw.CleanupParallelism
	}
	cfg.CaptureOutput = raw.CaptureOutput
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.LogFormat != "" {
		cfg.LogFormat = raw.LogFormat
	}
	cfg.MetricsAddr = raw.MetricsAddr

	for name, w := range raw.Workloads {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("workload name must not be empty")
		}
		if len(w.Command) == 0 && len(w.Patterns) == 0 {
			return fmt.Errorf("workload %q needs a command or sweep patterns", name)
		}
		label := strings.TrimSpace(w.Label)
		if label == "" {
			label = name
		}
		cfg.Workloads[name] = Workload{
			Label:    label,
			Command:  append([]string(nil), w.Command...),
			Patterns: append([]string(nil), w.Patterns...),
		}
	}

	return nil
}
