// Package manager launches, tracks and reliably terminates the applications
// exercised by a battery run.
//
// A Manager owns exactly one registry for the lifetime of a run. Every
// operation may be called concurrently, e.g. from a watchdog that force-kills
// a workload step while the main loop is still driving it. Only registry
// bookkeeping is serialized; kill calls are idempotent and issued unlocked.
//
// Termination never fails the caller. Problems are logged and returned as
// TerminationWarnings inside a Result. The only error that crosses the
// package boundary is *LaunchError.
package manager

import (
	"time"

	"battproc/internal/metrics"
	"battproc/internal/registry"
	"battproc/internal/sampler"
	"battproc/internal/terminate"
)

const (
	defaultGracePeriod  = 5 * time.Second
	defaultKillTimeout  = 3 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultParallelism  = 4
	// Bounds how long Wait keeps copying output after the child exits when a
	// grandchild still holds its stdout open.
	outputWaitDelay = time.Second
)

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	// GracePeriod bounds the wait after a graceful stop request.
	GracePeriod time.Duration
	// KillTimeout bounds the wait for confirmation after a forced kill.
	KillTimeout time.Duration
	// NoEscalation leaves a process that outlives the grace period running
	// (reported as a warning) instead of force-killing it. Cleanup always
	// escalates.
	NoEscalation bool
	// CleanupParallelism bounds concurrent terminations during cleanup.
	CleanupParallelism int
	// PollInterval paces OS absence checks.
	PollInterval time.Duration
	// CaptureOutput forwards child stdout/stderr to the debug log.
	CaptureOutput bool

	Terminator terminate.Terminator
	Sampler    sampler.Sampler
}

// Manager is the public surface of the process lifecycle core.
type Manager struct {
	reg     *registry.Registry
	term    terminate.Terminator
	sampler sampler.Sampler

	grace         time.Duration
	killTimeout   time.Duration
	escalate      bool
	parallelism   int
	poll          time.Duration
	captureOutput bool
}

// New builds a Manager with an empty registry.
func New(opts Options) *Manager {
	m := &Manager{
		reg:           registry.New(),
		term:          opts.Terminator,
		sampler:       opts.Sampler,
		grace:         opts.GracePeriod,
		killTimeout:   opts.KillTimeout,
		escalate:      !opts.NoEscalation,
		parallelism:   opts.CleanupParallelism,
		poll:          opts.PollInterval,
		captureOutput: opts.CaptureOutput,
	}
	if m.term == nil {
		m.term = terminate.New()
	}
	if m.sampler == nil {
		m.sampler = sampler.New(0)
	}
	if m.grace <= 0 {
		m.grace = defaultGracePeriod
	}
	if m.killTimeout <= 0 {
		m.killTimeout = defaultKillTimeout
	}
	if m.parallelism <= 0 {
		m.parallelism = defaultParallelism
	}
	if m.poll <= 0 {
		m.poll = defaultPollInterval
	}
	return m
}

// Len returns the number of tracked processes.
func (m *Manager) Len() int {
	return m.reg.Len()
}

// Strategy names the platform termination strategy in use.
func (m *Manager) Strategy() string {
	return m.term.Name()
}

func (m *Manager) publish() {
	metrics.SetTracked(m.reg.Len())
}
