package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "battproc"

var (
	registry = prometheus.NewRegistry()

	launches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "launches_total",
		Help:      "Launch attempts per label and outcome (ok, error).",
	}, []string{"label", "outcome"})

	terminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "terminations_total",
		Help:      "Tracked terminations per label and final phase.",
	}, []string{"label", "phase"})

	escalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escalations_total",
		Help:      "Graceful stops that had to be escalated to a forced kill.",
	}, []string{"label"})

	sweepKills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_terminated_total",
		Help:      "Processes ended by name sweeps, per matching pattern.",
	}, []string{"pattern"})

	sampleUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sample_unavailable_total",
		Help:      "Resource samples that returned no usable reading.",
	})

	tracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_processes",
		Help:      "Processes currently held in the registry.",
	})
)

func init() {
	registry.MustRegister(launches, terminations, escalations, sweepKills, sampleUnavailable, tracked)
}

// Registry returns the Prometheus registry containing all battproc metrics.
func Registry() *prometheus.Registry {
	return registry
}

// RecordLaunch counts one launch attempt.
func RecordLaunch(label string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	launches.WithLabelValues(label, outcome).Inc()
}

// RecordTermination counts a tracked termination that finished in phase.
func RecordTermination(label, phase string) {
	terminations.WithLabelValues(label, phase).Inc()
}

// RecordEscalation counts a graceful stop that timed out.
func RecordEscalation(label string) {
	escalations.WithLabelValues(label).Inc()
}

// RecordSweep adds n processes ended through pattern.
func RecordSweep(pattern string, n int) {
	if n <= 0 {
		return
	}
	sweepKills.WithLabelValues(pattern).Add(float64(n))
}

// RecordSampleUnavailable counts a missing resource reading.
func RecordSampleUnavailable() {
	sampleUnavailable.Inc()
}

// SetTracked publishes the registry size.
func SetTracked(n int) {
	tracked.Set(float64(n))
}
