package bitwatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by the engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	nodesTotal   *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	hashedBytes  prometheus.Counter
	activeRuns   prometheus.Gauge
	retiredRoots prometheus.Counter
}

// NewMetrics creates the engine collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitwatch_nodes_total",
				Help: "Nodes classified by runs, by outcome",
			},
			[]string{"outcome"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitwatch_runs_total",
				Help: "Completed runs by mode and result",
			},
			[]string{"mode", "result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bitwatch_run_duration_seconds",
				Help:    "Wall time of a run over one root",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"mode"},
		),
		hashedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bitwatch_hashed_bytes_total",
				Help: "File content bytes streamed through hash algorithms",
			},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bitwatch_active_runs",
				Help: "Runs currently in flight",
			},
		),
		retiredRoots: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bitwatch_roots_retired_total",
				Help: "Roots removed because their directory disappeared",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.nodesTotal, m.runsTotal, m.runDuration, m.hashedBytes, m.activeRuns, m.retiredRoots)
	}
	return m
}

func (m *Metrics) observeOutcome(o RunOutcome) {
	if m == nil {
		return
	}
	m.nodesTotal.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) addHashedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.hashedBytes.Add(float64(n))
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

func (m *Metrics) runFinished(mode Mode, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runsTotal.WithLabelValues(mode.String(), result).Inc()
	m.runDuration.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) rootRetired() {
	if m == nil {
		return
	}
	m.retiredRoots.Inc()
}
