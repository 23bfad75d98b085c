package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

const namespace = "pipeprobe"

// Metrics collects Prometheus metrics about probe runs.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	events       *prometheus.CounterVec
	droppedLines prometheus.Counter
	activeRuns   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of probe runs started",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of probe runs finished, by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of probe runs in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of protocol events delivered, by type",
		}, []string{"type"}),
		droppedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_lines_total",
			Help:      "Total number of malformed protocol lines dropped",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of probe runs in flight",
		}),
	}

	m.registry.MustRegister(
		m.runsStarted,
		m.runsFinished,
		m.runDuration,
		m.events,
		m.droppedLines,
		m.activeRuns,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns run hooks that record into m.
func (m *Metrics) Hooks() domain.RunHooks {
	return domain.RunHooks{
		OnRunStart: func(context.Context, domain.RunRequest) {
			m.runsStarted.Inc()
			m.activeRuns.Inc()
		},
		OnEvent: func(_ context.Context, ev domain.Event) {
			m.events.WithLabelValues(string(ev.Type())).Inc()
		},
		OnLineDropped: func(context.Context, error) {
			m.droppedLines.Inc()
		},
		OnRunEnd: func(_ context.Context, outcome domain.RunOutcome, elapsed time.Duration) {
			m.activeRuns.Dec()
			m.runsFinished.WithLabelValues(string(outcome)).Inc()
			m.runDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
		},
	}
}
