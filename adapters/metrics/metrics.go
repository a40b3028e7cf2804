// Package metrics provides Prometheus metrics collection for tokenmeter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for tokenmeter.
type Collector struct {
	// Ledger metrics
	EventsTotal *prometheus.CounterVec
	UnitsTotal  *prometheus.CounterVec
	CostTotal   *prometheus.CounterVec

	// Policy metrics
	DecisionsTotal *prometheus.CounterVec

	// Persistence metrics
	PersistErrors   prometheus.Counter
	PersistDuration prometheus.Histogram
	CorruptLoads    prometheus.Counter

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a new metrics collector with all metrics registered on the
// default registry.
func New() *Collector {
	return newWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newWith(promauto.With(reg))
}

func newWith(factory promauto.Factory) *Collector {
	return &Collector{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "events_total",
				Help:      "Total number of usage events recorded",
			},
			[]string{"category"},
		),
		UnitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "units_total",
				Help:      "Total billing units recorded (tokens or characters)",
			},
			[]string{"category"},
		),
		CostTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "cost_total",
				Help:      "Total estimated cost recorded",
			},
			[]string{"category"},
		),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "decisions_total",
				Help:      "Policy decisions by outcome and code",
			},
			[]string{"outcome", "code"},
		),
		PersistErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "persist_errors_total",
				Help:      "Total number of failed ledger snapshot writes",
			},
		),
		PersistDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tokenmeter",
				Name:      "persist_duration_seconds",
				Help:      "Ledger snapshot write duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		CorruptLoads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "corrupt_loads_total",
				Help:      "Total number of snapshot loads discarded as corrupt",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenmeter",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}
