package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all Prometheus metrics for OptionRun on a dedicated
// registry so tests can gather in isolation.
type Registry struct {
	reg *prometheus.Registry

	// Order flow
	OrdersSubmitted *prometheus.CounterVec // by side
	OrderOutcomes   *prometheus.CounterVec // by terminal status
	SubmitRetries   prometheus.Counter

	// Risk
	RiskViolations *prometheus.CounterVec // by rule
	ForcedCloses   prometheus.Counter

	// Positions
	OpenPositions prometheus.Gauge

	// Fill polling
	FillWaitSeconds prometheus.Histogram
}

// NewRegistry creates and registers all OptionRun metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		OrdersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionrun_orders_submitted_total",
				Help: "Total orders submitted to the broker adapter by side",
			},
			[]string{"side"},
		),

		OrderOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionrun_order_outcomes_total",
				Help: "Terminal order outcomes by status",
			},
			[]string{"status"},
		),

		SubmitRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "optionrun_submit_retries_total",
				Help: "Submission retries after transient adapter errors",
			},
		),

		RiskViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionrun_risk_violations_total",
				Help: "Risk limit breaches by rule",
			},
			[]string{"rule"},
		),

		ForcedCloses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "optionrun_forced_closes_total",
				Help: "Positions closed by the force-close window",
			},
		),

		OpenPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "optionrun_open_positions",
				Help: "Number of currently open positions",
			},
		),

		FillWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "optionrun_fill_wait_seconds",
				Help:    "Time between order submission and terminal status",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
		),
	}

	r.reg.MustRegister(
		r.OrdersSubmitted,
		r.OrderOutcomes,
		r.SubmitRetries,
		r.RiskViolations,
		r.ForcedCloses,
		r.OpenPositions,
		r.FillWaitSeconds,
	)
	return r
}

// Prometheus exposes the underlying registry for HTTP exposition and test
// gathering.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}
