// Package metrics exposes the Prometheus collectors for the orchestration
// core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepRuns counts sweep invocations per procedure and result
	// (completed, skipped, error).
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launcher_sweep_runs_total",
		Help: "Number of sweep invocations by procedure and result.",
	}, []string{"procedure", "result"})

	// SweepItems counts per-item outcomes inside sweeps.
	SweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launcher_sweep_items_total",
		Help: "Number of items processed by sweeps, by procedure and outcome.",
	}, []string{"procedure", "outcome"})

	// SweepDuration observes wall time per sweep.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "launcher_sweep_duration_seconds",
		Help:    "Sweep duration by procedure.",
		Buckets: prometheus.DefBuckets,
	}, []string{"procedure"})

	// WebhookDeliveries counts delivery attempts by outcome.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launcher_webhook_deliveries_total",
		Help: "Number of webhook delivery attempts by outcome.",
	}, []string{"outcome"})
)
