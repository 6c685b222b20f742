// Package metrics holds the prometheus collectors of the mixing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mixer"

// Engine groups the engine's collectors. Counters are safe to update from
// the process thread.
type Engine struct {
	Cycles              prometheus.Counter
	SilencedCycles      prometheus.Counter
	DeferredChanges     prometheus.Counter
	ReconfigureFailures prometheus.Counter
	ReturnSkips         prometheus.Counter
	WorstLatency        prometheus.Gauge
	UnresolvedSends     prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Engine {
	f := promauto.With(reg)
	return &Engine{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of process cycles run",
		}),
		SilencedCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silenced_cycles_total",
			Help:      "Route cycles output as silence because the processor list was locked",
		}),
		DeferredChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_changes_total",
			Help:      "Processor order changes applied at the start of a cycle",
		}),
		ReconfigureFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconfigure_failures_total",
			Help:      "Chain changes rolled back because no channel configuration was possible",
		}),
		ReturnSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "return_skips_total",
			Help:      "Internal return merges skipped because the send list was locked",
		}),
		WorstLatency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worst_latency_samples",
			Help:      "Largest playback latency of any route",
		}),
		UnresolvedSends: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_sends",
			Help:      "Internal sends whose target route does not exist",
		}),
	}
}
