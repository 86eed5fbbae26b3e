// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics instruments discovery, evaluation, and critical-flow
// metric runs for Prometheus scraping, adapted from the teacher's
// internal/metrics.Registry (a struct of named prometheus.Collector fields
// registered once at startup) from nftables/interface counters onto this
// engine's own operations.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric this engine exports.
type Registry struct {
	DiscoveryRuns     prometheus.Counter
	DiscoveryDuration prometheus.Histogram
	FlowsDiscovered   prometheus.Gauge

	EvaluationRuns     *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	FlowsFailed        prometheus.Gauge

	MetricRuns     *prometheus.CounterVec
	MetricDuration *prometheus.HistogramVec

	// Registerer is exposed so internal/api's /metrics handler can build a
	// promhttp.HandlerFor against the same registry Get() populated,
	// instead of the global DefaultRegisterer (keeps repeated Get() calls
	// in tests from panicking on duplicate registration).
	Registerer *prometheus.Registry
}

var (
	registry *Registry
	once     sync.Once
)

// Get returns the process-wide Registry, constructing and registering it
// against its own prometheus.Registry on first use.
func Get() *Registry {
	once.Do(func() { registry = newRegistry() })
	return registry
}

func newRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		Registerer: reg,
		DiscoveryRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmesh",
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Number of flow-catalog discovery runs.",
		}),
		DiscoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowmesh",
			Subsystem: "discovery",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a discovery run.",
			Buckets:   prometheus.DefBuckets,
		}),
		FlowsDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowmesh",
			Subsystem: "discovery",
			Name:      "flows_discovered",
			Help:      "Number of flows produced by the last discovery run.",
		}),
		EvaluationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmesh",
			Subsystem: "evaluation",
			Name:      "runs_total",
			Help:      "Number of single-failure evaluation runs, by outcome.",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowmesh",
			Subsystem: "evaluation",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of an evaluation run.",
			Buckets:   prometheus.DefBuckets,
		}),
		FlowsFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowmesh",
			Subsystem: "evaluation",
			Name:      "flows_failed",
			Help:      "Number of flows that failed to route in the last evaluation run.",
		}),
		MetricRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmesh",
			Subsystem: "metric",
			Name:      "runs_total",
			Help:      "Number of critical-flow probability metric runs, by variant.",
		}, []string{"variant"}),
		MetricDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowmesh",
			Subsystem: "metric",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a critical-flow metric run, by variant.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"variant"}),
	}
	reg.MustRegister(
		r.DiscoveryRuns,
		r.DiscoveryDuration,
		r.FlowsDiscovered,
		r.EvaluationRuns,
		r.EvaluationDuration,
		r.FlowsFailed,
		r.MetricRuns,
		r.MetricDuration,
	)
	return r
}

// ObserveDiscovery records one discovery run's duration and flow count.
func (r *Registry) ObserveDiscovery(d time.Duration, flowCount int) {
	r.DiscoveryRuns.Inc()
	r.DiscoveryDuration.Observe(d.Seconds())
	r.FlowsDiscovered.Set(float64(flowCount))
}

// ObserveEvaluation records one evaluation run's duration and failure count.
func (r *Registry) ObserveEvaluation(d time.Duration, failedCount int) {
	outcome := "all_routed"
	if failedCount > 0 {
		outcome = "has_failures"
	}
	r.EvaluationRuns.WithLabelValues(outcome).Inc()
	r.EvaluationDuration.Observe(d.Seconds())
	r.FlowsFailed.Set(float64(failedCount))
}

// ObserveMetric records one critical-flow metric run's duration, labeled by
// which variant ran (link, switch, or neighborhood).
func (r *Registry) ObserveMetric(variant string, d time.Duration) {
	r.MetricRuns.WithLabelValues(variant).Inc()
	r.MetricDuration.WithLabelValues(variant).Observe(d.Seconds())
}
