// Package metrics provides a Prometheus-backed hive.MetricsSink,
// registered under the hive namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusSink implements hive.MetricsSink on top of client_golang
// gauges, a histogram and counters, registered under the "hive" namespace.
type PrometheusSink struct {
	inflightTasks      prometheus.Gauge
	queueDepth         prometheus.Gauge
	stepLatencySeconds prometheus.Histogram
	tasksRetried       prometheus.Counter
	mergeConflicts     prometheus.Counter
	backpressureEvents prometheus.Counter
}

// NewPrometheusSink registers hive's metrics against registry and returns
// a sink that feeds them. Pass prometheus.DefaultRegisterer to use the
// global registry.
func NewPrometheusSink(registry prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(registry)
	return &PrometheusSink{
		inflightTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hive",
			Name:      "inflight_tasks",
			Help:      "Number of tasks currently executing within the active step.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hive",
			Name:      "queue_depth",
			Help:      "Number of events buffered in the deterministic event stream.",
		}),
		stepLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hive",
			Name:      "step_latency_seconds",
			Help:      "Wall-clock duration of one superstep, from dispatch to commit.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		tasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "tasks_retried_total",
			Help:      "Total number of task attempts retried after a transient failure.",
		}),
		mergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "merge_conflicts_total",
			Help:      "Total number of update-policy violations detected while folding writes.",
		}),
		backpressureEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hive",
			Name:      "backpressure_events_total",
			Help:      "Total number of synthesized streamBackpressure events.",
		}),
	}
}

func (p *PrometheusSink) ObserveStepLatency(seconds float64) { p.stepLatencySeconds.Observe(seconds) }
func (p *PrometheusSink) IncTasksRetried()                   { p.tasksRetried.Inc() }
func (p *PrometheusSink) IncMergeConflicts()                 { p.mergeConflicts.Inc() }
func (p *PrometheusSink) IncBackpressureEvents()             { p.backpressureEvents.Inc() }
func (p *PrometheusSink) SetInflightTasks(n int)             { p.inflightTasks.Set(float64(n)) }
func (p *PrometheusSink) SetQueueDepth(n int)                { p.queueDepth.Set(float64(n)) }
