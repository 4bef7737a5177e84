// Package metrics exposes scheduler and store counters for the /metrics
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the prometheus instruments for the daemon.
type Collector struct {
	ticks       prometheus.Counter
	dispatches  prometheus.Counter
	conflicts   prometheus.Counter
	runningWork *prometheus.GaugeVec
}

// NewCollector builds a Collector and registers it with the registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "scheduler_ticks_total",
			Help:      "Total scheduler tick invocations.",
		}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "scheduler_dispatches_total",
			Help:      "Total nodes dispatched (pending to running).",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gantry",
			Name:      "store_version_conflicts_total",
			Help:      "Total optimistic-concurrency conflicts on graph writes.",
		}),
		runningWork: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gantry",
			Name:      "graph_running_work",
			Help:      "Work nodes currently running per graph.",
		}, []string{"task_id", "graph_id"}),
	}
	if reg != nil {
		reg.MustRegister(c.ticks, c.dispatches, c.conflicts, c.runningWork)
	}
	return c
}

// TickCompleted records one tick and its dispatch count.
func (c *Collector) TickCompleted(dispatched int) {
	c.ticks.Inc()
	c.dispatches.Add(float64(dispatched))
}

// VersionConflict records one lost compare-and-swap.
func (c *Collector) VersionConflict() {
	c.conflicts.Inc()
}

// SetRunningWork records the running-work gauge for a graph.
func (c *Collector) SetRunningWork(taskID, graphID string, n int) {
	c.runningWork.WithLabelValues(taskID, graphID).Set(float64(n))
}
