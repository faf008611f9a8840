package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/weftworks/weft/pkg/domain/run"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	itemsExecuted *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	itemRetries   *prometheus.CounterVec
	workerCrashes *prometheus.CounterVec

	workerPoolIdle    *prometheus.GaugeVec
	workerPoolBusy    *prometheus.GaugeVec
	workerPoolStopped *prometheus.GaugeVec

	resourceWaitTime *prometheus.HistogramVec
}

// NewCollector creates a Prometheus metrics collector registered against the
// given registerer. A nil registerer uses the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_runs_submitted_total",
				Help: "Total number of runs submitted",
			},
			[]string{"workflow"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_runs_completed_total",
				Help: "Total number of runs completed",
			},
			[]string{"workflow", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weft_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"workflow"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "weft_active_runs",
				Help: "Number of currently active runs",
			},
		),
		itemsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_items_executed_total",
				Help: "Total number of item attempts by terminal status",
			},
			[]string{"item_type", "status"},
		),
		itemDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weft_item_duration_seconds",
				Help:    "Item attempt duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"item_type"},
		),
		itemRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_item_retries_total",
				Help: "Total number of item retries",
			},
			[]string{"item_type"},
		),
		workerCrashes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_worker_crashes_total",
				Help: "Total number of worker crashes",
			},
			[]string{"item_type"},
		),
		workerPoolIdle: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weft_worker_pool_idle",
				Help: "Number of idle workers",
			},
			[]string{"run_id"},
		),
		workerPoolBusy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weft_worker_pool_busy",
				Help: "Number of busy workers",
			},
			[]string{"run_id"},
		),
		workerPoolStopped: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weft_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
			[]string{"run_id"},
		),
		resourceWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weft_resource_wait_seconds",
				Help:    "Time spent waiting on resource precursors",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"resource_id"},
		),
	}
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(workflow string) {
	c.runsSubmitted.WithLabelValues(workflow).Inc()
}

// RecordRunCompleted records a run completion with its terminal status
func (c *Collector) RecordRunCompleted(workflow string, status run.Status, duration time.Duration) {
	c.runsCompleted.WithLabelValues(workflow, string(status)).Inc()
	c.runDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordItemExecuted records one item attempt reaching a terminal status
func (c *Collector) RecordItemExecuted(itemType string, status run.ItemStatus, duration time.Duration) {
	c.itemsExecuted.WithLabelValues(itemType, string(status)).Inc()
	c.itemDuration.WithLabelValues(itemType).Observe(duration.Seconds())
}

// RecordRetry records an item being re-admitted after a failure
func (c *Collector) RecordRetry(itemType string) {
	c.itemRetries.WithLabelValues(itemType).Inc()
}

// RecordCrash records a worker panic
func (c *Collector) RecordCrash(itemType string) {
	c.workerCrashes.WithLabelValues(itemType).Inc()
}

// IncActiveRuns increments the active run gauge
func (c *Collector) IncActiveRuns() {
	c.activeRuns.Inc()
}

// DecActiveRuns decrements the active run gauge
func (c *Collector) DecActiveRuns() {
	c.activeRuns.Dec()
}

// RecordWorkerPoolStatus records worker pool occupancy for a run
func (c *Collector) RecordWorkerPoolStatus(runID string, idle, busy, stopped int) {
	c.workerPoolIdle.WithLabelValues(runID).Set(float64(idle))
	c.workerPoolBusy.WithLabelValues(runID).Set(float64(busy))
	c.workerPoolStopped.WithLabelValues(runID).Set(float64(stopped))
}

// RecordResourceWait records how long an item waited on a resource
func (c *Collector) RecordResourceWait(resourceID string, wait time.Duration) {
	c.resourceWaitTime.WithLabelValues(resourceID).Observe(wait.Seconds())
}
