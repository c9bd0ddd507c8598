package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotSource supplies the point-in-time values the collector polls
type SnapshotSource interface {
	QueueDepth(ctx context.Context) (int, error)
	StockLevels(ctx context.Context) (map[string]map[string]int, error)
	WorkerPhases(ctx context.Context) (map[string]string, error)
}

// FactoryMetricsCollector handles all agent network metrics
type FactoryMetricsCollector struct {
	// Dependencies
	source SnapshotSource

	// Order metrics
	ordersGeneratedTotal  prometheus.Counter
	ordersShedTotal       *prometheus.CounterVec
	ordersDispatchedTotal *prometheus.CounterVec
	emptyAssignTicksTotal prometheus.Counter
	orderQueueDepth       prometheus.Gauge

	// Inventory metrics
	partsDeliveredTotal  *prometheus.CounterVec
	partsMissingTotal    *prometheus.CounterVec
	partialRequestsTotal *prometheus.CounterVec
	restocksTotal        *prometheus.CounterVec
	stockLevel           *prometheus.GaugeVec

	// Worker metrics
	jobPhaseDuration    *prometheus.HistogramVec
	jobRejectionsTotal  *prometheus.CounterVec
	staleResponsesTotal *prometheus.CounterVec
	partsTimeoutsTotal  *prometheus.CounterVec
	workerPhase         *prometheus.GaugeVec

	// Line metrics
	carsCompletedTotal *prometheus.CounterVec
	carBuildDuration   *prometheus.HistogramVec

	// Lifecycle
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	// Configuration
	pollInterval time.Duration
}

// NewFactoryMetricsCollector creates a new factory metrics collector.
// A nil source disables the polled gauges.
func NewFactoryMetricsCollector(source SnapshotSource, pollInterval time.Duration) *FactoryMetricsCollector {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	return &FactoryMetricsCollector{
		source:       source,
		pollInterval: pollInterval,

		ordersGeneratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_generated_total",
				Help:      "Total orders created by the order book",
			},
		),

		ordersShedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_shed_total",
				Help:      "Total orders dropped because the queue was full",
			},
			[]string{"policy"},
		),

		ordersDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_dispatched_total",
				Help:      "Total orders dispatched by production line",
			},
			[]string{"line"},
		),

		emptyAssignTicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "assign_ticks_empty_total",
				Help:      "Assignment ticks that found no pending order",
			},
		),

		orderQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_queue_depth",
				Help:      "Orders waiting for dispatch",
			},
		),

		partsDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parts_delivered_total",
				Help:      "Total parts handed to workers by inventory",
			},
			[]string{"inventory"},
		),

		partsMissingTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parts_missing_total",
				Help:      "Total requested parts that were out of stock",
			},
			[]string{"inventory"},
		),

		partialRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parts_requests_partial_total",
				Help:      "Parts requests that could not be fully served",
			},
			[]string{"inventory"},
		),

		restocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "restocks_total",
				Help:      "Total inventory replenishments",
			},
			[]string{"inventory"},
		),

		stockLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stock_level",
				Help:      "Units on hand by inventory and part kind",
			},
			[]string{"inventory", "part"},
		),

		jobPhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "job_phase_duration_seconds",
				Help:      "Time spent by workers in each job phase",
				Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
			},
			[]string{"worker", "phase"},
		),

		jobRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "job_rejections_total",
				Help:      "Jobs handed back to the line by busy workers",
			},
			[]string{"line", "worker"},
		),

		staleResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parts_responses_stale_total",
				Help:      "Parts replies discarded because they no longer matched the pending request",
			},
			[]string{"worker"},
		),

		partsTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parts_timeouts_total",
				Help:      "Parts requests abandoned after the timeout",
			},
			[]string{"worker"},
		),

		workerPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "worker_phase",
				Help:      "1 for the phase each worker is currently in",
			},
			[]string{"worker", "phase"},
		),

		carsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cars_completed_total",
				Help:      "Total cars completed by line and worker",
			},
			[]string{"line", "worker"},
		),

		carBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "car_build_duration_seconds",
				Help:      "Time from job start to completion",
				Buckets:   []float64{5, 8, 10, 15, 20, 30, 60, 120},
			},
			[]string{"line"},
		),
	}
}

// Register registers all factory metrics with the Prometheus registry
func (c *FactoryMetricsCollector) Register() error {
	if Registry == nil {
		InitRegistry()
	}

	collectors := []prometheus.Collector{
		// Orders
		c.ordersGeneratedTotal,
		c.ordersShedTotal,
		c.ordersDispatchedTotal,
		c.emptyAssignTicksTotal,
		c.orderQueueDepth,
		// Inventory
		c.partsDeliveredTotal,
		c.partsMissingTotal,
		c.partialRequestsTotal,
		c.restocksTotal,
		c.stockLevel,
		// Workers
		c.jobPhaseDuration,
		c.jobRejectionsTotal,
		c.staleResponsesTotal,
		c.partsTimeoutsTotal,
		c.workerPhase,
		// Lines
		c.carsCompletedTotal,
		c.carBuildDuration,
	}

	for _, collector := range collectors {
		if err := Registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// Start begins the polling goroutine for snapshot gauges
func (c *FactoryMetricsCollector) Start(ctx context.Context) {
	c.ctx, c.cancelFunc = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.pollMetrics(c.pollInterval)
}

// Stop gracefully stops the factory metrics collector
func (c *FactoryMetricsCollector) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
}

// pollMetrics polls agent snapshots periodically
func (c *FactoryMetricsCollector) pollMetrics(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do initial poll immediately
	c.updateSnapshotMetrics()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.updateSnapshotMetrics()
		}
	}
}

// updateSnapshotMetrics refreshes the gauges from agent snapshots
func (c *FactoryMetricsCollector) updateSnapshotMetrics() {
	if c.source == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.pollInterval)
	defer cancel()

	if depth, err := c.source.QueueDepth(ctx); err != nil {
		log.Printf("Failed to poll order queue depth: %v", err)
	} else {
		c.orderQueueDepth.Set(float64(depth))
	}

	if levels, err := c.source.StockLevels(ctx); err != nil {
		log.Printf("Failed to poll stock levels: %v", err)
	} else {
		c.stockLevel.Reset()
		for inventory, kinds := range levels {
			for kind, units := range kinds {
				c.stockLevel.WithLabelValues(inventory, kind).Set(float64(units))
			}
		}
	}

	if phases, err := c.source.WorkerPhases(ctx); err != nil {
		log.Printf("Failed to poll worker phases: %v", err)
	} else {
		c.workerPhase.Reset()
		for worker, phase := range phases {
			c.workerPhase.WithLabelValues(worker, phase).Set(1)
		}
	}
}

// ============================================================================
// FactoryMetricsRecorder implementation
// ============================================================================

func (c *FactoryMetricsCollector) RecordOrderGenerated() {
	c.ordersGeneratedTotal.Inc()
}

func (c *FactoryMetricsCollector) RecordOrderShed(policy string) {
	c.ordersShedTotal.WithLabelValues(policy).Inc()
}

func (c *FactoryMetricsCollector) RecordOrderDispatched(line string) {
	c.ordersDispatchedTotal.WithLabelValues(line).Inc()
}

func (c *FactoryMetricsCollector) RecordEmptyAssignTick() {
	c.emptyAssignTicksTotal.Inc()
}

func (c *FactoryMetricsCollector) RecordPartsRequest(inventory string, delivered, missing int) {
	c.partsDeliveredTotal.WithLabelValues(inventory).Add(float64(delivered))
	c.partsMissingTotal.WithLabelValues(inventory).Add(float64(missing))
	if missing > 0 {
		c.partialRequestsTotal.WithLabelValues(inventory).Inc()
	}
}

func (c *FactoryMetricsCollector) RecordRestock(inventory string) {
	c.restocksTotal.WithLabelValues(inventory).Inc()
}

func (c *FactoryMetricsCollector) RecordJobPhase(worker, phase string, seconds float64) {
	c.jobPhaseDuration.WithLabelValues(worker, phase).Observe(seconds)
}

func (c *FactoryMetricsCollector) RecordJobRejected(line, worker string) {
	c.jobRejectionsTotal.WithLabelValues(line, worker).Inc()
}

func (c *FactoryMetricsCollector) RecordStalePartsResponse(worker string) {
	c.staleResponsesTotal.WithLabelValues(worker).Inc()
}

func (c *FactoryMetricsCollector) RecordPartsTimeout(worker string) {
	c.partsTimeoutsTotal.WithLabelValues(worker).Inc()
}

func (c *FactoryMetricsCollector) RecordCarCompleted(line, worker string, seconds float64) {
	c.carsCompletedTotal.WithLabelValues(line, worker).Inc()
	c.carBuildDuration.WithLabelValues(line).Observe(seconds)
}
