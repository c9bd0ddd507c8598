package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace for all metrics
	namespace = "carfactory"
	// Subsystem for agent network metrics
	subsystem = "factory"
)

var (
	// Registry is the global Prometheus registry for all metrics
	Registry *prometheus.Registry

	// globalCollector is the singleton factory metrics collector
	// Set by SetGlobalCollector() when metrics are enabled
	globalCollector FactoryMetricsRecorder
)

// FactoryMetricsRecorder defines the interface for recording agent network events.
// Agents call the package-level Record* functions, which are no-ops until a
// collector is installed.
type FactoryMetricsRecorder interface {
	RecordOrderGenerated()
	RecordOrderShed(policy string)
	RecordOrderDispatched(line string)
	RecordEmptyAssignTick()
	RecordPartsRequest(inventory string, delivered, missing int)
	RecordRestock(inventory string)
	RecordJobPhase(worker, phase string, seconds float64)
	RecordJobRejected(line, worker string)
	RecordStalePartsResponse(worker string)
	RecordPartsTimeout(worker string)
	RecordCarCompleted(line, worker string, seconds float64)
}

// InitRegistry initializes the Prometheus registry
// Should be called once at application startup if metrics are enabled
func InitRegistry() {
	Registry = prometheus.NewRegistry()
}

// SetGlobalCollector sets the global metrics collector
// This should be called after the collector is created and started
func SetGlobalCollector(collector FactoryMetricsRecorder) {
	globalCollector = collector
}

// RecordOrderGenerated records a newly generated order globally
func RecordOrderGenerated() {
	if globalCollector != nil {
		globalCollector.RecordOrderGenerated()
	}
}

// RecordOrderShed records an order dropped by a full queue globally
func RecordOrderShed(policy string) {
	if globalCollector != nil {
		globalCollector.RecordOrderShed(policy)
	}
}

// RecordOrderDispatched records an order sent to a production line globally
func RecordOrderDispatched(line string) {
	if globalCollector != nil {
		globalCollector.RecordOrderDispatched(line)
	}
}

// RecordEmptyAssignTick records an assignment tick that found no pending order
func RecordEmptyAssignTick() {
	if globalCollector != nil {
		globalCollector.RecordEmptyAssignTick()
	}
}

// RecordPartsRequest records the outcome of one parts request globally
func RecordPartsRequest(inventory string, delivered, missing int) {
	if globalCollector != nil {
		globalCollector.RecordPartsRequest(inventory, delivered, missing)
	}
}

// RecordRestock records an inventory replenishment globally
func RecordRestock(inventory string) {
	if globalCollector != nil {
		globalCollector.RecordRestock(inventory)
	}
}

// RecordJobPhase records how long a worker spent in a job phase
func RecordJobPhase(worker, phase string, seconds float64) {
	if globalCollector != nil {
		globalCollector.RecordJobPhase(worker, phase, seconds)
	}
}

// RecordJobRejected records a job refused by a busy worker
func RecordJobRejected(line, worker string) {
	if globalCollector != nil {
		globalCollector.RecordJobRejected(line, worker)
	}
}

// RecordStalePartsResponse records a parts reply the worker no longer waited for
func RecordStalePartsResponse(worker string) {
	if globalCollector != nil {
		globalCollector.RecordStalePartsResponse(worker)
	}
}

// RecordPartsTimeout records a parts request abandoned after its timeout
func RecordPartsTimeout(worker string) {
	if globalCollector != nil {
		globalCollector.RecordPartsTimeout(worker)
	}
}

// RecordCarCompleted records a finished car globally
func RecordCarCompleted(line, worker string, seconds float64) {
	if globalCollector != nil {
		globalCollector.RecordCarCompleted(line, worker, seconds)
	}
}
