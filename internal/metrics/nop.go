// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/ngruychev/distributed-computing/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. It is the default whenever no collector is
// configured.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	coord, err := distcomp.NewCoordinator(cfg, jobs, leases, distcomp.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// CoordinatorMetrics implementation

// RecordJobCreated discards the metric.
func (n *NopMetrics) RecordJobCreated(_ /* deduplicated */ bool) {}

// RecordClaim discards the metric.
func (n *NopMetrics) RecordClaim(_ /* result */ string) {}

// RecordAnswer discards the metric.
func (n *NopMetrics) RecordAnswer(_ /* result */ string) {}

// LeaseMetrics implementation

// RecordLeaseRenewal discards the metric.
func (n *NopMetrics) RecordLeaseRenewal(_ /* accepted */ bool) {}

// RecordFailover discards the metric.
func (n *NopMetrics) RecordFailover(_ /* reason */ string) {}

// RecordSweepDuration discards the metric.
func (n *NopMetrics) RecordSweepDuration(_ /* duration */ float64, _ /* recovered */ int) {}

// StoreMetrics implementation

// RecordKVOperationDuration discards the metric.
func (n *NopMetrics) RecordKVOperationDuration(_ /* operation */ string, _ /* duration */ float64) {}

// WorkerMetrics implementation

// RecordHeartbeat discards the metric.
func (n *NopMetrics) RecordHeartbeat(_ /* workerID */ string, _ /* success */ bool) {}

// RecordSubtaskProcessed discards the metric.
func (n *NopMetrics) RecordSubtaskProcessed(_ /* outcome */ string) {}
