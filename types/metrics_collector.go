package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods are called concurrently from request handlers, the sweeper and
// the worker loop, so they must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	CoordinatorMetrics
	LeaseMetrics
	StoreMetrics
	WorkerMetrics
}

// CoordinatorMetrics defines metrics for job, claim and answer operations.
type CoordinatorMetrics interface {
	// RecordJobCreated records a CreateJob call.
	//
	// Parameters:
	//   - deduplicated: true if an identical job already existed and was returned
	RecordJobCreated(deduplicated bool)

	// RecordClaim records the outcome of a claim.
	//
	// Parameters:
	//   - result: "claimed", "empty", "not_found" or "error"
	RecordClaim(result string)

	// RecordAnswer records the outcome of an answer submission.
	//
	// Parameters:
	//   - result: "solved", "released", "mismatch", "not_found" or "error"
	RecordAnswer(result string)
}

// LeaseMetrics defines metrics for lease renewal and failover.
type LeaseMetrics interface {
	// RecordLeaseRenewal records a heartbeat handled by the coordinator.
	RecordLeaseRenewal(accepted bool)

	// RecordFailover records a revoked claim.
	//
	// Parameters:
	//   - reason: "rejected", "expired", "orphan_claim" or "orphan_lease"
	RecordFailover(reason string)

	// RecordSweepDuration records one sweep pass.
	//
	// Parameters:
	//   - duration: Time taken in seconds
	//   - recovered: Number of subtasks returned to the queue by this pass
	RecordSweepDuration(duration float64, recovered int)
}

// StoreMetrics defines metrics for the shared store.
type StoreMetrics interface {
	// RecordKVOperationDuration records KV operation latency.
	//
	// Parameters:
	//   - operation: Operation type ("get", "create", "update", "put", "delete", "keys")
	//   - duration: Time taken in seconds
	RecordKVOperationDuration(operation string, duration float64)
}

// WorkerMetrics defines metrics recorded by the worker lease client.
type WorkerMetrics interface {
	// RecordHeartbeat records a heartbeat sent by a worker.
	//
	// Parameters:
	//   - workerID: The ID of the worker sending the heartbeat
	//   - success: true if the lease was renewed, false otherwise
	RecordHeartbeat(workerID string, success bool)

	// RecordSubtaskProcessed records the end of local work on a subtask.
	//
	// Parameters:
	//   - outcome: "found", "exhausted", "invalid", "lost" or "error"
	RecordSubtaskProcessed(outcome string)
}
