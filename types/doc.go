// Package types provides core type definitions and interfaces shared by the
// coordinator, its internal packages and the worker.
//
// Keeping these types in a separate package avoids import cycles between the
// root package and its internal implementations.
//
// Key types:
//   - Job, JobSpec, SubTask: the unit of work and its bounded pieces
//   - Lease, SubTaskClaim: ownership of a checked-out subtask
//   - HeartbeatResult: Renewed or Rejected
//   - Registry: the immutable algorithm and wordlist table
//   - Logger, MetricsCollector: ambient interfaces
package types
