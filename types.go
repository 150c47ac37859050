package distcomp

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngruychev/distributed-computing/internal/kvstore"
	"github.com/ngruychev/distributed-computing/internal/lease"
	"github.com/ngruychev/distributed-computing/types"
)

// Re-export types from the types package.
//
// Internal packages depend on types and never on the root package, so the
// aliases below let users write distcomp.Job instead of importing types.
type (
	Algorithm          = types.Algorithm
	LineRange          = types.LineRange
	JobSpec            = types.JobSpec
	Job                = types.Job
	SubTask            = types.SubTask
	SubTaskClaim       = types.SubTaskClaim
	LeaseGrant         = types.LeaseGrant
	WorkerRegistration = types.WorkerRegistration
	Stats              = types.Stats
	JobProgress        = types.JobProgress
	JobView            = types.JobView
	JobListing         = types.JobListing
	Registry           = types.Registry
	ValidationError    = types.ValidationError
)

// Re-export the heartbeat result variants.
type (
	HeartbeatResult = types.HeartbeatResult
	Renewed         = types.Renewed
	Rejected        = types.Rejected
)

// Re-export interfaces from the types package for convenience.
type (
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
)

// SweepReport counts the subtasks one failover pass returned to the queue.
type SweepReport = lease.SweepReport

// Store is the atomic key-value store the coordinator keeps all state in.
type Store = kvstore.KV

// Re-export Algorithm constants.
const (
	AlgorithmSHA256 = types.AlgorithmSHA256
	AlgorithmSHA512 = types.AlgorithmSHA512
	AlgorithmMD5    = types.AlgorithmMD5
)

// NewMemoryStore returns an in-process Store for tests and single-process use.
func NewMemoryStore() Store {
	return kvstore.NewMemory()
}

// OpenNATSStores creates or opens the jobs and leases buckets named in cfg.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - cfg: Configuration supplying bucket names and the leases bucket TTL
//   - metrics: Optional store metrics (nil disables them)
//
// Returns:
//   - jobs, leases: Stores to pass to NewCoordinator
//   - error: Bucket creation failure
func OpenNATSStores(ctx context.Context, js jetstream.JetStream, cfg Config, metrics types.StoreMetrics) (jobs, leases Store, err error) {
	var opts []kvstore.NATSOption
	if metrics != nil {
		opts = append(opts, kvstore.WithStoreMetrics(metrics))
	}

	jobsKV, leasesKV, err := kvstore.OpenNATS(ctx, js, kvstore.BucketConfig{
		JobsBucket:   cfg.KVBuckets.JobsBucket,
		LeasesBucket: cfg.KVBuckets.LeasesBucket,
		LeasesTTL:    cfg.KVBuckets.LeasesTTL,
		Storage:      jetstream.FileStorage,
	}, opts...)
	if err != nil {
		return nil, nil, err
	}

	return jobsKV, leasesKV, nil
}
