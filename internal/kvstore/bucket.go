package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureBucket creates or opens a KV bucket with retry logic.
//
// Several coordinator replicas may start at once and race to create the same
// bucket. A create that loses the race falls back to opening the bucket; any
// other failure is retried with exponential backoff.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Any error that occurred after all retries
//
// Example:
//
//	kv, err := kvstore.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "crack-leases",
//	    TTL:    3 * time.Minute,
//	}, 3)
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := range maxRetries {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, config.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		// 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		config.Bucket, maxRetries, lastErr)
}

// BucketConfig names the two buckets the coordinator uses.
type BucketConfig struct {
	// JobsBucket holds jobs, queues, subtasks, fingerprints and workers.
	JobsBucket string
	// LeasesBucket holds one lease per claimed subtask.
	LeasesBucket string
	// LeasesTTL expires abandoned lease records. Zero disables expiry.
	LeasesTTL time.Duration
	// Storage selects file or memory storage for both buckets.
	Storage jetstream.StorageType
	// Replicas is the replica count of both buckets (default 1).
	Replicas int
}

// OpenNATS ensures both buckets exist and returns their adapters.
func OpenNATS(ctx context.Context, js jetstream.JetStream, cfg BucketConfig, opts ...NATSOption) (jobs, leases *NATS, err error) {
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}

	jobsKV, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.JobsBucket,
		Description: "hash-cracking jobs, queues and subtasks",
		History:     1,
		Storage:     cfg.Storage,
		Replicas:    cfg.Replicas,
	}, 3)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure jobs bucket: %w", err)
	}

	leasesKV, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.LeasesBucket,
		Description: "subtask leases",
		History:     1,
		TTL:         cfg.LeasesTTL,
		Storage:     cfg.Storage,
		Replicas:    cfg.Replicas,
	}, 3)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure leases bucket: %w", err)
	}

	return NewNATS(jobsKV, opts...), NewNATS(leasesKV, opts...), nil
}
