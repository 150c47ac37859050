// Package queue manages the per-job queue record: which subtasks are
// pending, which are claimed and by whom, and which were searched.
//
// All changes go through a compare-and-swap loop on the single queue record
// of the job, so a pop and the claim it produces are one atomic write.
package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ngruychev/distributed-computing/internal/keyspace"
	"github.com/ngruychev/distributed-computing/internal/kvstore"
	"github.com/ngruychev/distributed-computing/types"
)

// RevokeResult describes what Revoke did.
type RevokeResult int

const (
	// Requeued means the index was appended to the tail of the queue.
	Requeued RevokeResult = iota
	// AlreadyQueued means the index was pending or searched; nothing changed
	// except possibly dropping a matching claim.
	AlreadyQueued
	// NotOwner means another worker holds the claim; nothing changed.
	NotOwner
	// Gone means the queue record no longer exists (job solved).
	Gone
)

func (r RevokeResult) String() string {
	switch r {
	case Requeued:
		return "requeued"
	case AlreadyQueued:
		return "already_queued"
	case NotOwner:
		return "not_owner"
	case Gone:
		return "gone"
	default:
		return "unknown"
	}
}

// Queue operates on queue records in the jobs bucket.
type Queue struct {
	kv          kvstore.KV
	maxAttempts int
	now         func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts bounds the compare-and-swap loop of every operation.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) { q.maxAttempts = n }
}

// WithClock replaces time.Now for claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue over the jobs bucket.
func New(kv kvstore.KV, opts ...Option) *Queue {
	q := &Queue{kv: kv, maxAttempts: kvstore.DefaultMaxAttempts, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Init writes the queue record of a new job with every index pending.
func (q *Queue) Init(ctx context.Context, jobID string, total int) error {
	if _, err := kvstore.CreateJSON(ctx, q.kv, keyspace.Queue(jobID), NewRecord(total)); err != nil {
		return fmt.Errorf("init queue %s: %w", jobID, err)
	}

	return nil
}

// Get returns the queue record of a job, or types.ErrNotFound.
func (q *Queue) Get(ctx context.Context, jobID string) (Record, error) {
	rec, _, err := kvstore.GetJSON[Record](ctx, q.kv, keyspace.Queue(jobID))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("queue %s: %w", jobID, types.ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}
	rec.ensureClaims()

	return rec, nil
}

// Claim pops the front index and records workerID as its owner in one write.
//
// Returns types.ErrNoSubtasksAvailable when nothing is pending and
// types.ErrNotFound when the record is gone.
func (q *Queue) Claim(ctx context.Context, jobID, workerID string) (int, error) {
	var idx int
	_, _, err := kvstore.Mutate(ctx, q.kv, keyspace.Queue(jobID), q.maxAttempts, func(r *Record) (bool, error) {
		next, ok := r.pop()
		if !ok {
			return false, types.ErrNoSubtasksAvailable
		}
		r.ensureClaims()
		r.Claims[next] = types.Claim{WorkerID: workerID, ClaimedAt: q.now()}
		idx = next

		return true, nil
	})
	if err != nil {
		return 0, q.wrap("claim", jobID, err)
	}

	return idx, nil
}

// Revoke drops the claim on idx and returns the index to the tail of the queue.
//
// When workerID is non-empty the claim is only dropped if that worker owns
// it; a claim held by someone else is left alone and NotOwner is returned.
// An index that is already pending or searched is never queued twice, and an
// index outside the job is ignored (AlreadyQueued).
func (q *Queue) Revoke(ctx context.Context, jobID string, idx int, workerID string) (RevokeResult, error) {
	result := AlreadyQueued
	_, _, err := kvstore.Mutate(ctx, q.kv, keyspace.Queue(jobID), q.maxAttempts, func(r *Record) (bool, error) {
		result = AlreadyQueued
		if !r.InRange(idx) {
			return false, nil
		}
		changed := false

		if c, ok := r.Claim(idx); ok {
			if workerID != "" && c.WorkerID != workerID {
				result = NotOwner
				return false, nil
			}
			delete(r.Claims, idx)
			changed = true
		}
		if r.requeue(idx) {
			result = Requeued
			changed = true
		}

		return changed, nil
	})
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return Gone, nil
	}
	if err != nil {
		return 0, q.wrap("revoke", jobID, err)
	}

	return result, nil
}

// Release marks idx as searched without an answer. Its claim is dropped and
// it is not requeued.
func (q *Queue) Release(ctx context.Context, jobID string, idx int) error {
	_, _, err := kvstore.Mutate(ctx, q.kv, keyspace.Queue(jobID), q.maxAttempts, func(r *Record) (bool, error) {
		if !r.InRange(idx) {
			return false, fmt.Errorf("subtask %d: %w", idx, types.ErrNotFound)
		}

		changed := false
		if _, ok := r.Claims[idx]; ok {
			delete(r.Claims, idx)
			changed = true
		}
		if i := slices.Index(r.Pending, idx); i >= 0 {
			r.Pending = slices.Delete(r.Pending, i, i+1)
			changed = true
		}
		if !r.IsSearched(idx) {
			r.Searched = append(r.Searched, idx)
			changed = true
		}

		return changed, nil
	})
	if err != nil {
		return q.wrap("release", jobID, err)
	}

	return nil
}

// Purge deletes the queue record of a solved job.
func (q *Queue) Purge(ctx context.Context, jobID string) error {
	if err := q.kv.Delete(ctx, keyspace.Queue(jobID), 0); err != nil {
		return fmt.Errorf("purge queue %s: %w", jobID, err)
	}

	return nil
}

func (q *Queue) wrap(op, jobID string, err error) error {
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return fmt.Errorf("%s %s: %w", op, jobID, types.ErrNotFound)
	}

	return fmt.Errorf("%s %s: %w", op, jobID, err)
}
