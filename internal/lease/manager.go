// Package lease issues and renews nonce leases on claimed subtasks and
// recovers subtasks whose owner stopped renewing.
//
// A lease is stored under <jobId>.<idx> in the leases bucket. Its nonce is
// single-use: every accepted renewal replaces it, and a renewal presenting
// anything but the current nonce loses the subtask. Revocation always goes
// through the job's queue record first and deletes the lease second, so a
// crash in between leaves a lease without a claim, which the sweep resolves.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ngruychev/distributed-computing/internal/keyspace"
	"github.com/ngruychev/distributed-computing/internal/kvstore"
	"github.com/ngruychev/distributed-computing/internal/logger"
	"github.com/ngruychev/distributed-computing/internal/metrics"
	"github.com/ngruychev/distributed-computing/internal/queue"
	"github.com/ngruychev/distributed-computing/types"
)

// Failover reasons, also used as metric labels.
const (
	ReasonRejected    = "rejected"
	ReasonExpired     = "expired"
	ReasonOrphanClaim = "orphan_claim"
	ReasonOrphanLease = "orphan_lease"
)

// Manager issues, renews and revokes leases.
type Manager struct {
	leases   kvstore.KV
	queue    *queue.Queue
	ttl      time.Duration
	now      func() time.Time
	newNonce func() string
	logger   types.Logger
	metrics  types.LeaseMetrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for issue and expiry times.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc types.LeaseMetrics) Option {
	return func(m *Manager) {
		if mc != nil {
			m.metrics = mc
		}
	}
}

// NewManager creates a lease manager.
//
// Parameters:
//   - leases: The leases bucket
//   - q: Queue records in the jobs bucket
//   - ttl: Lease lifetime granted by Issue and Renew
//   - opts: Optional clock, logger and metrics
func NewManager(leases kvstore.KV, q *queue.Queue, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		leases:   leases,
		queue:    q,
		ttl:      ttl,
		now:      time.Now,
		newNonce: uuid.NewString,
		logger:   logger.NewNop(),
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// TTL returns the lease lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue writes a fresh lease for a claimed subtask, replacing any existing one.
func (m *Manager) Issue(ctx context.Context, jobID string, idx int, workerID string) (types.LeaseGrant, error) {
	now := m.now()
	l := types.Lease{
		Nonce:     m.newNonce(),
		WorkerID:  workerID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	if _, err := kvstore.PutJSON(ctx, m.leases, keyspace.Lease(jobID, idx), l); err != nil {
		return types.LeaseGrant{}, fmt.Errorf("issue lease %s/%d: %w", jobID, idx, err)
	}

	return types.LeaseGrant{Nonce: l.Nonce, ExpiresAt: l.ExpiresAt}, nil
}

// Get returns the current lease and its revision, or types.ErrNotFound.
func (m *Manager) Get(ctx context.Context, jobID string, idx int) (types.Lease, uint64, error) {
	l, rev, err := kvstore.GetJSON[types.Lease](ctx, m.leases, keyspace.Lease(jobID, idx))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return types.Lease{}, 0, fmt.Errorf("lease %s/%d: %w", jobID, idx, types.ErrNotFound)
	}

	return l, rev, err
}

// Renew rotates the nonce of a live lease.
//
// A renewal that presents the current nonce for its own unexpired lease gets
// a new nonce and a new expiry. Anything else (wrong nonce, wrong worker, an
// expired or missing lease) is rejected, and the subtask is revoked from
// workerID and returned to the tail of the queue before Rejected is returned.
// A claim that another worker holds by now is never touched.
func (m *Manager) Renew(ctx context.Context, jobID string, idx int, workerID, nonce string) (types.HeartbeatResult, error) {
	key := keyspace.Lease(jobID, idx)

	cur, rev, err := kvstore.GetJSON[types.Lease](ctx, m.leases, key)
	switch {
	case errors.Is(err, kvstore.ErrKeyNotFound):
		return m.reject(ctx, jobID, idx, workerID, 0, "no lease")
	case err != nil:
		return nil, fmt.Errorf("renew lease %s/%d: %w", jobID, idx, err)
	}

	now := m.now()
	switch {
	case cur.Nonce != nonce:
		return m.reject(ctx, jobID, idx, workerID, m.ownRevision(cur, rev, workerID), "nonce mismatch")
	case cur.WorkerID != workerID:
		return m.reject(ctx, jobID, idx, workerID, 0, "worker mismatch")
	case cur.Expired(now):
		return m.reject(ctx, jobID, idx, workerID, rev, "lease expired")
	}

	next := cur
	next.Nonce = m.newNonce()
	next.ExpiresAt = now.Add(m.ttl)
	if _, err := kvstore.UpdateJSON(ctx, m.leases, key, next, rev); err != nil {
		if kvstore.IsConflict(err) {
			// The lease changed under us: a sweep or another renewal won.
			m.logger.Info("lease renewal lost a race", "job_id", jobID, "subtask", idx, "worker_id", workerID)
			m.metrics.RecordLeaseRenewal(false)

			return types.Rejected{}, nil
		}

		return nil, fmt.Errorf("renew lease %s/%d: %w", jobID, idx, err)
	}

	m.metrics.RecordLeaseRenewal(true)

	return types.Renewed{Nonce: next.Nonce, ExpiresAt: next.ExpiresAt}, nil
}

// ownRevision returns rev when the stored lease belongs to workerID, else 0.
func (m *Manager) ownRevision(l types.Lease, rev uint64, workerID string) uint64 {
	if l.WorkerID == workerID {
		return rev
	}

	return 0
}

func (m *Manager) reject(ctx context.Context, jobID string, idx int, workerID string, leaseRev uint64, why string) (types.HeartbeatResult, error) {
	m.metrics.RecordLeaseRenewal(false)
	m.logger.Warn("lease renewal rejected", "job_id", jobID, "subtask", idx, "worker_id", workerID, "reason", why)

	if _, err := m.Revoke(ctx, jobID, idx, workerID, leaseRev, ReasonRejected); err != nil {
		return nil, err
	}

	return types.Rejected{}, nil
}

// Revoke takes a subtask away from workerID and returns it to the queue.
//
// The queue record is updated first. When leaseRev is non-zero the lease is
// then deleted only if it is still at that revision, so a lease issued to a
// new owner in the meantime survives. An empty workerID revokes whichever
// claim exists.
func (m *Manager) Revoke(ctx context.Context, jobID string, idx int, workerID string, leaseRev uint64, reason string) (queue.RevokeResult, error) {
	res, err := m.queue.Revoke(ctx, jobID, idx, workerID)
	if err != nil {
		return res, fmt.Errorf("revoke %s/%d: %w", jobID, idx, err)
	}
	if res == queue.NotOwner {
		m.logger.Debug("claim held by another worker, leaving it", "job_id", jobID, "subtask", idx, "worker_id", workerID)
		return res, nil
	}

	if leaseRev > 0 {
		err := m.leases.Delete(ctx, keyspace.Lease(jobID, idx), leaseRev)
		if err != nil && !kvstore.IsConflict(err) {
			return res, fmt.Errorf("delete lease %s/%d: %w", jobID, idx, err)
		}
	}

	if res == queue.Requeued {
		m.metrics.RecordFailover(reason)
		m.logger.Info("subtask requeued", "job_id", jobID, "subtask", idx, "worker_id", workerID, "reason", reason)
	}

	return res, nil
}

// Drop deletes the lease of a subtask that left the claimed state normally.
func (m *Manager) Drop(ctx context.Context, jobID string, idx int) error {
	if err := m.leases.Delete(ctx, keyspace.Lease(jobID, idx), 0); err != nil {
		return fmt.Errorf("drop lease %s/%d: %w", jobID, idx, err)
	}

	return nil
}

// DropAll deletes the leases of the given subtasks of a job.
func (m *Manager) DropAll(ctx context.Context, jobID string, indices []int) error {
	for _, idx := range indices {
		if err := m.Drop(ctx, jobID, idx); err != nil {
			return err
		}
	}

	return nil
}
