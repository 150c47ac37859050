package lease

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngruychev/distributed-computing/internal/keyspace"
	"github.com/ngruychev/distributed-computing/internal/kvstore"
	"github.com/ngruychev/distributed-computing/internal/queue"
	"github.com/ngruychev/distributed-computing/types"
)

// OpenJobsFunc lists the ids of jobs that are not solved.
type OpenJobsFunc func(ctx context.Context) ([]string, error)

// SweepReport counts what one sweep pass recovered.
type SweepReport struct {
	Expired      int
	OrphanLeases int
	OrphanClaims int
	// Errors counts leases and jobs skipped because they could not be swept.
	Errors int
}

// Recovered is the number of subtasks returned to the queue.
func (r SweepReport) Recovered() int {
	return r.Expired + r.OrphanLeases + r.OrphanClaims
}

// Sweep finds subtasks whose owner is gone and returns them to the queue.
//
// It handles three cases:
//   - a lease past its expiry: the lease is deleted and the claim revoked
//   - a lease whose claim is gone or held by another worker: the lease is
//     deleted and the index made pending again if nothing else holds it
//   - a claim older than the lease TTL without any lease: the claim is
//     revoked (a coordinator failed between claiming and issuing)
//
// Every step is conditional on the revision it read, so concurrent sweeps,
// renewals and claims never requeue an index twice or drop a live lease.
//
// A lease or job that fails to sweep is logged, counted in Errors and
// skipped. The pass only stops early when ctx ends or the store is unreachable.
func (m *Manager) Sweep(ctx context.Context, openJobs OpenJobsFunc) (SweepReport, error) {
	var report SweepReport

	keys, err := m.leases.Keys(ctx)
	if err != nil {
		return report, fmt.Errorf("list leases: %w", err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		jobID, idx, err := keyspace.ParseLease(key)
		if err != nil {
			m.logger.Warn("skipping malformed lease key", "key", key, "error", err)
			continue
		}

		reason, err := m.sweepLease(ctx, jobID, idx)
		if err != nil {
			if fatal(ctx, err) {
				return report, err
			}
			m.logger.Warn("failed to sweep lease", "job_id", jobID, "subtask", idx, "error", err)
			report.Errors++

			continue
		}
		switch reason {
		case ReasonExpired:
			report.Expired++
		case ReasonOrphanLease:
			report.OrphanLeases++
		}
	}

	jobIDs, err := openJobs(ctx)
	if err != nil {
		return report, fmt.Errorf("list open jobs: %w", err)
	}
	for _, jobID := range jobIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := m.sweepClaims(ctx, jobID)
		report.OrphanClaims += n
		if err != nil {
			if fatal(ctx, err) {
				return report, err
			}
			m.logger.Warn("failed to sweep claims", "job_id", jobID, "error", err)
			report.Errors++
		}
	}

	return report, nil
}

// fatal reports whether err ends the whole pass rather than one item.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, types.ErrStoreUnavailable)
}

// sweepLease inspects one lease and returns the failover reason when it
// requeued the subtask, or "" when it did not.
func (m *Manager) sweepLease(ctx context.Context, jobID string, idx int) (string, error) {
	// The lease is read before the queue record: a claim is always committed
	// before its lease is issued, so a lease seen here has its claim visible below.
	l, rev, err := m.Get(ctx, jobID, idx)
	if errors.Is(err, types.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if l.Expired(m.now()) {
		if ok, err := m.deleteLease(ctx, jobID, idx, rev); !ok || err != nil {
			return "", err
		}

		return m.requeued(ctx, jobID, idx, l.WorkerID, ReasonExpired)
	}

	rec, err := m.queue.Get(ctx, jobID)
	if errors.Is(err, types.ErrNotFound) {
		// Job solved: the lease is all that is left.
		_, err := m.deleteLease(ctx, jobID, idx, rev)
		return "", err
	}
	if err != nil {
		return "", err
	}

	if c, ok := rec.Claim(idx); ok && c.WorkerID == l.WorkerID {
		return "", nil
	}

	m.logger.Info("lease without matching claim", "job_id", jobID, "subtask", idx, "worker_id", l.WorkerID)
	if ok, err := m.deleteLease(ctx, jobID, idx, rev); !ok || err != nil {
		return "", err
	}

	return m.requeued(ctx, jobID, idx, l.WorkerID, ReasonOrphanLease)
}

func (m *Manager) sweepClaims(ctx context.Context, jobID string) (int, error) {
	rec, err := m.queue.Get(ctx, jobID)
	if errors.Is(err, types.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	now := m.now()
	recovered := 0
	for idx, c := range rec.Claims {
		// A claim younger than the TTL may still be waiting for its lease.
		if now.Sub(c.ClaimedAt) < m.ttl {
			continue
		}

		_, _, err := m.Get(ctx, jobID, idx)
		if err == nil {
			continue
		}
		if !errors.Is(err, types.ErrNotFound) {
			return recovered, err
		}

		m.logger.Info("claim without lease", "job_id", jobID, "subtask", idx, "worker_id", c.WorkerID)
		reason, err := m.requeued(ctx, jobID, idx, c.WorkerID, ReasonOrphanClaim)
		if err != nil {
			return recovered, err
		}
		if reason != "" {
			recovered++
		}
	}

	return recovered, nil
}

// deleteLease deletes a lease at a known revision and reports whether this
// call removed it. Losing the race to another sweep or a renewal is not an error.
func (m *Manager) deleteLease(ctx context.Context, jobID string, idx int, rev uint64) (bool, error) {
	err := m.leases.Delete(ctx, keyspace.Lease(jobID, idx), rev)
	switch {
	case err == nil:
		return true, nil
	case kvstore.IsConflict(err):
		return false, nil
	default:
		return false, fmt.Errorf("delete lease %s/%d: %w", jobID, idx, err)
	}
}

func (m *Manager) requeued(ctx context.Context, jobID string, idx int, workerID, reason string) (string, error) {
	res, err := m.Revoke(ctx, jobID, idx, workerID, 0, reason)
	if err != nil {
		return "", err
	}
	if res != queue.Requeued {
		return "", nil
	}

	return reason, nil
}
