// Package heartbeat keeps a worker's subtask lease alive while it computes.
//
// A Renewer calls the coordinator's heartbeat operation at a fixed interval,
// always presenting the nonce returned by the previous renewal. Nonces are
// single use: the coordinator replaces the nonce on every accepted renewal,
// so a renewal that races with another holder of the same lease is rejected.
//
// # Lifecycle
//
//  1. Create a renewer with New(workerID, nonce, renew, onLost, opts...)
//  2. Start renewing with Start()
//  3. Stop renewing with Stop() once computation ended, on every exit path
//
// Example:
//
//	ctx, cancel := context.WithCancelCause(ctx)
//	r := heartbeat.New(workerID, claim.Lease.Nonce, renew, cancel,
//	    heartbeat.WithInterval(5*time.Second))
//	if err := r.Start(); err != nil {
//	    return err
//	}
//	defer r.Stop()
//
// # Rejection
//
// A Rejected result is final. The renewer calls onLost with
// types.ErrLeaseRejected exactly once and exits; the caller is expected to
// abandon the subtask, which the coordinator has already requeued.
//
// Transport errors are not final. The lease may still be alive, so the
// renewer records a failed heartbeat and tries again at the next tick. If the
// coordinator stays unreachable the lease expires and the next renewal that
// gets through is rejected.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Stop blocks until the renewal
// goroutine exited, so no renewal is in flight and onLost is never called
// after Stop returns.
package heartbeat
