package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ngruychev/distributed-computing/internal/logger"
	"github.com/ngruychev/distributed-computing/internal/metrics"
	"github.com/ngruychev/distributed-computing/types"
)

// Common errors for renewer operations.
var (
	ErrNotStarted     = errors.New("renewer not started")
	ErrAlreadyStarted = errors.New("renewer already started")
	ErrNoNonce        = errors.New("initial nonce not set")
)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 5 * time.Second
)

// RenewFunc sends one heartbeat for the held lease.
type RenewFunc func(ctx context.Context, nonce string) (types.HeartbeatResult, error)

// Option configures a Renewer.
type Option func(*Renewer)

// WithInterval sets the time between two renewals.
func WithInterval(d time.Duration) Option {
	return func(r *Renewer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithTimeout bounds a single renewal call.
func WithTimeout(d time.Duration) Option {
	return func(r *Renewer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics sets the collector receiving heartbeat outcomes.
func WithMetrics(m types.WorkerMetrics) Option {
	return func(r *Renewer) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(r *Renewer) {
		r.logger = logger.OrNop(l)
	}
}

// Renewer periodically renews one subtask lease.
type Renewer struct {
	workerID string
	renew    RenewFunc
	onLost   func(cause error)
	interval time.Duration
	timeout  time.Duration
	metrics  types.WorkerMetrics
	logger   types.Logger

	mu      sync.Mutex
	nonce   string
	lost    bool
	started bool
	stopped bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *time.Ticker
}

// New creates a renewer for a freshly issued lease.
//
// Parameters:
//   - workerID: Worker holding the lease, used for metrics and logs
//   - nonce: Nonce returned by the claim
//   - renew: Function sending one heartbeat
//   - onLost: Called once with types.ErrLeaseRejected when the lease is lost
//   - opts: Interval, timeout, metrics and logger options
//
// Returns:
//   - *Renewer: New renewer, not yet started
func New(workerID, nonce string, renew RenewFunc, onLost func(cause error), opts ...Option) *Renewer {
	r := &Renewer{
		workerID: workerID,
		nonce:    nonce,
		renew:    renew,
		onLost:   onLost,
		interval: defaultInterval,
		timeout:  defaultTimeout,
		metrics:  metrics.NewNop(),
		logger:   logger.NewNop(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start begins renewing in the background.
//
// The first renewal happens one interval after Start; the claim itself
// granted a full TTL.
//
// Returns:
//   - error: ErrAlreadyStarted if started before, ErrNoNonce if the nonce is empty
func (r *Renewer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	if r.nonce == "" {
		return ErrNoNonce
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.started = true
	r.cancel = cancel
	r.ticker = time.NewTicker(r.interval)

	go r.renewLoop(ctx)

	return nil
}

// Stop stops renewing and waits for the renewal goroutine to exit.
//
// An in-flight renewal is cancelled. Stopping twice is a no-op.
//
// Returns:
//   - error: ErrNotStarted if Start was never called
func (r *Renewer) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if r.stopped {
		r.mu.Unlock()
		<-r.doneCh
		return nil
	}

	r.stopped = true
	r.ticker.Stop()
	r.cancel()
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh

	return nil
}

// Nonce returns the nonce to present on the next renewal.
func (r *Renewer) Nonce() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.nonce
}

// Lost reports whether a renewal was rejected.
func (r *Renewer) Lost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lost
}

func (r *Renewer) renewLoop(ctx context.Context) {
	defer close(r.doneCh)

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			if done := r.renewOnce(ctx); done {
				return
			}
		}
	}
}

// renewOnce sends one heartbeat and reports whether the loop should exit.
func (r *Renewer) renewOnce(ctx context.Context) bool {
	nonce := r.Nonce()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	result, err := r.renew(callCtx, nonce)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		r.metrics.RecordHeartbeat(r.workerID, false)
		r.logger.Warn("lease renewal failed, retrying", "worker", r.workerID, "error", err)

		return false
	}

	switch res := result.(type) {
	case types.Renewed:
		r.mu.Lock()
		r.nonce = res.Nonce
		r.mu.Unlock()
		r.metrics.RecordHeartbeat(r.workerID, true)

		return false
	default:
		r.mu.Lock()
		r.lost = true
		r.mu.Unlock()
		r.metrics.RecordHeartbeat(r.workerID, false)
		r.logger.Warn("lease renewal rejected, abandoning subtask", "worker", r.workerID)
		if r.onLost != nil {
			r.onLost(types.ErrLeaseRejected)
		}

		return true
	}
}
