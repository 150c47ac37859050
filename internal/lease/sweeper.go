package lease

import (
	"context"
	"sync"
	"time"

	"github.com/ngruychev/distributed-computing/types"
)

// Sweeper runs Manager.Sweep periodically in a background goroutine.
//
// Running several sweepers against the same store is safe; every recovery
// step is conditional on the revision it read.
type Sweeper struct {
	manager  *Manager
	openJobs OpenJobsFunc
	interval time.Duration
	timeout  time.Duration
	logger   types.Logger
	metrics  types.LeaseMetrics

	// Lifecycle management
	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper creates a sweeper.
//
// Parameters:
//   - manager: Lease manager to sweep with
//   - openJobs: Lists the jobs whose claims are checked
//   - interval: Time between passes
//   - timeout: Upper bound on a single pass (zero means interval)
//
// Returns:
//   - *Sweeper: A stopped sweeper; call Start to run it
func NewSweeper(manager *Manager, openJobs OpenJobsFunc, interval, timeout time.Duration) *Sweeper {
	if timeout <= 0 {
		timeout = interval
	}

	return &Sweeper{
		manager:  manager,
		openJobs: openJobs,
		interval: interval,
		timeout:  timeout,
		logger:   manager.logger,
		metrics:  manager.metrics,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins sweeping in a background goroutine.
//
// Returns:
//   - error: types.ErrAlreadyStarted if already started or stopped
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return types.ErrAlreadyStarted
	}

	s.started = true
	go s.run(ctx)

	return nil
}

// Stop stops the sweeper and waits for the current pass to finish.
//
// It is safe to call Stop multiple times.
//
// Returns:
//   - error: types.ErrNotStarted if Stop is called before Start
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return types.ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	return nil
}

// RunOnce performs a single sweep pass and records its metrics.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.manager.Sweep(ctx, s.openJobs)
	s.metrics.RecordSweepDuration(time.Since(start).Seconds(), report.Recovered())

	return report, err
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "error", err)
				continue
			}
			if report.Errors > 0 {
				s.logger.Warn("sweep skipped items", "errors", report.Errors)
			}
			if report.Recovered() > 0 {
				s.logger.Info("sweep recovered subtasks",
					"expired", report.Expired,
					"orphan_leases", report.OrphanLeases,
					"orphan_claims", report.OrphanClaims,
				)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
