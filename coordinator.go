package distcomp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ngruychev/distributed-computing/internal/catalog"
	"github.com/ngruychev/distributed-computing/internal/cracker"
	"github.com/ngruychev/distributed-computing/internal/lease"
	"github.com/ngruychev/distributed-computing/internal/logger"
	"github.com/ngruychev/distributed-computing/internal/metrics"
	"github.com/ngruychev/distributed-computing/internal/partition"
	"github.com/ngruychev/distributed-computing/internal/queue"
	"github.com/ngruychev/distributed-computing/internal/stats"
	"github.com/ngruychev/distributed-computing/types"
)

// Input limits.
const (
	MaxJobNameLen      = 30
	MaxPasswordHashLen = 120
)

// Claim and answer results, used as metric labels.
const (
	resultClaimed  = "claimed"
	resultEmpty    = "empty"
	resultNotFound = "not_found"
	resultError    = "error"
	resultSolved   = "solved"
	resultReleased = "released"
	resultMismatch = "mismatch"
)

// Coordinator hands out subtasks of hash-cracking jobs and keeps track of
// who is working on what.
//
// The Coordinator holds no job or claim state of its own: every operation
// reads and writes the shared store, and mutual exclusion comes only from the
// store's compare-and-swap. Any number of Coordinators may share one store.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//
// Lifecycle:
//   - Create with NewCoordinator()
//   - Call Start() to run the failover sweeper in the background
//   - Call Stop() for graceful shutdown
//
// Request operations work without Start; only failover of lost workers
// depends on the sweeper.
type Coordinator struct {
	cfg      Config
	registry *types.Registry

	catalog *catalog.Catalog
	queue   *queue.Queue
	leases  *lease.Manager
	stats   *stats.Aggregator
	sweeper *lease.Sweeper

	metrics MetricsCollector
	logger  Logger
	now     func() time.Time

	mu      sync.Mutex
	started bool
}

// NewCoordinator creates a Coordinator over the given jobs and leases stores.
//
// Parameters:
//   - cfg: Configuration (missing values are filled with defaults)
//   - jobs: Store for jobs, queue records, subtasks, fingerprints and workers
//   - leases: Store for leases
//   - opts: Optional logger, metrics and clock
//
// Returns:
//   - *Coordinator: Initialized coordinator
//   - error: ErrInvalidConfig or ErrStoreRequired
//
// Example:
//
//	cfg := distcomp.DefaultConfig()
//	jobs, leases, _ := distcomp.OpenNATSStores(ctx, js, cfg, nil)
//	coord, err := distcomp.NewCoordinator(&cfg, jobs, leases)
func NewCoordinator(cfg *Config, jobs, leases Store, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if jobs == nil || leases == nil {
		return nil, ErrStoreRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := cfg.Registry.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	options := &coordinatorOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}
	loggerInstance := logger.OrNop(options.logger)
	now := options.now
	if now == nil {
		now = time.Now
	}

	cfg.ValidateWithWarnings(loggerInstance)

	q := queue.New(jobs, queue.WithMaxAttempts(cfg.ClaimMaxAttempts), queue.WithClock(now))
	cat := catalog.New(jobs,
		catalog.WithMaxAttempts(cfg.ClaimMaxAttempts),
		catalog.WithReserveGrace(cfg.OperationTimeout),
		catalog.WithClock(now),
	)
	lm := lease.NewManager(leases, q, cfg.LeaseTTL,
		lease.WithClock(now),
		lease.WithLogger(loggerInstance),
		lease.WithMetrics(metricsCollector),
	)

	c := &Coordinator{
		cfg:      *cfg,
		registry: registry,
		catalog:  cat,
		queue:    q,
		leases:   lm,
		stats:    stats.New(cat, q),
		metrics:  metricsCollector,
		logger:   loggerInstance,
		now:      now,
	}

	return c, nil
}

// Registry returns the algorithm and wordlist registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Start runs the failover sweeper until Stop is called or ctx is cancelled.
// A stopped coordinator can be started again.
//
// Returns:
//   - error: ErrAlreadyStarted if already running
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	sweeper := c.newSweeper()
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	c.sweeper = sweeper
	c.started = true

	c.logger.Info("coordinator started",
		"lease_ttl", c.cfg.LeaseTTL,
		"sweep_interval", c.cfg.SweepInterval,
	)

	return nil
}

// Stop stops the sweeper and waits for a running pass to finish.
//
// Returns:
//   - error: ErrNotStarted if the coordinator is not running
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if err := c.sweeper.Stop(); err != nil {
		return err
	}
	c.started = false
	c.logger.Info("coordinator stopped")

	return nil
}

// Sweep runs one failover pass immediately and reports what it recovered.
func (c *Coordinator) Sweep(ctx context.Context) (SweepReport, error) {
	c.mu.Lock()
	sweeper := c.sweeper
	c.mu.Unlock()
	if sweeper == nil {
		sweeper = c.newSweeper()
	}

	return sweeper.RunOnce(ctx)
}

func (c *Coordinator) newSweeper() *lease.Sweeper {
	return lease.NewSweeper(c.leases, c.openJobs, c.cfg.SweepInterval, c.cfg.OperationTimeout)
}

// CreateJob validates a job spec, partitions it and makes its subtasks claimable.
//
// A spec identical to an existing job in algorithm, wordlist, password hash
// and subtask length returns that job instead of creating a new one.
//
// Returns:
//   - Job: The new (or existing) job
//   - error: ValidationError before any write; store errors otherwise
func (c *Coordinator) CreateJob(ctx context.Context, spec JobSpec) (Job, error) {
	spec.PasswordHash = strings.TrimSpace(spec.PasswordHash)
	if err := validateJobSpec(spec); err != nil {
		return Job{}, err
	}
	subtasks, err := partition.Partition(c.registry, spec)
	if err != nil {
		return Job{}, err
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	jobID := uuid.NewString()
	fingerprint := catalog.Fingerprint(spec)
	existing, dup, err := c.reserve(ctx, fingerprint, jobID)
	if err != nil {
		return Job{}, err
	}
	if dup {
		c.metrics.RecordJobCreated(true)
		c.logger.Debug("job already exists", "job_id", existing.ID, "name", spec.Name)

		return existing, nil
	}

	job := Job{
		ID:           jobID,
		Name:         spec.Name,
		Algorithm:    spec.Algorithm,
		Wordlist:     spec.Wordlist,
		PasswordHash: spec.PasswordHash,
		SubtaskLen:   spec.SubtaskLen,
		SubtaskCount: len(subtasks),
		CreatedAt:    c.now(),
	}

	// The job record is written after its queue: a job that can be read
	// always has subtasks to claim.
	if err := c.writeJob(ctx, fingerprint, job, subtasks); err != nil {
		return Job{}, err
	}

	c.metrics.RecordJobCreated(false)
	c.logger.Info("job created",
		"job_id", job.ID,
		"name", job.Name,
		"algo", job.Algorithm,
		"wordlist", job.Wordlist,
		"subtasks", job.SubtaskCount,
	)

	return job, nil
}

// reserve claims the fingerprint for jobID. When another job holds it, that
// job is returned with true as soon as its record is written.
func (c *Coordinator) reserve(ctx context.Context, fingerprint, jobID string) (Job, bool, error) {
	for range c.cfg.ClaimMaxAttempts {
		holder, dup, err := c.catalog.ReserveFingerprint(ctx, fingerprint, jobID)
		if err != nil || !dup {
			return Job{}, false, err
		}

		job, err := c.catalog.AwaitJob(ctx, fingerprint, holder)
		if errors.Is(err, ErrNotFound) {
			// the holder gave up, try to take over
			continue
		}
		if err != nil {
			return Job{}, false, err
		}

		return job, true, nil
	}

	return Job{}, false, fmt.Errorf("reserve fingerprint: %w", ErrContention)
}

// writeJob stores the subtasks, queue and job record. When the job record
// cannot be written, whatever was stored before it is removed and the
// fingerprint released.
func (c *Coordinator) writeJob(ctx context.Context, fingerprint string, job Job, subtasks []SubTask) error {
	var undo []func(context.Context) error
	rollback := func(err error) error {
		// ctx may be the reason for the failure
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OperationTimeout)
		defer cancel()

		for _, fn := range slices.Backward(undo) {
			if uerr := fn(cleanupCtx); uerr != nil {
				c.logger.Warn("failed to roll back job", "job_id", job.ID, "error", uerr)
			}
		}

		return err
	}

	undo = append(undo, func(ctx context.Context) error {
		return c.catalog.ReleaseFingerprint(ctx, fingerprint, job.ID)
	})

	// Subtasks may be partially written, so they are purged on any failure.
	undo = append(undo, func(ctx context.Context) error {
		return c.catalog.PurgeSubTasks(ctx, job.ID, len(subtasks))
	})
	if err := c.catalog.PutSubTasks(ctx, job.ID, subtasks); err != nil {
		return rollback(err)
	}
	if err := c.queue.Init(ctx, job.ID, len(subtasks)); err != nil {
		return rollback(err)
	}
	undo = append(undo, func(ctx context.Context) error {
		return c.queue.Purge(ctx, job.ID)
	})
	if err := c.catalog.CreateJob(ctx, job); err != nil {
		return rollback(err)
	}

	return c.catalog.AddOpen(ctx, job.ID)
}

// ClaimSubtask hands the next pending subtask of a job to a worker.
//
// The pop from the queue and the claim record are one atomic write. A lease
// is issued afterwards; if that fails the claim is left without a lease and
// the sweeper returns it to the queue.
//
// Returns:
//   - SubTaskClaim: The claimed subtask and its lease
//   - error: ErrNotFound for an unknown job, ErrNoSubtasksAvailable when the
//     queue is empty or the job is solved
func (c *Coordinator) ClaimSubtask(ctx context.Context, jobID, workerID string) (SubTaskClaim, error) {
	if err := validateID("jobId", jobID); err != nil {
		return SubTaskClaim{}, err
	}
	if err := validateID("workerId", workerID); err != nil {
		return SubTaskClaim{}, err
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	claim, err := c.claim(ctx, jobID, workerID)
	switch {
	case err == nil:
		c.metrics.RecordClaim(resultClaimed)
	case errors.Is(err, ErrNoSubtasksAvailable):
		c.metrics.RecordClaim(resultEmpty)
	case errors.Is(err, ErrNotFound):
		c.metrics.RecordClaim(resultNotFound)
	default:
		c.metrics.RecordClaim(resultError)
	}

	return claim, err
}

func (c *Coordinator) claim(ctx context.Context, jobID, workerID string) (SubTaskClaim, error) {
	job, err := c.catalog.GetJob(ctx, jobID)
	if err != nil {
		return SubTaskClaim{}, err
	}
	if job.Solved() {
		return SubTaskClaim{}, fmt.Errorf("job %s is solved: %w", jobID, ErrNoSubtasksAvailable)
	}

	idx, err := c.queue.Claim(ctx, jobID, workerID)
	if errors.Is(err, ErrNotFound) {
		// Solved between the job read and the pop.
		return SubTaskClaim{}, fmt.Errorf("job %s is solved: %w", jobID, ErrNoSubtasksAvailable)
	}
	if err != nil {
		return SubTaskClaim{}, err
	}

	grant, err := c.leases.Issue(ctx, jobID, idx, workerID)
	if err != nil {
		c.logger.Warn("claim recorded without a lease", "job_id", jobID, "subtask", idx, "worker_id", workerID, "error", err)
		return SubTaskClaim{}, err
	}

	c.logger.Debug("subtask claimed", "job_id", jobID, "subtask", idx, "worker_id", workerID)

	return SubTaskClaim{JobID: jobID, SubtaskID: idx, Lease: grant}, nil
}

// Heartbeat renews the lease on a claimed subtask.
//
// The presented nonce must be the one returned by the claim or by the last
// accepted heartbeat. On rejection the subtask has already been taken from
// the worker and returned to the tail of the queue.
//
// Returns:
//   - HeartbeatResult: Renewed with the next nonce, or Rejected
//   - error: ValidationError or store errors; rejection is not an error
func (c *Coordinator) Heartbeat(ctx context.Context, jobID string, subtaskID int, workerID, nonce string) (HeartbeatResult, error) {
	if err := validateID("jobId", jobID); err != nil {
		return nil, err
	}
	if err := validateID("workerId", workerID); err != nil {
		return nil, err
	}
	if subtaskID < 0 {
		return nil, types.NewValidationError("subtaskId", "must be >= 0, got %d", subtaskID)
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	// An index outside the job must not reach the queue as a revocation.
	job, err := c.catalog.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if subtaskID >= job.SubtaskCount {
		return nil, fmt.Errorf("subtask %s/%d: %w", jobID, subtaskID, ErrNotFound)
	}

	return c.leases.Renew(ctx, jobID, subtaskID, workerID, nonce)
}

// SubmitAnswer ends work on a subtask.
//
// A nil or empty answer releases the subtask: its claim and lease are dropped
// and it is marked searched, the job stays open. A non-empty answer must hash
// to the job's password (unless verification is disabled); it solves the job
// exactly once, moves it to the solved set and purges its subtasks, queue
// record and leases. Submitting again for a solved job repeats the cleanup
// and returns the job with its original answer.
//
// Returns:
//   - Job: The job after the submission
//   - error: ErrNotFound for an unknown job or subtask, ErrAnswerMismatch
func (c *Coordinator) SubmitAnswer(ctx context.Context, jobID string, subtaskID int, answer *string) (Job, error) {
	if err := validateID("jobId", jobID); err != nil {
		return Job{}, err
	}
	if subtaskID < 0 {
		return Job{}, types.NewValidationError("subtaskId", "must be >= 0, got %d", subtaskID)
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	job, err := c.submit(ctx, jobID, subtaskID, answer)
	switch {
	case err == nil && (answer == nil || *answer == ""):
		c.metrics.RecordAnswer(resultReleased)
	case err == nil:
		c.metrics.RecordAnswer(resultSolved)
	case errors.Is(err, ErrAnswerMismatch):
		c.metrics.RecordAnswer(resultMismatch)
	case errors.Is(err, ErrNotFound):
		c.metrics.RecordAnswer(resultNotFound)
	default:
		c.metrics.RecordAnswer(resultError)
	}

	return job, err
}

func (c *Coordinator) submit(ctx context.Context, jobID string, idx int, answer *string) (Job, error) {
	job, err := c.catalog.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if idx >= job.SubtaskCount {
		return Job{}, fmt.Errorf("subtask %s/%d: %w", jobID, idx, ErrNotFound)
	}

	if answer == nil || *answer == "" {
		return c.release(ctx, job, idx)
	}

	if !c.cfg.SkipAnswerVerification {
		ok, err := cracker.Matches(job.Algorithm, *answer, job.PasswordHash)
		if err != nil {
			return Job{}, err
		}
		if !ok {
			return Job{}, fmt.Errorf("job %s: %w", jobID, ErrAnswerMismatch)
		}
	}

	solved, set, err := c.catalog.SetAnswer(ctx, jobID, *answer)
	if err != nil {
		return Job{}, err
	}
	if set {
		c.logger.Info("job solved", "job_id", jobID, "subtask", idx)
	}
	if err := c.finish(ctx, solved); err != nil {
		return Job{}, err
	}

	return solved, nil
}

func (c *Coordinator) release(ctx context.Context, job Job, idx int) (Job, error) {
	if job.Solved() {
		return job, nil
	}

	err := c.queue.Release(ctx, job.ID, idx)
	if errors.Is(err, ErrNotFound) {
		// The queue record vanished: the job was solved meanwhile.
		return c.catalog.GetJob(ctx, job.ID)
	}
	if err != nil {
		return Job{}, err
	}
	if err := c.leases.Drop(ctx, job.ID, idx); err != nil {
		return Job{}, err
	}

	c.logger.Debug("subtask released", "job_id", job.ID, "subtask", idx)

	return job, nil
}

// finish moves a solved job to the solved set and removes everything that
// was only needed while it was open. Every step is idempotent.
func (c *Coordinator) finish(ctx context.Context, job Job) error {
	if err := c.catalog.MarkSolved(ctx, job.ID); err != nil {
		return err
	}

	rec, err := c.queue.Get(ctx, job.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		claimed := make([]int, 0, len(rec.Claims))
		for idx := range rec.Claims {
			claimed = append(claimed, idx)
		}
		if err := c.leases.DropAll(ctx, job.ID, claimed); err != nil {
			return err
		}
	}

	if err := c.catalog.PurgeSubTasks(ctx, job.ID, job.SubtaskCount); err != nil {
		return err
	}

	return c.queue.Purge(ctx, job.ID)
}

// ListJobs returns every job, open ones with their progress.
func (c *Coordinator) ListJobs(ctx context.Context) (JobListing, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	idx, err := c.catalog.Index(ctx)
	if err != nil {
		return JobListing{}, err
	}

	listing := JobListing{
		Open:   make([]JobView, 0, len(idx.Open)),
		Solved: make([]JobView, 0, len(idx.Solved)),
	}
	for _, id := range idx.Open {
		view, err := c.view(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return JobListing{}, err
		}
		if view.Solved() {
			listing.Solved = append(listing.Solved, view)
			continue
		}
		listing.Open = append(listing.Open, view)
	}
	for _, id := range idx.Solved {
		job, err := c.catalog.GetJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return JobListing{}, err
		}
		listing.Solved = append(listing.Solved, JobView{Job: job})
	}

	return listing, nil
}

// GetJob returns one job, with its progress while it is open.
func (c *Coordinator) GetJob(ctx context.Context, jobID string) (JobView, error) {
	if err := validateID("jobId", jobID); err != nil {
		return JobView{}, err
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	return c.view(ctx, jobID)
}

func (c *Coordinator) view(ctx context.Context, jobID string) (JobView, error) {
	job, err := c.catalog.GetJob(ctx, jobID)
	if err != nil {
		return JobView{}, err
	}
	view := JobView{Job: job}
	if job.Solved() {
		return view, nil
	}

	progress, err := c.stats.Progress(ctx, jobID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return JobView{}, err
	default:
		view.Progress = &progress
	}

	return view, nil
}

// GetSubtask returns the descriptor of one subtask of an open job.
func (c *Coordinator) GetSubtask(ctx context.Context, jobID string, subtaskID int) (SubTask, error) {
	if err := validateID("jobId", jobID); err != nil {
		return SubTask{}, err
	}
	if subtaskID < 0 {
		return SubTask{}, types.NewValidationError("subtaskId", "must be >= 0, got %d", subtaskID)
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	return c.catalog.GetSubTask(ctx, jobID, subtaskID)
}

// GetStats returns queue, claim and solved counts.
func (c *Coordinator) GetStats(ctx context.Context) (Stats, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	return c.stats.Stats(ctx)
}

// RegisterWorker issues a worker id and secret.
func (c *Coordinator) RegisterWorker(ctx context.Context) (WorkerRegistration, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	reg, err := c.catalog.RegisterWorker(ctx)
	if err != nil {
		return WorkerRegistration{}, err
	}
	c.logger.Info("worker registered", "worker_id", reg.WorkerID)

	return reg, nil
}

func (c *Coordinator) openJobs(ctx context.Context) ([]string, error) {
	idx, err := c.catalog.Index(ctx)
	if err != nil {
		return nil, err
	}

	return idx.Open, nil
}

func (c *Coordinator) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.OperationTimeout)
}

func validateJobSpec(spec JobSpec) error {
	if n := utf8.RuneCountInString(spec.Name); n < 1 || n > MaxJobNameLen {
		return types.NewValidationError("name", "length must be in [1, %d], got %d", MaxJobNameLen, n)
	}
	if n := len(spec.PasswordHash); n < 1 || n > MaxPasswordHashLen {
		return types.NewValidationError("passwordHash", "length must be in [1, %d], got %d", MaxPasswordHashLen, n)
	}

	return nil
}

func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return types.NewValidationError(field, "must be a UUID, got %q", id)
	}

	return nil
}
