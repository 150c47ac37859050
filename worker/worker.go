package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ngruychev/distributed-computing/internal/cracker"
	"github.com/ngruychev/distributed-computing/internal/heartbeat"
	"github.com/ngruychev/distributed-computing/internal/hooks"
	"github.com/ngruychev/distributed-computing/internal/logger"
	"github.com/ngruychev/distributed-computing/internal/metrics"
	"github.com/ngruychev/distributed-computing/types"
)

// Common errors for worker lifecycle operations.
var (
	ErrAlreadyStarted = types.ErrAlreadyStarted
	ErrNotStarted     = types.ErrNotStarted
)

// Outcome is the result of one loop iteration, also used as the
// subtasks-processed metric label.
type Outcome string

const (
	// OutcomeIdle means no open job had a claimable subtask.
	OutcomeIdle Outcome = "idle"
	// OutcomeFound means the answer was found and accepted.
	OutcomeFound Outcome = "found"
	// OutcomeExhausted means the range held no answer and was released.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeInvalid means the descriptor failed validation and was abandoned.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeLost means a renewal was rejected and the subtask abandoned.
	OutcomeLost Outcome = "lost"
	// OutcomeError means the iteration failed.
	OutcomeError Outcome = "error"
)

// Coordinator is the part of the coordinator a worker talks to.
//
// Both *distcomp.Coordinator and *httpapi.Client implement it.
type Coordinator interface {
	ListJobs(ctx context.Context) (types.JobListing, error)
	ClaimSubtask(ctx context.Context, jobID, workerID string) (types.SubTaskClaim, error)
	GetSubtask(ctx context.Context, jobID string, subtaskID int) (types.SubTask, error)
	Heartbeat(ctx context.Context, jobID string, subtaskID int, workerID, nonce string) (types.HeartbeatResult, error)
	SubmitAnswer(ctx context.Context, jobID string, subtaskID int, answer *string) (types.Job, error)
}

// Searcher searches one subtask range for the password.
type Searcher interface {
	Search(ctx context.Context, st types.SubTask) (word string, found bool, err error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(w *Worker) { w.logger = logger.OrNop(l) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.WorkerMetrics) Option {
	return func(w *Worker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithHooks sets the event callbacks. Nil callbacks are ignored.
func WithHooks(h *types.Hooks) Option {
	return func(w *Worker) { w.hooks = hooks.Fill(h) }
}

// WithSearcher replaces the wordlist cracker.
func WithSearcher(s Searcher) Option {
	return func(w *Worker) {
		if s != nil {
			w.searcher = s
		}
	}
}

// WithRegistry sets the table descriptors are validated against.
// Defaults to types.DefaultRegistry().
func WithRegistry(r *types.Registry) Option {
	return func(w *Worker) {
		if r != nil {
			w.registry = r
		}
	}
}

// Worker is the lease client: it claims subtasks, searches them while
// renewing the lease, and submits or releases the result.
//
// A Worker runs one subtask at a time. Scale by running more workers.
type Worker struct {
	cfg      Config
	coord    Coordinator
	workerID string
	searcher Searcher
	registry *types.Registry
	hooks    types.Hooks
	metrics  types.WorkerMetrics
	logger   types.Logger

	mu      sync.Mutex
	state   types.WorkerState
	current *types.SubTaskClaim
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// New creates a worker.
//
// Parameters:
//   - cfg: Worker configuration (defaults are applied to a copy)
//   - coord: Coordinator or HTTP client
//   - workerID: Registered worker id
//   - opts: Logger, metrics, hooks, searcher and registry options
//
// Returns:
//   - *Worker: New worker, not yet running
//   - error: Config validation error
func New(cfg *Config, coord Coordinator, workerID string, opts ...Option) (*Worker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", types.ErrInvalidConfig)
	}
	if coord == nil {
		return nil, errors.New("coordinator is required")
	}
	if workerID == "" {
		return nil, types.NewValidationError("workerId", "must not be empty")
	}

	c := *cfg
	SetDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	w := &Worker{
		cfg:      c,
		coord:    coord,
		workerID: workerID,
		searcher: cracker.New(c.WordlistDir),
		registry: types.DefaultRegistry(),
		hooks:    hooks.NewNop(),
		metrics:  metrics.NewNop(),
		logger:   logger.NewNop(),
		state:    types.StateIdle,
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// ID returns the worker id.
func (w *Worker) ID() string { return w.workerID }

// State returns the current loop state.
func (w *Worker) State() types.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

// Current returns the claim being worked on, if any.
func (w *Worker) Current() (types.SubTaskClaim, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return types.SubTaskClaim{}, false
	}

	return *w.current, true
}

// Start runs the loop in the background until Stop is called or ctx ends.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.started = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	go func() {
		defer close(w.doneCh)
		_ = w.Run(runCtx)
	}()

	return nil
}

// Stop cancels the loop and waits for it to exit.
//
// A subtask in progress is abandoned; its lease expires and the coordinator
// requeues it.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return ErrNotStarted
	}
	w.started = false
	cancel, done := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()
	<-done

	return nil
}

// Run executes the loop until ctx is cancelled.
//
// Errors never leave the loop: they are logged, reported to OnError, and
// followed by ErrorBackoff.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "worker", w.workerID)
	defer func() {
		w.setState(context.WithoutCancel(ctx), types.StateStopped)
		w.logger.Info("worker stopped", "worker", w.workerID)
	}()

	for ctx.Err() == nil {
		outcome, err := w.RunOnce(ctx)

		var wait time.Duration
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			w.logger.Warn("iteration failed", "worker", w.workerID, "error", err)
			w.fire("OnError", w.hooks.OnError(ctx, err))
			wait = w.cfg.ErrorBackoff
		case outcome == OutcomeIdle:
			wait = w.cfg.IdleBackoff
		default:
			continue
		}

		w.setState(ctx, types.StateBackoff)
		if !sleep(ctx, wait) {
			return nil
		}
		w.setState(ctx, types.StateIdle)
	}

	return nil
}

// RunOnce executes a single iteration: discover, claim, compute and then
// submit or release.
//
// Returns:
//   - Outcome: What happened to the claimed subtask, or OutcomeIdle
//   - error: Non-nil together with OutcomeError
func (w *Worker) RunOnce(ctx context.Context) (Outcome, error) {
	claim, err := w.discover(ctx)
	if errors.Is(err, types.ErrNoSubtasksAvailable) {
		w.setState(ctx, types.StateIdle)
		return OutcomeIdle, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	w.setCurrent(&claim)
	defer w.setCurrent(nil)

	outcome, err := w.process(ctx, claim)
	if outcome != OutcomeIdle {
		w.metrics.RecordSubtaskProcessed(string(outcome))
	}
	w.setState(ctx, types.StateIdle)

	return outcome, err
}

// discover claims a subtask from the first open job that has one.
func (w *Worker) discover(ctx context.Context) (types.SubTaskClaim, error) {
	w.setState(ctx, types.StateDiscovering)

	callCtx, cancel := w.callContext(ctx)
	listing, err := w.coord.ListJobs(callCtx)
	cancel()
	if err != nil {
		return types.SubTaskClaim{}, fmt.Errorf("list jobs: %w", err)
	}

	candidates := make([]string, 0, len(listing.Open))
	for _, view := range listing.Open {
		if view.Progress != nil && view.Progress.Queued == 0 {
			continue
		}
		candidates = append(candidates, view.ID)
	}
	// spread concurrent workers over open jobs
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	w.setState(ctx, types.StateClaiming)
	for _, jobID := range candidates {
		callCtx, cancel := w.callContext(ctx)
		claim, err := w.coord.ClaimSubtask(callCtx, jobID, w.workerID)
		cancel()

		switch {
		case err == nil:
			w.logger.Debug("subtask claimed", "worker", w.workerID, "job", claim.JobID, "subtask", claim.SubtaskID)
			return claim, nil
		case errors.Is(err, types.ErrNoSubtasksAvailable), errors.Is(err, types.ErrNotFound):
			continue
		default:
			return types.SubTaskClaim{}, fmt.Errorf("claim job %s: %w", jobID, err)
		}
	}

	return types.SubTaskClaim{}, types.ErrNoSubtasksAvailable
}

func (w *Worker) process(ctx context.Context, claim types.SubTaskClaim) (Outcome, error) {
	callCtx, cancel := w.callContext(ctx)
	st, err := w.coord.GetSubtask(callCtx, claim.JobID, claim.SubtaskID)
	cancel()
	if errors.Is(err, types.ErrNotFound) {
		// solved by someone else between claim and fetch
		w.logger.Debug("subtask vanished after claim", "job", claim.JobID, "subtask", claim.SubtaskID)
		return OutcomeLost, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("get subtask %s/%d: %w", claim.JobID, claim.SubtaskID, err)
	}

	if err := w.registry.ValidateSubTask(st); err != nil {
		w.logger.Warn("invalid subtask descriptor, abandoning",
			"job", claim.JobID, "subtask", claim.SubtaskID, "error", err)
		return OutcomeInvalid, nil
	}

	w.fire("OnClaimed", w.hooks.OnClaimed(ctx, claim, st))

	word, found, lost, err := w.compute(ctx, claim, st)
	switch {
	case ctx.Err() != nil:
		return OutcomeError, ctx.Err()
	case err != nil && !lost:
		return OutcomeError, fmt.Errorf("search %s/%d: %w", claim.JobID, claim.SubtaskID, err)
	case found:
		return w.submit(ctx, claim, word)
	case lost:
		w.setCurrent(nil)
		w.fire("OnLeaseLost", w.hooks.OnLeaseLost(ctx, claim))
		return OutcomeLost, nil
	default:
		return w.release(ctx, claim)
	}
}

// compute searches the range while a renewer keeps the lease alive. The
// renewer is stopped before compute returns.
func (w *Worker) compute(ctx context.Context, claim types.SubTaskClaim, st types.SubTask) (string, bool, bool, error) {
	w.setState(ctx, types.StateComputing)

	computeCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	renew := func(rctx context.Context, nonce string) (types.HeartbeatResult, error) {
		return w.coord.Heartbeat(rctx, claim.JobID, claim.SubtaskID, w.workerID, nonce)
	}
	renewer := heartbeat.New(w.workerID, claim.Lease.Nonce, renew, cancel,
		heartbeat.WithInterval(w.cfg.HeartbeatInterval),
		heartbeat.WithTimeout(w.cfg.RequestTimeout),
		heartbeat.WithMetrics(w.metrics),
		heartbeat.WithLogger(w.logger),
	)
	if err := renewer.Start(); err != nil {
		return "", false, false, err
	}

	word, found, err := w.searcher.Search(computeCtx, st)
	_ = renewer.Stop()

	return word, found, renewer.Lost(), err
}

func (w *Worker) submit(ctx context.Context, claim types.SubTaskClaim, word string) (Outcome, error) {
	w.setState(ctx, types.StateSubmitting)

	callCtx, cancel := w.callContext(ctx)
	job, err := w.coord.SubmitAnswer(callCtx, claim.JobID, claim.SubtaskID, &word)
	cancel()
	if err != nil {
		return OutcomeError, fmt.Errorf("submit answer %s/%d: %w", claim.JobID, claim.SubtaskID, err)
	}

	w.logger.Info("job solved", "worker", w.workerID, "job", job.ID, "subtask", claim.SubtaskID)
	w.fire("OnSolved", w.hooks.OnSolved(ctx, &job))

	return OutcomeFound, nil
}

func (w *Worker) release(ctx context.Context, claim types.SubTaskClaim) (Outcome, error) {
	w.setState(ctx, types.StateReleasing)

	callCtx, cancel := w.callContext(ctx)
	_, err := w.coord.SubmitAnswer(callCtx, claim.JobID, claim.SubtaskID, nil)
	cancel()
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return OutcomeError, fmt.Errorf("release %s/%d: %w", claim.JobID, claim.SubtaskID, err)
	}

	w.logger.Debug("subtask exhausted", "worker", w.workerID, "job", claim.JobID, "subtask", claim.SubtaskID)

	return OutcomeExhausted, nil
}

func (w *Worker) setState(ctx context.Context, to types.WorkerState) {
	w.mu.Lock()
	from := w.state
	w.state = to
	w.mu.Unlock()

	if from != to {
		w.fire("OnStateChanged", w.hooks.OnStateChanged(ctx, from, to))
	}
}

func (w *Worker) setCurrent(claim *types.SubTaskClaim) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current = claim
}

func (w *Worker) fire(hook string, err error) {
	if err != nil {
		w.logger.Warn("hook failed", "hook", hook, "error", err)
	}
}

func (w *Worker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.cfg.RequestTimeout)
}

// sleep waits for d or until ctx is done, and reports whether it slept fully.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
