package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	distcomp "github.com/ngruychev/distributed-computing"
	"github.com/ngruychev/distributed-computing/internal/cracker"
	"github.com/ngruychev/distributed-computing/internal/httpapi"
	dctest "github.com/ngruychev/distributed-computing/testing"
	"github.com/ngruychev/distributed-computing/types"
)

const secretLine = 17

// writeWordlist writes a 25-line ezpz.txt with "hunter2" at secretLine.
func writeWordlist(t *testing.T) string {
	t.Helper()

	lines := make([]string, 25)
	for i := range lines {
		lines[i] = fmt.Sprintf("word%02d", i)
	}
	lines[secretLine] = "hunter2"

	dir := t.TempDir()
	path := filepath.Join(dir, types.WordlistEzpz)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	return dir
}

type env struct {
	coord *distcomp.Coordinator
	dir   string
	cfg   Config
}

func newEnv(t *testing.T) *env {
	t.Helper()

	ccfg := distcomp.TestConfig()
	coord, err := distcomp.NewCoordinator(&ccfg, distcomp.NewMemoryStore(), distcomp.NewMemoryStore(),
		distcomp.WithLogger(dctest.NewTestLogger(t)))
	require.NoError(t, err)

	dir := writeWordlist(t)
	cfg := TestConfig()
	cfg.WordlistDir = dir

	return &env{coord: coord, dir: dir, cfg: cfg}
}

func (e *env) createJob(t *testing.T, password string) types.Job {
	t.Helper()

	hash, err := cracker.Hash(types.AlgorithmMD5, password)
	require.NoError(t, err)

	job, err := e.coord.CreateJob(t.Context(), types.JobSpec{
		Name:         "ezpz",
		Algorithm:    types.AlgorithmMD5,
		Wordlist:     types.WordlistEzpz,
		PasswordHash: hash,
		SubtaskLen:   10,
	})
	require.NoError(t, err)

	return job
}

func (e *env) newWorker(t *testing.T, coord Coordinator, opts ...Option) *Worker {
	t.Helper()

	opts = append([]Option{WithLogger(dctest.NewTestLogger(t)), WithRegistry(e.coord.Registry())}, opts...)
	w, err := New(&e.cfg, coord, uuid.NewString(), opts...)
	require.NoError(t, err)

	return w
}

type outcomeRecorder struct {
	mu         sync.Mutex
	outcomes   []string
	heartbeats map[bool]int
}

func newOutcomeRecorder() *outcomeRecorder {
	return &outcomeRecorder{heartbeats: map[bool]int{}}
}

func (r *outcomeRecorder) RecordHeartbeat(_ string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats[success]++
}

func (r *outcomeRecorder) RecordSubtaskProcessed(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *outcomeRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.outcomes...)
}

// blockingSearcher searches nothing and returns only when cancelled.
type blockingSearcher struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingSearcher) Search(ctx context.Context, _ types.SubTask) (string, bool, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()

	return "", false, context.Cause(ctx)
}

func TestNew_Errors(t *testing.T) {
	e := newEnv(t)

	_, err := New(nil, e.coord, "w")
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = New(&e.cfg, nil, "w")
	require.Error(t, err)

	_, err = New(&e.cfg, e.coord, "")
	require.ErrorIs(t, err, types.ErrValidation)

	bad := e.cfg
	bad.IdleBackoff = -time.Second
	_, err = New(&bad, e.coord, "w")
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestRunOnce_SolvesJob(t *testing.T) {
	e := newEnv(t)
	job := e.createJob(t, "hunter2")

	rec := newOutcomeRecorder()
	var solved atomic.Pointer[types.Job]
	var claimed []int
	w := e.newWorker(t, e.coord, WithMetrics(rec), WithHooks(&types.Hooks{
		OnClaimed: func(_ context.Context, claim types.SubTaskClaim, _ types.SubTask) error {
			claimed = append(claimed, claim.SubtaskID)
			return nil
		},
		OnSolved: func(_ context.Context, j *types.Job) error {
			solved.Store(j)
			return nil
		},
	}))

	outcome, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeExhausted, outcome)

	outcome, err = w.RunOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, outcome)

	require.Equal(t, []int{0, 1}, claimed)
	require.NotNil(t, solved.Load())
	require.Equal(t, "hunter2", *solved.Load().Answer)

	view, err := e.coord.GetJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Answer)
	require.Equal(t, "hunter2", *view.Answer)

	// nothing left to claim
	outcome, err = w.RunOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeIdle, outcome)

	require.Equal(t, []string{"exhausted", "found"}, rec.snapshot())
	require.Equal(t, types.StateIdle, w.State())
	_, ok := w.Current()
	require.False(t, ok)
}

func TestRunOnce_ExhaustsJob(t *testing.T) {
	e := newEnv(t)
	job := e.createJob(t, "not-in-the-list")
	w := e.newWorker(t, e.coord)

	for range job.SubtaskCount {
		outcome, err := w.RunOnce(t.Context())
		require.NoError(t, err)
		require.Equal(t, OutcomeExhausted, outcome)
	}

	outcome, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeIdle, outcome)

	view, err := e.coord.GetJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Nil(t, view.Answer)
	require.NotNil(t, view.Progress)
	require.True(t, view.Progress.Exhausted)
}

func TestRunOnce_InvalidDescriptor(t *testing.T) {
	e := newEnv(t)
	job := e.createJob(t, "hunter2")

	// a worker that does not know the wordlist abandons the subtask locally
	registry, err := types.NewRegistry(types.DefaultAlgorithms(), map[string]int{types.WordlistRockYou: 100})
	require.NoError(t, err)
	rec := newOutcomeRecorder()
	w := e.newWorker(t, e.coord, WithRegistry(registry), WithMetrics(rec))

	outcome, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, OutcomeInvalid, outcome)
	require.Equal(t, []string{"invalid"}, rec.snapshot())

	view, err := e.coord.GetJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Equal(t, 1, view.Progress.Claimed)
	require.Equal(t, 0, view.Progress.Searched)
}

func TestRunOnce_LeaseLost(t *testing.T) {
	e := newEnv(t)
	job := e.createJob(t, "hunter2")

	searcher := &blockingSearcher{started: make(chan struct{})}
	rec := newOutcomeRecorder()
	var lost atomic.Int32
	w := e.newWorker(t, e.coord, WithSearcher(searcher), WithMetrics(rec), WithHooks(&types.Hooks{
		OnLeaseLost: func(context.Context, types.SubTaskClaim) error {
			lost.Add(1)
			return nil
		},
	}))

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := w.RunOnce(t.Context())
		done <- result{outcome, err}
	}()

	select {
	case <-searcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started computing")
	}
	require.Equal(t, types.StateComputing, w.State())
	claim, ok := w.Current()
	require.True(t, ok)

	// a stale nonce from the same worker revokes the lease
	res, err := e.coord.Heartbeat(t.Context(), claim.JobID, claim.SubtaskID, w.ID(), uuid.NewString())
	require.NoError(t, err)
	require.False(t, res.Accepted())

	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("computation was not cancelled")
	}
	require.NoError(t, r.err)
	require.Equal(t, OutcomeLost, r.outcome)
	require.EqualValues(t, 1, lost.Load())
	require.Equal(t, []string{"lost"}, rec.snapshot())

	_, ok = w.Current()
	require.False(t, ok)

	view, err := e.coord.GetJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job.SubtaskCount, view.Progress.Queued)
	require.Zero(t, view.Progress.Claimed)
}

func TestRunOnce_RenewsWhileComputing(t *testing.T) {
	e := newEnv(t)
	e.createJob(t, "hunter2")

	searcher := &blockingSearcher{started: make(chan struct{})}
	rec := newOutcomeRecorder()
	w := e.newWorker(t, e.coord, WithSearcher(searcher), WithMetrics(rec))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := w.RunOnce(ctx)
		done <- err
	}()

	<-searcher.started
	// outlive the 1s lease TTL several times over
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.heartbeats[true] >= 3
	}, 5*time.Second, 20*time.Millisecond)

	claim, ok := w.Current()
	require.True(t, ok)
	report, err := e.coord.Sweep(t.Context())
	require.NoError(t, err)
	require.Zero(t, report.Recovered())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Zero(t, rec.heartbeats[false])
	require.Equal(t, 0, claim.SubtaskID)
}

type failingCoordinator struct {
	Coordinator
	calls atomic.Int32
}

func (f *failingCoordinator) ListJobs(context.Context) (types.JobListing, error) {
	f.calls.Add(1)
	return types.JobListing{}, errors.Join(types.ErrStoreUnavailable, errors.New("connection refused"))
}

func TestRun_BacksOffOnErrors(t *testing.T) {
	e := newEnv(t)
	coord := &failingCoordinator{}

	var errs atomic.Int32
	var states sync.Map
	w := e.newWorker(t, coord, WithHooks(&types.Hooks{
		OnError: func(_ context.Context, err error) error {
			if errors.Is(err, types.ErrStoreUnavailable) {
				errs.Add(1)
			}
			return nil
		},
		OnStateChanged: func(_ context.Context, _, to types.WorkerState) error {
			states.Store(to, true)
			return nil
		},
	}))

	require.NoError(t, w.Start(t.Context()))
	require.ErrorIs(t, w.Start(t.Context()), ErrAlreadyStarted)
	require.Eventually(t, func() bool { return errs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())
	require.ErrorIs(t, w.Stop(), ErrNotStarted)

	require.Equal(t, types.StateStopped, w.State())
	_, sawBackoff := states.Load(types.StateBackoff)
	require.True(t, sawBackoff)
	require.GreaterOrEqual(t, coord.calls.Load(), int32(2))
}

func TestRun_SolvesJobInBackground(t *testing.T) {
	e := newEnv(t)
	job := e.createJob(t, "hunter2")

	workers := []*Worker{e.newWorker(t, e.coord), e.newWorker(t, e.coord)}
	for _, w := range workers {
		require.NoError(t, w.Start(t.Context()))
	}

	require.Eventually(t, func() bool {
		view, err := e.coord.GetJob(t.Context(), job.ID)
		return err == nil && view.Answer != nil
	}, 5*time.Second, 20*time.Millisecond)

	for _, w := range workers {
		require.NoError(t, w.Stop())
	}

	stats, err := e.coord.GetStats(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, stats.JobsSolved)
}

func TestRunOnce_OverHTTP(t *testing.T) {
	e := newEnv(t)
	job := e.createJob(t, "hunter2")

	srv := httptest.NewServer(httpapi.NewServer(e.coord, dctest.NewTestLogger(t)).Handler())
	t.Cleanup(srv.Close)
	client := httpapi.NewClient(srv.URL, 2*time.Second)

	reg, err := client.RegisterWorker(t.Context())
	require.NoError(t, err)
	w, err := New(&e.cfg, client, reg.WorkerID,
		WithLogger(dctest.NewTestLogger(t)), WithRegistry(e.coord.Registry()))
	require.NoError(t, err)

	var outcomes []Outcome
	for range job.SubtaskCount {
		outcome, err := w.RunOnce(t.Context())
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
		if outcome == OutcomeFound {
			break
		}
	}
	require.Equal(t, []Outcome{OutcomeExhausted, OutcomeFound}, outcomes)

	view, err := client.GetJob(t.Context(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "hunter2", *view.Answer)
}
