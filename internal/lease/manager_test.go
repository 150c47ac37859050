package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngruychev/distributed-computing/internal/keyspace"
	"github.com/ngruychev/distributed-computing/internal/kvstore"
	"github.com/ngruychev/distributed-computing/internal/queue"
	dctest "github.com/ngruychev/distributed-computing/testing"
	"github.com/ngruychev/distributed-computing/types"
)

const (
	job = "job-1"
	ttl = 10 * time.Second
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock   *fakeClock
	jobs    *kvstore.Memory
	leases  *kvstore.Memory
	queue   *queue.Queue
	manager *Manager
}

func newFixture(t *testing.T, total int) *fixture {
	t.Helper()

	f := &fixture{
		clock:  newFakeClock(),
		jobs:   kvstore.NewMemory(),
		leases: kvstore.NewMemory(),
	}
	f.queue = queue.New(f.jobs, queue.WithClock(f.clock.Now))
	f.manager = NewManager(f.leases, f.queue, ttl,
		WithClock(f.clock.Now),
		WithLogger(dctest.NewTestLogger(t)),
	)
	require.NoError(t, f.queue.Init(t.Context(), job, total))

	return f
}

// claim pops the next index and issues its lease, like the coordinator does.
func (f *fixture) claim(t *testing.T, worker string) (int, types.LeaseGrant) {
	t.Helper()

	idx, err := f.queue.Claim(t.Context(), job, worker)
	require.NoError(t, err)
	grant, err := f.manager.Issue(t.Context(), job, idx, worker)
	require.NoError(t, err)

	return idx, grant
}

func (f *fixture) record(t *testing.T) queue.Record {
	t.Helper()

	rec, err := f.queue.Get(t.Context(), job)
	require.NoError(t, err)

	return rec
}

func (f *fixture) openJobs(context.Context) ([]string, error) {
	return []string{job}, nil
}

func TestIssue(t *testing.T) {
	f := newFixture(t, 2)

	_, grant := f.claim(t, "w1")
	require.NotEmpty(t, grant.Nonce)
	require.Equal(t, f.clock.Now().Add(ttl), grant.ExpiresAt)

	l, _, err := f.manager.Get(t.Context(), job, 0)
	require.NoError(t, err)
	require.Equal(t, grant.Nonce, l.Nonce)
	require.Equal(t, "w1", l.WorkerID)
}

func TestRenew_RotatesNonce(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()
	idx, grant := f.claim(t, "w1")

	nonce := grant.Nonce
	seen := map[string]bool{nonce: true}
	for range 3 {
		f.clock.Advance(ttl / 2)

		res, err := f.manager.Renew(ctx, job, idx, "w1", nonce)
		require.NoError(t, err)
		renewed, ok := res.(types.Renewed)
		require.True(t, ok, "expected Renewed, got %T", res)
		require.False(t, seen[renewed.Nonce], "nonce must change on every renewal")
		require.Equal(t, f.clock.Now().Add(ttl), renewed.ExpiresAt)

		seen[renewed.Nonce] = true
		nonce = renewed.Nonce
	}

	rec := f.record(t)
	require.Equal(t, "w1", rec.Claims[idx].WorkerID)
}

func TestRenew_StaleNonceRequeues(t *testing.T) {
	f := newFixture(t, 2)
	ctx := t.Context()
	idx, grant := f.claim(t, "w1")

	res, err := f.manager.Renew(ctx, job, idx, "w1", grant.Nonce)
	require.NoError(t, err)
	require.True(t, res.Accepted())

	// the first nonce is single-use
	res, err = f.manager.Renew(ctx, job, idx, "w1", grant.Nonce)
	require.NoError(t, err)
	require.Equal(t, types.Rejected{}, res)

	rec := f.record(t)
	require.Empty(t, rec.Claims)
	require.Equal(t, []int{1, 0}, rec.Pending)

	_, _, err = f.manager.Get(ctx, job, idx)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestRenew_MissingLease(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	idx, err := f.queue.Claim(ctx, job, "w1")
	require.NoError(t, err)

	res, err := f.manager.Renew(ctx, job, idx, "w1", "anything")
	require.NoError(t, err)
	require.False(t, res.Accepted())
	require.Equal(t, []int{0}, f.record(t).Pending)
}

func TestRenew_Expired(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()
	idx, grant := f.claim(t, "w1")

	f.clock.Advance(ttl)

	res, err := f.manager.Renew(ctx, job, idx, "w1", grant.Nonce)
	require.NoError(t, err)
	require.False(t, res.Accepted())
	require.Equal(t, []int{0}, f.record(t).Pending)
}

func TestRenew_LateHeartbeatDoesNotStealNewClaim(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	idx, w1Grant := f.claim(t, "w1")
	f.clock.Advance(ttl)
	report, err := f.manager.Sweep(ctx, f.openJobs)
	require.NoError(t, err)
	require.Equal(t, 1, report.Expired)

	idx2, w2Grant := f.claim(t, "w2")
	require.Equal(t, idx, idx2)

	res, err := f.manager.Renew(ctx, job, idx, "w1", w1Grant.Nonce)
	require.NoError(t, err)
	require.False(t, res.Accepted())

	rec := f.record(t)
	require.Equal(t, "w2", rec.Claims[idx].WorkerID)
	require.Empty(t, rec.Pending)

	res, err = f.manager.Renew(ctx, job, idx, "w2", w2Grant.Nonce)
	require.NoError(t, err)
	require.True(t, res.Accepted())
}

func TestRenew_WrongWorker(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()
	idx, grant := f.claim(t, "w1")

	res, err := f.manager.Renew(ctx, job, idx, "w2", grant.Nonce)
	require.NoError(t, err)
	require.False(t, res.Accepted())

	// w1 still owns the subtask
	require.Equal(t, "w1", f.record(t).Claims[idx].WorkerID)
}

func TestRenew_Concurrent_AtMostOneAccepted(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()
	idx, grant := f.claim(t, "w1")

	var wg sync.WaitGroup
	results := make(chan types.HeartbeatResult, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.manager.Renew(ctx, job, idx, "w1", grant.Nonce)
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	var nonce string
	for res := range results {
		if r, ok := res.(types.Renewed); ok {
			accepted++
			nonce = r.Nonce
		}
	}
	require.LessOrEqual(t, accepted, 1)

	if accepted == 1 {
		l, _, err := f.manager.Get(ctx, job, idx)
		if err == nil {
			require.Equal(t, nonce, l.Nonce)
		}
	}
}

func TestRevoke_KeepsNewOwnersLease(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	idx, _ := f.claim(t, "w1")
	_, rev, err := f.manager.Get(ctx, job, idx)
	require.NoError(t, err)

	// queue revoked first, then someone else claims before the lease delete runs
	res, err := f.queue.Revoke(ctx, job, idx, "w1")
	require.NoError(t, err)
	require.Equal(t, queue.Requeued, res)
	_, w2Grant := f.claim(t, "w2")

	_, err = f.manager.Revoke(ctx, job, idx, "w1", rev, ReasonRejected)
	require.NoError(t, err)

	l, _, err := f.manager.Get(ctx, job, idx)
	require.NoError(t, err)
	require.Equal(t, w2Grant.Nonce, l.Nonce)
}

func TestDrop(t *testing.T) {
	f := newFixture(t, 2)
	ctx := t.Context()
	f.claim(t, "w1")
	f.claim(t, "w2")

	require.NoError(t, f.manager.DropAll(ctx, job, []int{0, 1}))
	require.Equal(t, 0, f.leases.Len())

	require.NoError(t, f.manager.Drop(ctx, job, 0))
}

func TestLeaseKeyLayout(t *testing.T) {
	f := newFixture(t, 1)
	f.claim(t, "w1")

	_, err := f.leases.Get(t.Context(), keyspace.Lease(job, 0))
	require.NoError(t, err)
}
