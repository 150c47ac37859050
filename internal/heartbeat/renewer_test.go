package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngruychev/distributed-computing/types"
)

// fakeLease renews with a rotating nonce and can be told to reject or fail.
type fakeLease struct {
	mu      sync.Mutex
	nonce   string
	seen    []string
	calls   int
	reject  bool
	failErr error
}

func (f *fakeLease) renew(_ context.Context, nonce string) (types.HeartbeatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.seen = append(f.seen, nonce)
	if f.failErr != nil {
		return nil, f.failErr
	}
	if f.reject || nonce != f.nonce {
		return types.Rejected{}, nil
	}
	f.nonce = fmt.Sprintf("n%d", f.calls)

	return types.Renewed{Nonce: f.nonce, ExpiresAt: time.Now().Add(time.Second)}, nil
}

func (f *fakeLease) set(fn func(f *fakeLease)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeLease) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type heartbeatCounter struct {
	ok, failed atomic.Int32
}

func (h *heartbeatCounter) RecordHeartbeat(_ string, success bool) {
	if success {
		h.ok.Add(1)
	} else {
		h.failed.Add(1)
	}
}

func (h *heartbeatCounter) RecordSubtaskProcessed(string) {}

func TestRenewer_Lifecycle(t *testing.T) {
	t.Run("start and stop", func(t *testing.T) {
		lease := &fakeLease{nonce: "n0"}
		r := New("w1", "n0", lease.renew, nil, WithInterval(time.Hour))

		require.NoError(t, r.Start())
		require.ErrorIs(t, r.Start(), ErrAlreadyStarted)
		require.NoError(t, r.Stop())
		require.NoError(t, r.Stop())
		require.Zero(t, lease.callCount())
	})

	t.Run("stop before start", func(t *testing.T) {
		r := New("w1", "n0", (&fakeLease{}).renew, nil)
		require.ErrorIs(t, r.Stop(), ErrNotStarted)
	})

	t.Run("empty nonce", func(t *testing.T) {
		r := New("w1", "", (&fakeLease{}).renew, nil)
		require.ErrorIs(t, r.Start(), ErrNoNonce)
	})
}

func TestRenewer_RotatesNonce(t *testing.T) {
	lease := &fakeLease{nonce: "n0"}
	counter := &heartbeatCounter{}
	r := New("w1", "n0", lease.renew, func(error) { t.Error("lease should not be lost") },
		WithInterval(10*time.Millisecond), WithMetrics(counter))

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return lease.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())

	lease.mu.Lock()
	defer lease.mu.Unlock()
	// every renewal presented the nonce returned by the previous one
	require.Equal(t, "n0", lease.seen[0])
	for i := 1; i < len(lease.seen); i++ {
		require.Equal(t, fmt.Sprintf("n%d", i), lease.seen[i])
	}
	require.Equal(t, lease.nonce, r.Nonce())
	require.False(t, r.Lost())
	require.EqualValues(t, lease.calls, counter.ok.Load())
}

func TestRenewer_RejectionCancelsOnce(t *testing.T) {
	lease := &fakeLease{nonce: "n0", reject: true}
	counter := &heartbeatCounter{}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	var lostCalls atomic.Int32
	onLost := func(cause error) {
		lostCalls.Add(1)
		cancel(cause)
	}

	r := New("w1", "n0", lease.renew, onLost, WithInterval(10*time.Millisecond), WithMetrics(counter))
	require.NoError(t, r.Start())

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("computation was not cancelled")
	}
	require.ErrorIs(t, context.Cause(ctx), types.ErrLeaseRejected)

	require.NoError(t, r.Stop())
	require.True(t, r.Lost())
	require.EqualValues(t, 1, lostCalls.Load())
	require.Equal(t, 1, lease.callCount())
	require.EqualValues(t, 1, counter.failed.Load())
}

func TestRenewer_TransportErrorKeepsTrying(t *testing.T) {
	lease := &fakeLease{nonce: "n0", failErr: errors.New("connection refused")}
	counter := &heartbeatCounter{}
	r := New("w1", "n0", lease.renew, func(error) { t.Error("transport errors must not drop the lease") },
		WithInterval(10*time.Millisecond), WithMetrics(counter))

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return lease.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	lease.set(func(f *fakeLease) { f.failErr = nil })
	require.Eventually(t, func() bool { return counter.ok.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())

	require.False(t, r.Lost())
	require.GreaterOrEqual(t, counter.failed.Load(), int32(2))
	require.Equal(t, "n0", lease.seen[0])
}

func TestRenewer_NoRenewalAfterStop(t *testing.T) {
	lease := &fakeLease{nonce: "n0"}
	r := New("w1", "n0", lease.renew, nil, WithInterval(5*time.Millisecond))

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return lease.callCount() >= 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, r.Stop())

	calls := lease.callCount()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, calls, lease.callCount())
}
