package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.NotNil(t, nc)
	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(1*time.Second))

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	require.NotNil(t, js)
}

// TestStartEmbeddedNATS_ParallelTests verifies parallel servers do not collide on ports.
func TestStartEmbeddedNATS_ParallelTests(t *testing.T) {
	t.Parallel()

	for range 5 {
		t.Run("parallel", func(t *testing.T) {
			t.Parallel()

			_, nc := StartEmbeddedNATS(t)
			require.NotNil(t, nc)
			require.True(t, nc.IsConnected())
		})
	}
}

func TestCreateJetStreamKV(t *testing.T) {
	_, nc := StartEmbeddedNATS(t)
	kv := CreateJetStreamKV(t, nc, "test-bucket", 0)

	ctx := t.Context()
	rev, err := kv.Create(ctx, "k", []byte("v"))
	require.NoError(t, err)
	require.Positive(t, rev)

	_, err = kv.Create(ctx, "k", []byte("v2"))
	require.ErrorIs(t, err, jetstream.ErrKeyExists)

	entry, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(entry.Value()))
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)

	require.NotPanics(t, func() {
		logger.Debug("debug", "k", "v")
		logger.Info("info", "odd")
		logger.Warn("warn")
		logger.Error("error", "a", 1, "b", 2)
	})
}

func TestFormatKeyValues(t *testing.T) {
	require.Equal(t, "", formatKeyValues(nil))
	require.Equal(t, "a=1 b=2", formatKeyValues([]any{"a", 1, "b", 2}))
	require.Equal(t, "a=1 b=<missing>", formatKeyValues([]any{"a", 1, "b"}))
}
