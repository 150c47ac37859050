package natsutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/ngruychev/distributed-computing/types"
)

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", nats.ErrTimeout, true},
		{"wrapped no servers", fmt.Errorf("get job: %w", nats.ErrNoServers), true},
		{"no responders", nats.ErrNoResponders, true},
		{"closed", nats.ErrConnectionClosed, true},
		{"store unavailable", types.ErrStoreUnavailable, true},
		{"refused text", errors.New("dial tcp 127.0.0.1:4222: connect: connection refused"), true},
		{"not found", types.ErrNotFound, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsConnectivityError(tt.err))
		})
	}
}

func TestRunEmbedded(t *testing.T) {
	ns, nc, err := RunEmbedded(EmbeddedOptions{StoreDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	require.True(t, nc.IsConnected())
	require.True(t, ns.JetStreamEnabled())
}

func TestRunEmbedded_RequiresStoreDir(t *testing.T) {
	_, _, err := RunEmbedded(EmbeddedOptions{})
	require.Error(t, err)
}
