package natsutil

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedOptions configures an in-process NATS server.
type EmbeddedOptions struct {
	// Host to listen on. Empty means 127.0.0.1.
	Host string
	// Port to listen on. Zero or negative picks a random free port.
	Port int
	// StoreDir is the JetStream storage directory. Required.
	StoreDir string
	// ReadyTimeout bounds how long to wait for the server. Zero means 5s.
	ReadyTimeout time.Duration
	// Logs enables the server's own logging.
	Logs bool
}

// RunEmbedded starts a NATS server with JetStream in the current process and
// connects a client to it.
//
// The caller owns both return values: close the connection, then call
// Shutdown and WaitForShutdown on the server.
//
// Parameters:
//   - opts: Server options
//
// Returns:
//   - *server.Server: The running server
//   - *nats.Conn: A client connected to it
//   - error: If the server did not start or the client could not connect
func RunEmbedded(opts EmbeddedOptions) (*server.Server, *nats.Conn, error) {
	if opts.StoreDir == "" {
		return nil, nil, fmt.Errorf("embedded nats: store dir is required")
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port <= 0 {
		opts.Port = -1
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}

	ns, err := server.NewServer(&server.Options{
		Host:      opts.Host,
		Port:      opts.Port,
		JetStream: true,
		StoreDir:  opts.StoreDir,
		NoLog:     !opts.Logs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create embedded nats server: %w", err)
	}
	if opts.Logs {
		ns.ConfigureLogger()
	}

	go ns.Start()

	if !ns.ReadyForConnections(opts.ReadyTimeout) {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("embedded nats server not ready within %s", opts.ReadyTimeout)
	}

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
	)
	if err != nil {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("connect to embedded nats server: %w", err)
	}

	return ns, nc, nil
}
