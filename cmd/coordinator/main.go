// Package main runs the coordinator: the HTTP API, the failover sweeper and
// the Prometheus endpoint, backed by NATS JetStream KV.
//
// Usage:
//
//	coordinator -config coordinator.yaml -addr :8080
//	coordinator -embedded-nats -nats-store-dir /var/lib/distcomp
//
// NATS_URL and COORDINATOR_ADDR override the defaults of -nats-url and -addr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	distcomp "github.com/ngruychev/distributed-computing"
	"github.com/ngruychev/distributed-computing/internal/httpapi"
	"github.com/ngruychev/distributed-computing/internal/logging"
	"github.com/ngruychev/distributed-computing/internal/metrics"
	"github.com/ngruychev/distributed-computing/internal/natsutil"
)

const shutdownTimeout = 10 * time.Second

type flags struct {
	configPath   string
	addr         string
	natsURL      string
	embeddedNATS bool
	natsStoreDir string
	logFormat    string
	logLevel     string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML configuration file (defaults are used when empty)")
	flag.StringVar(&f.addr, "addr", envOr("COORDINATOR_ADDR", ":8080"), "HTTP listen address")
	flag.StringVar(&f.natsURL, "nats-url", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
	flag.BoolVar(&f.embeddedNATS, "embedded-nats", false, "Run an in-process NATS server instead of connecting to -nats-url")
	flag.StringVar(&f.natsStoreDir, "nats-store-dir", "", "JetStream storage directory for -embedded-nats (temp dir when empty)")
	flag.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	if err := run(f); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "coordinator: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	logger, err := logging.New(f.logFormat, f.logLevel, os.Stderr)
	if err != nil {
		return err
	}

	cfg := distcomp.DefaultConfig()
	if f.configPath != "" {
		if cfg, err = distcomp.LoadConfig(f.configPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, shutdownNATS, err := connectNATS(f)
	if err != nil {
		return err
	}
	defer shutdownNATS()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(reg, "")

	jobs, leases, err := distcomp.OpenNATSStores(ctx, js, cfg, collector)
	if err != nil {
		return fmt.Errorf("open kv buckets: %w", err)
	}

	coord, err := distcomp.NewCoordinator(&cfg, jobs, leases,
		distcomp.WithLogger(logger),
		distcomp.WithMetrics(collector),
	)
	if err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = coord.Stop() }()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", httpapi.NewServer(coord, logger).Handler())

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", "addr", f.addr, "leaseTTL", cfg.LeaseTTL, "sweepInterval", cfg.SweepInterval)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// connectNATS returns a connection and a cleanup function for it.
func connectNATS(f flags) (*nats.Conn, func(), error) {
	if !f.embeddedNATS {
		nc, err := nats.Connect(f.natsURL, nats.Name("distcomp-coordinator"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to nats %s: %w", f.natsURL, err)
		}

		return nc, func() { _ = nc.Drain() }, nil
	}

	storeDir := f.natsStoreDir
	removeDir := func() {}
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "distcomp-nats-")
		if err != nil {
			return nil, nil, fmt.Errorf("create nats store dir: %w", err)
		}
		storeDir = dir
		removeDir = func() { _ = os.RemoveAll(dir) }
	}

	ns, nc, err := natsutil.RunEmbedded(natsutil.EmbeddedOptions{StoreDir: storeDir})
	if err != nil {
		removeDir()
		return nil, nil, err
	}

	return nc, func() {
		nc.Close()
		shutdownServer(ns)
		removeDir()
	}, nil
}

func shutdownServer(ns *server.Server) {
	ns.Shutdown()
	ns.WaitForShutdown()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
