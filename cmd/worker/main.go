// Package main runs a worker against a coordinator's HTTP API.
//
// Usage:
//
//	worker -coordinator http://localhost:8080 -wordlists ./wordlists
//
// COORDINATOR_URL overrides the default of -coordinator. Without -worker-id the
// worker registers itself and uses the issued id.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngruychev/distributed-computing/internal/httpapi"
	"github.com/ngruychev/distributed-computing/internal/logging"
	"github.com/ngruychev/distributed-computing/types"
	"github.com/ngruychev/distributed-computing/worker"
)

type flags struct {
	configPath  string
	coordinator string
	workerID    string
	wordlistDir string
	leaseTTL    time.Duration
	logFormat   string
	logLevel    string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML worker configuration file")
	flag.StringVar(&f.coordinator, "coordinator", envOr("COORDINATOR_URL", "http://localhost:8080"), "Coordinator base URL")
	flag.StringVar(&f.workerID, "worker-id", "", "Registered worker id (registers a new one when empty)")
	flag.StringVar(&f.wordlistDir, "wordlists", "", "Wordlist directory (overrides the config file)")
	flag.DurationVar(&f.leaseTTL, "lease-ttl", 15*time.Second, "Coordinator lease TTL, used to check the heartbeat interval")
	flag.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	if err := run(f); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	logger, err := logging.New(f.logFormat, f.logLevel, os.Stderr)
	if err != nil {
		return err
	}

	cfg := worker.DefaultConfig()
	if f.configPath != "" {
		if cfg, err = worker.LoadConfig(f.configPath); err != nil {
			return err
		}
	}
	if f.wordlistDir != "" {
		cfg.WordlistDir = f.wordlistDir
	}
	if err := cfg.ValidateLeaseTTL(f.leaseTTL); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := httpapi.NewClient(f.coordinator, cfg.RequestTimeout)
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("coordinator %s not reachable: %w", f.coordinator, err)
	}

	workerID := f.workerID
	if workerID == "" {
		reg, err := client.RegisterWorker(ctx)
		if err != nil {
			return fmt.Errorf("register worker: %w", err)
		}
		workerID = reg.WorkerID
	}

	w, err := worker.New(&cfg, client, workerID,
		worker.WithLogger(logger.With("worker", workerID)),
		worker.WithHooks(&types.Hooks{
			OnSolved: func(_ context.Context, job *types.Job) error {
				logger.Info("password found", "job", job.ID, "name", job.Name)
				return nil
			},
		}),
	)
	if err != nil {
		return err
	}

	logger.Info("worker running", "worker", workerID, "coordinator", f.coordinator, "wordlists", cfg.WordlistDir)

	return w.Run(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
