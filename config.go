package distcomp

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ngruychev/distributed-computing/types"
)

// RegistryConfig lists the supported algorithms and wordlists.
//
// The registry is built once by NewCoordinator and never changes afterwards.
type RegistryConfig struct {
	// Algorithms is the set of accepted hash algorithms.
	Algorithms []types.Algorithm `yaml:"algorithms"`

	// Wordlists maps a wordlist file name to its number of lines.
	Wordlists map[string]int `yaml:"wordlists"`
}

// Build validates the table and returns the immutable registry.
func (r RegistryConfig) Build() (*types.Registry, error) {
	return types.NewRegistry(r.Algorithms, r.Wordlists)
}

// KVBucketConfig configures NATS JetStream KV bucket names and TTLs.
type KVBucketConfig struct {
	// JobsBucket holds job records, queue records, subtask descriptors,
	// fingerprints and worker registrations. It never expires entries.
	JobsBucket string `yaml:"jobsBucket"`

	// LeasesBucket holds one lease per claimed subtask.
	LeasesBucket string `yaml:"leasesBucket"`

	// LeasesTTL is the bucket-level TTL of the leases bucket (0 = no expiration).
	// It only garbage-collects leases nobody swept; lease expiry itself is
	// decided by the expiry time stored in each lease.
	// Recommended: 3x LeaseTTL.
	LeasesTTL time.Duration `yaml:"leasesTtl"`
}

// Config is the configuration of the Coordinator.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// LeaseTTL is how long a lease stays valid without a renewal.
	// Workers must heartbeat more often than this.
	LeaseTTL time.Duration `yaml:"leaseTtl"`

	// SweepInterval is the time between two failover sweeps.
	// Must not exceed LeaseTTL.
	SweepInterval time.Duration `yaml:"sweepInterval"`

	// OperationTimeout bounds every coordinator operation, including all of
	// its store round trips.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ClaimMaxAttempts bounds the compare-and-swap retries of a single update
	// to a queue record or the job index.
	ClaimMaxAttempts int `yaml:"claimMaxAttempts"`

	// SkipAnswerVerification accepts any non-empty answer without hashing it.
	SkipAnswerVerification bool `yaml:"skipAnswerVerification"`

	// Registry is the algorithm and wordlist table.
	Registry RegistryConfig `yaml:"registry"`

	// KVBuckets controls NATS JetStream KV bucket configuration.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LeaseTTL:         15 * time.Second,
		SweepInterval:    5 * time.Second,
		OperationTimeout: 5 * time.Second,
		ClaimMaxAttempts: 32,
		Registry: RegistryConfig{
			Algorithms: types.DefaultAlgorithms(),
			Wordlists:  types.DefaultWordlists(),
		},
		KVBuckets: KVBucketConfig{
			JobsBucket:   "crack-jobs",
			LeasesBucket: "crack-leases",
			LeasesTTL:    45 * time.Second,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = defaults.LeaseTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = min(defaults.SweepInterval, cfg.LeaseTTL)
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ClaimMaxAttempts == 0 {
		cfg.ClaimMaxAttempts = defaults.ClaimMaxAttempts
	}
	if len(cfg.Registry.Algorithms) == 0 {
		cfg.Registry.Algorithms = defaults.Registry.Algorithms
	}
	if len(cfg.Registry.Wordlists) == 0 {
		cfg.Registry.Wordlists = defaults.Registry.Wordlists
	}
	if cfg.KVBuckets.JobsBucket == "" {
		cfg.KVBuckets.JobsBucket = defaults.KVBuckets.JobsBucket
	}
	if cfg.KVBuckets.LeasesBucket == "" {
		cfg.KVBuckets.LeasesBucket = defaults.KVBuckets.LeasesBucket
	}
	// Note: LeasesTTL of 0 is valid (no expiration), so we don't apply default
}

// Validate checks configuration constraints.
//
// Hard Validation Rules:
//   - LeaseTTL > 0
//   - 0 < SweepInterval <= LeaseTTL (an expired lease is found within one more TTL)
//   - OperationTimeout > 0, ClaimMaxAttempts > 0
//   - LeasesTTL is 0 or >= LeaseTTL (the bucket must not drop live leases)
//   - the registry is non-empty with positive line counts
//   - bucket names are set and distinct
//
// Returns:
//   - error: wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.LeaseTTL <= 0 {
		return fmt.Errorf("%w: LeaseTTL must be > 0, got %v", types.ErrInvalidConfig, cfg.LeaseTTL)
	}

	if cfg.SweepInterval <= 0 || cfg.SweepInterval > cfg.LeaseTTL {
		return fmt.Errorf("%w: SweepInterval (%v) must be in (0, LeaseTTL=%v]",
			types.ErrInvalidConfig, cfg.SweepInterval, cfg.LeaseTTL)
	}

	if cfg.OperationTimeout <= 0 {
		return fmt.Errorf("%w: OperationTimeout must be > 0, got %v", types.ErrInvalidConfig, cfg.OperationTimeout)
	}

	if cfg.ClaimMaxAttempts <= 0 {
		return fmt.Errorf("%w: ClaimMaxAttempts must be > 0, got %d", types.ErrInvalidConfig, cfg.ClaimMaxAttempts)
	}

	if cfg.KVBuckets.LeasesTTL != 0 && cfg.KVBuckets.LeasesTTL < cfg.LeaseTTL {
		return fmt.Errorf("%w: KVBuckets.LeasesTTL (%v) must be 0 or >= LeaseTTL (%v)",
			types.ErrInvalidConfig, cfg.KVBuckets.LeasesTTL, cfg.LeaseTTL)
	}

	if cfg.KVBuckets.JobsBucket == "" || cfg.KVBuckets.LeasesBucket == "" {
		return fmt.Errorf("%w: bucket names must be set", types.ErrInvalidConfig)
	}
	if cfg.KVBuckets.JobsBucket == cfg.KVBuckets.LeasesBucket {
		return fmt.Errorf("%w: jobs and leases buckets must differ, both are %q",
			types.ErrInvalidConfig, cfg.KVBuckets.JobsBucket)
	}

	if _, err := cfg.Registry.Build(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are valid but not recommended.
//
// This is called after Validate() in NewCoordinator() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.SweepInterval > cfg.LeaseTTL/2 {
		logger.Warn(
			"SweepInterval is above half the LeaseTTL, lost subtasks will wait longer to be requeued",
			"sweepInterval", cfg.SweepInterval,
			"leaseTTL", cfg.LeaseTTL,
		)
	}

	if cfg.KVBuckets.LeasesTTL != 0 && cfg.KVBuckets.LeasesTTL < 2*cfg.LeaseTTL {
		logger.Warn(
			"leases bucket TTL is close to the lease TTL, a slow renewal may find its lease gone",
			"leasesTTL", cfg.KVBuckets.LeasesTTL,
			"recommended", 3*cfg.LeaseTTL,
		)
	}

	if cfg.SkipAnswerVerification {
		logger.Warn("answer verification is disabled, any non-empty answer solves a job")
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := distcomp.TestConfig()
//	cfg.Registry.Wordlists = map[string]int{"ezpz.txt": 25}
//	coord, err := distcomp.NewCoordinator(&cfg, jobs, leases)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.LeaseTTL = 1 * time.Second
	cfg.SweepInterval = 200 * time.Millisecond
	cfg.OperationTimeout = 2 * time.Second
	cfg.KVBuckets.LeasesTTL = 3 * time.Second

	return cfg
}

// LoadConfig reads a YAML file, fills in defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %w", types.ErrInvalidConfig, path, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
