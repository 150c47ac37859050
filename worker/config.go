package worker

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ngruychev/distributed-computing/types"
)

// Config is the configuration of a Worker.
//
// All duration fields accept standard Go duration strings like "2s" or "500ms".
type Config struct {
	// HeartbeatInterval is the time between two lease renewals.
	// Must be below the coordinator's LeaseTTL.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// IdleBackoff is the sleep after finding no claimable subtask.
	IdleBackoff time.Duration `yaml:"idleBackoff"`

	// ErrorBackoff is the sleep after a failed iteration.
	ErrorBackoff time.Duration `yaml:"errorBackoff"`

	// RequestTimeout bounds every call to the coordinator.
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// WordlistDir is the directory holding the wordlist files.
	WordlistDir string `yaml:"wordlistDir"`
}

// DefaultConfig returns a Config with sensible defaults for a 15s lease TTL.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		IdleBackoff:       2 * time.Second,
		ErrorBackoff:      5 * time.Second,
		RequestTimeout:    5 * time.Second,
		WordlistDir:       "wordlists",
	}
}

// SetDefaults fills in missing configuration values.
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.IdleBackoff == 0 {
		cfg.IdleBackoff = defaults.IdleBackoff
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.WordlistDir == "" {
		cfg.WordlistDir = defaults.WordlistDir
	}
}

// Validate checks configuration constraints.
//
// Returns:
//   - error: wrapping types.ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: HeartbeatInterval must be > 0, got %v", types.ErrInvalidConfig, cfg.HeartbeatInterval)
	}
	if cfg.IdleBackoff <= 0 || cfg.ErrorBackoff <= 0 {
		return fmt.Errorf("%w: backoffs must be > 0, got idle=%v error=%v",
			types.ErrInvalidConfig, cfg.IdleBackoff, cfg.ErrorBackoff)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("%w: RequestTimeout must be > 0, got %v", types.ErrInvalidConfig, cfg.RequestTimeout)
	}
	if cfg.WordlistDir == "" {
		return fmt.Errorf("%w: WordlistDir must be set", types.ErrInvalidConfig)
	}

	return nil
}

// ValidateLeaseTTL checks that renewals happen well within the lease TTL.
func (cfg *Config) ValidateLeaseTTL(leaseTTL time.Duration) error {
	if cfg.HeartbeatInterval >= leaseTTL {
		return fmt.Errorf("%w: HeartbeatInterval (%v) must be below LeaseTTL (%v)",
			types.ErrInvalidConfig, cfg.HeartbeatInterval, leaseTTL)
	}

	return nil
}

// TestConfig returns a configuration with fast timings for tests.
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.HeartbeatInterval = 100 * time.Millisecond
	cfg.IdleBackoff = 20 * time.Millisecond
	cfg.ErrorBackoff = 50 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second

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
