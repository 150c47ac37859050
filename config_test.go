package distcomp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ngruychev/distributed-computing/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 15*time.Second, cfg.LeaseTTL)
	require.Equal(t, 5*time.Second, cfg.SweepInterval)
	require.Equal(t, 5*time.Second, cfg.OperationTimeout)
	require.Equal(t, 32, cfg.ClaimMaxAttempts)
	require.False(t, cfg.SkipAnswerVerification)
	require.Equal(t, "crack-jobs", cfg.KVBuckets.JobsBucket)
	require.Equal(t, "crack-leases", cfg.KVBuckets.LeasesBucket)
	require.Equal(t, 45*time.Second, cfg.KVBuckets.LeasesTTL)
	require.Equal(t, 14_344_391, cfg.Registry.Wordlists[types.WordlistRockYou])
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, 15*time.Second, cfg.LeaseTTL)
		require.Equal(t, 5*time.Second, cfg.SweepInterval)
		require.Equal(t, "crack-jobs", cfg.KVBuckets.JobsBucket)
		require.ElementsMatch(t, types.DefaultAlgorithms(), cfg.Registry.Algorithms)
		require.Zero(t, cfg.KVBuckets.LeasesTTL)
		require.NoError(t, cfg.Validate())
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			LeaseTTL:         4 * time.Second,
			SweepInterval:    time.Second,
			OperationTimeout: 3 * time.Second,
			ClaimMaxAttempts: 8,
			Registry: RegistryConfig{
				Algorithms: []types.Algorithm{types.AlgorithmMD5},
				Wordlists:  map[string]int{"small.txt": 100},
			},
			KVBuckets: KVBucketConfig{JobsBucket: "j", LeasesBucket: "l", LeasesTTL: 12 * time.Second},
		}
		SetDefaults(&cfg)

		require.Equal(t, 4*time.Second, cfg.LeaseTTL)
		require.Equal(t, time.Second, cfg.SweepInterval)
		require.Equal(t, 8, cfg.ClaimMaxAttempts)
		require.Equal(t, map[string]int{"small.txt": 100}, cfg.Registry.Wordlists)
		require.Equal(t, "j", cfg.KVBuckets.JobsBucket)
	})

	t.Run("sweep interval never defaults above a short lease", func(t *testing.T) {
		cfg := Config{LeaseTTL: 2 * time.Second}
		SetDefaults(&cfg)

		require.Equal(t, 2*time.Second, cfg.SweepInterval)
		require.NoError(t, cfg.Validate())
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lease ttl", func(c *Config) { c.LeaseTTL = 0 }},
		{"sweep above lease ttl", func(c *Config) { c.SweepInterval = c.LeaseTTL + time.Second }},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"zero operation timeout", func(c *Config) { c.OperationTimeout = 0 }},
		{"zero claim attempts", func(c *Config) { c.ClaimMaxAttempts = 0 }},
		{"leases bucket ttl below lease ttl", func(c *Config) { c.KVBuckets.LeasesTTL = time.Second }},
		{"missing bucket", func(c *Config) { c.KVBuckets.LeasesBucket = "" }},
		{"same bucket", func(c *Config) { c.KVBuckets.LeasesBucket = c.KVBuckets.JobsBucket }},
		{"empty registry", func(c *Config) { c.Registry.Wordlists = nil }},
		{"unknown algorithm", func(c *Config) { c.Registry.Algorithms = []types.Algorithm{"CRC32"} }},
		{"bad line count", func(c *Config) { c.Registry.Wordlists = map[string]int{"x.txt": 0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

type recordingLogger struct {
	types.Logger
	warnings []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) { l.warnings = append(l.warnings, msg) }

func TestConfig_ValidateWithWarnings(t *testing.T) {
	cfg := DefaultConfig()
	l := &recordingLogger{}
	cfg.ValidateWithWarnings(l)
	require.Empty(t, l.warnings)

	cfg.SweepInterval = cfg.LeaseTTL
	cfg.KVBuckets.LeasesTTL = cfg.LeaseTTL
	cfg.SkipAnswerVerification = true
	cfg.ValidateWithWarnings(l)
	require.Len(t, l.warnings, 3)
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	require.Equal(t, time.Second, cfg.LeaseTTL)
	require.Equal(t, 200*time.Millisecond, cfg.SweepInterval)
	require.NoError(t, cfg.Validate())
}

func TestConfig_YAML(t *testing.T) {
	data := `
leaseTtl: 20s
sweepInterval: 4s
skipAnswerVerification: true
registry:
  algorithms: [MD5, SHA256]
  wordlists:
    ezpz.txt: 25
kvBuckets:
  jobsBucket: jobs
  leasesBucket: leases
  leasesTtl: 1m
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))

	require.Equal(t, 20*time.Second, cfg.LeaseTTL)
	require.Equal(t, 4*time.Second, cfg.SweepInterval)
	require.True(t, cfg.SkipAnswerVerification)
	require.Equal(t, []types.Algorithm{types.AlgorithmMD5, types.AlgorithmSHA256}, cfg.Registry.Algorithms)
	require.Equal(t, map[string]int{"ezpz.txt": 25}, cfg.Registry.Wordlists)
	require.Equal(t, time.Minute, cfg.KVBuckets.LeasesTTL)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("fills defaults", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		require.NoError(t, os.WriteFile(path, []byte("leaseTtl: 30s\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 30*time.Second, cfg.LeaseTTL)
		require.Equal(t, 5*time.Second, cfg.SweepInterval)
		require.Equal(t, "crack-jobs", cfg.KVBuckets.JobsBucket)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("leaseTtl: 1s\nsweepInterval: 5s\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("leaseTtl: [\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})
}
