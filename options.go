package distcomp

import "time"

// Option configures a Coordinator with optional dependencies.
type Option func(*coordinatorOptions)

// coordinatorOptions holds optional Coordinator configuration.
type coordinatorOptions struct {
	metrics MetricsCollector
	logger  Logger
	now     func() time.Time
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewCoordinator
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "distcomp")
//	coord, err := distcomp.NewCoordinator(&cfg, jobs, leases, distcomp.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *coordinatorOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewCoordinator
func WithLogger(logger Logger) Option {
	return func(o *coordinatorOptions) {
		o.logger = logger
	}
}

// WithClock replaces time.Now for lease expiry and record timestamps.
//
// Every coordinator sharing a store must agree on time; tests use this to
// expire leases without sleeping.
func WithClock(now func() time.Time) Option {
	return func(o *coordinatorOptions) {
		o.now = now
	}
}
