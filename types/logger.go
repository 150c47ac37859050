package types

// Logger defines methods for structured logging.
//
// All methods accept key-value pairs for structured fields. Implementations
// live in internal/logging; a nil Logger passed to any constructor is
// replaced by a no-op logger.
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at WarnLevel. Failover and lease rejection are
	// reported at this level or below.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at ErrorLevel.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message at FatalLevel and calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
}
