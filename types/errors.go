package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the coordinator.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// Components wrap store and transport errors with context using
// fmt.Errorf("%s: %w", msg, err) and keep the sentinel reachable.
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Coordinator, Lease, Store, Lifecycle)
//   - Use consistent messages across similar error types

// Coordinator errors - returned by job, claim and answer operations.
var (
	// ErrValidation is returned when input does not match the declared shapes or
	// the algorithm/wordlist registry. No state is changed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a job, subtask or worker does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoSubtasksAvailable is returned when a job exists but its pending queue is empty.
	// It is distinct from ErrNotFound: the caller should back off, not give up on the job.
	ErrNoSubtasksAvailable = errors.New("no subtasks available")

	// ErrAnswerMismatch is returned when a submitted answer does not hash to the job's password.
	ErrAnswerMismatch = errors.New("answer does not match password hash")

	// ErrContention is returned when a compare-and-swap loop exhausts its attempts.
	ErrContention = errors.New("too much contention on record")
)

// Lease errors.
var (
	// ErrLeaseRejected signals that a renewal presented a stale or absent nonce.
	// The coordinator has already revoked the claim and requeued the subtask.
	ErrLeaseRejected = errors.New("lease rejected")
)

// Store errors.
var (
	// ErrStoreUnavailable indicates the shared store cannot be reached.
	// Fatal for the current request; callers retry with their own backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNoKeysFound is returned when the store has no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// Lifecycle errors.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("not started")

	// ErrStoreRequired is returned when a component is built without a store.
	ErrStoreRequired = errors.New("store is required")
)

// ValidationError describes which input field was rejected and why.
//
// It matches ErrValidation with errors.Is, so callers that only care about
// the category do not need errors.As.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}

	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsNoKeysFoundError checks if an error indicates that no keys were found in the store.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
