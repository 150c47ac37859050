package distcomp

import "github.com/ngruychev/distributed-computing/types"

// Sentinel errors returned by the Coordinator, re-exported from the types package.
var (
	ErrValidation          = types.ErrValidation
	ErrNotFound            = types.ErrNotFound
	ErrNoSubtasksAvailable = types.ErrNoSubtasksAvailable
	ErrAnswerMismatch      = types.ErrAnswerMismatch
	ErrContention          = types.ErrContention
	ErrLeaseRejected       = types.ErrLeaseRejected
	ErrStoreUnavailable    = types.ErrStoreUnavailable
	ErrInvalidConfig       = types.ErrInvalidConfig
	ErrAlreadyStarted      = types.ErrAlreadyStarted
	ErrNotStarted          = types.ErrNotStarted

	// ErrStoreRequired is returned when NewCoordinator gets a nil bucket.
	ErrStoreRequired = types.ErrStoreRequired
)
