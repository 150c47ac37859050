package types

// WorkerState represents the position of a worker in its lease loop.
//
// States follow a defined progression during normal operation:
//
//	StateIdle → StateDiscovering → StateClaiming → StateComputing → StateSubmitting → StateIdle
//
// A subtask without an answer is released instead of submitted:
//
//	StateComputing → StateReleasing → StateIdle
//
// Any store or network error moves the worker to StateBackoff before the next
// iteration. StateStopped is terminal.
type WorkerState int

const (
	// StateIdle is the state between two iterations of the loop.
	StateIdle WorkerState = iota

	// StateDiscovering indicates the worker is looking for an open job.
	StateDiscovering

	// StateClaiming indicates a claim request is in flight.
	StateClaiming

	// StateComputing indicates the worker holds a lease and is searching its range.
	StateComputing

	// StateSubmitting indicates an answer is being submitted.
	StateSubmitting

	// StateReleasing indicates the range was exhausted and the claim is being released.
	StateReleasing

	// StateBackoff indicates the worker is sleeping after an empty claim or an error.
	StateBackoff

	// StateStopped indicates the loop has exited.
	StateStopped
)

// String returns the string representation of the state.
func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDiscovering:
		return "Discovering"
	case StateClaiming:
		return "Claiming"
	case StateComputing:
		return "Computing"
	case StateSubmitting:
		return "Submitting"
	case StateReleasing:
		return "Releasing"
	case StateBackoff:
		return "Backoff"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
