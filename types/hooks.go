package types

import "context"

// Hooks defines callbacks for worker lease loop events.
//
// All hooks are optional and are called synchronously from the worker loop,
// so they should complete quickly. The context passed to hooks is the loop
// context and is cancelled when the worker stops. Hook errors are logged but
// do not change the outcome of the subtask.
//
// Example:
//
//	hooks := &types.Hooks{
//	    OnSolved: func(ctx context.Context, job *types.Job) error {
//	        log.Printf("job %s solved: %s", job.ID, *job.Answer)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnClaimed is called after a subtask was claimed and its descriptor validated.
	OnClaimed func(ctx context.Context, claim SubTaskClaim, subtask SubTask) error

	// OnLeaseLost is called when a renewal was rejected and computation was cancelled.
	OnLeaseLost func(ctx context.Context, claim SubTaskClaim) error

	// OnSolved is called after an answer was accepted by the coordinator.
	OnSolved func(ctx context.Context, job *Job) error

	// OnStateChanged is called when the worker moves between loop states.
	OnStateChanged func(ctx context.Context, from, to WorkerState) error

	// OnError is called when an iteration fails and the worker backs off.
	OnError func(ctx context.Context, err error) error
}
