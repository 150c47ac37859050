package hooks

import (
	"context"

	"github.com/ngruychev/distributed-computing/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the worker loop.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, types.SubTaskClaim, types.SubTask) error    = (*NopHooks)(nil).OnClaimed
	_ func(context.Context, types.SubTaskClaim) error                   = (*NopHooks)(nil).OnLeaseLost
	_ func(context.Context, *types.Job) error                           = (*NopHooks)(nil).OnSolved
	_ func(context.Context, types.WorkerState, types.WorkerState) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, error) error                                = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnClaimed:      h.OnClaimed,
		OnLeaseLost:    h.OnLeaseLost,
		OnSolved:       h.OnSolved,
		OnStateChanged: h.OnStateChanged,
		OnError:        h.OnError,
	}
}

// Fill returns a copy of h where every nil callback is replaced by a no-op.
func Fill(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnClaimed != nil {
		out.OnClaimed = h.OnClaimed
	}
	if h.OnLeaseLost != nil {
		out.OnLeaseLost = h.OnLeaseLost
	}
	if h.OnSolved != nil {
		out.OnSolved = h.OnSolved
	}
	if h.OnStateChanged != nil {
		out.OnStateChanged = h.OnStateChanged
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}

// OnClaimed is a no-op implementation.
func (h *NopHooks) OnClaimed(ctx context.Context, claim types.SubTaskClaim, subtask types.SubTask) error {
	return nil
}

// OnLeaseLost is a no-op implementation.
func (h *NopHooks) OnLeaseLost(ctx context.Context, claim types.SubTaskClaim) error {
	return nil
}

// OnSolved is a no-op implementation.
func (h *NopHooks) OnSolved(ctx context.Context, job *types.Job) error {
	return nil
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(ctx context.Context, from, to types.WorkerState) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}
