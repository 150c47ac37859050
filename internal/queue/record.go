package queue

import (
	"slices"

	"github.com/ngruychev/distributed-computing/types"
)

// Record is the consolidated per-job queue state.
//
// Every subtask index of an open job is in exactly one of Pending, Claims or
// Searched. Pending is FIFO: claims pop from the front, requeues append to
// the tail.
type Record struct {
	Total    int                 `json:"total"`
	Pending  []int               `json:"pending"`
	Claims   map[int]types.Claim `json:"claims"`
	Searched []int               `json:"searched,omitempty"`
}

// NewRecord returns a record with every index in [0, total) pending.
func NewRecord(total int) Record {
	pending := make([]int, total)
	for i := range pending {
		pending[i] = i
	}

	return Record{Total: total, Pending: pending, Claims: map[int]types.Claim{}}
}

// IsPending reports whether idx is in the queue.
func (r *Record) IsPending(idx int) bool { return slices.Contains(r.Pending, idx) }

// IsSearched reports whether idx was searched without an answer.
func (r *Record) IsSearched(idx int) bool { return slices.Contains(r.Searched, idx) }

// Claim returns the claim on idx, if any.
func (r *Record) Claim(idx int) (types.Claim, bool) {
	c, ok := r.Claims[idx]
	return c, ok
}

func (r *Record) pop() (int, bool) {
	if len(r.Pending) == 0 {
		return 0, false
	}
	idx := r.Pending[0]
	r.Pending = r.Pending[1:]

	return idx, true
}

// InRange reports whether idx is a subtask of the job.
func (r *Record) InRange(idx int) bool {
	return idx >= 0 && idx < r.Total
}

// requeue appends idx to the tail unless it is out of range, already pending
// or searched.
func (r *Record) requeue(idx int) bool {
	if !r.InRange(idx) || r.IsPending(idx) || r.IsSearched(idx) {
		return false
	}
	r.Pending = append(r.Pending, idx)

	return true
}

func (r *Record) ensureClaims() {
	if r.Claims == nil {
		r.Claims = map[int]types.Claim{}
	}
}

// Progress summarizes the record.
func (r *Record) Progress() types.JobProgress {
	return types.JobProgress{
		Queued:    len(r.Pending),
		Claimed:   len(r.Claims),
		Searched:  len(r.Searched),
		Exhausted: r.Total > 0 && len(r.Searched) == r.Total,
	}
}
