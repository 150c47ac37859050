package types

import "time"

// HeartbeatResult is the outcome of a lease renewal.
//
// It has exactly two variants, Renewed and Rejected. Use a type switch:
//
//	switch r := result.(type) {
//	case types.Renewed:
//	    nonce = r.Nonce
//	case types.Rejected:
//	    cancel()
//	}
type HeartbeatResult interface {
	// Accepted reports whether the lease was renewed.
	Accepted() bool

	heartbeatResult()
}

// Renewed carries the replacement nonce and the new expiry.
type Renewed struct {
	Nonce     string
	ExpiresAt time.Time
}

// Rejected means the presented nonce was stale or the lease was gone.
// The subtask has already been returned to the queue.
type Rejected struct{}

func (Renewed) Accepted() bool  { return true }
func (Rejected) Accepted() bool { return false }

func (Renewed) heartbeatResult()  {}
func (Rejected) heartbeatResult() {}
