// Package kvstore is the shared store used for all coordinator state.
//
// KV is a small key-value interface with per-key compare-and-swap by
// revision. Two implementations are provided: NATS, backed by a JetStream
// KeyValue bucket, and Memory, an in-process store for tests and
// single-process use. Both implementations honour the same contract:
//
//   - Create fails with ErrKeyExists when the key is present
//   - Update fails with ErrRevisionMismatch when the revision is stale or
//     the key no longer exists
//   - Delete with a non-zero revision fails with ErrRevisionMismatch when stale
//   - Get on a missing or deleted key fails with ErrKeyNotFound
//   - Keys on an empty store returns an empty slice, not an error
//
// Connectivity failures are reported as types.ErrStoreUnavailable.
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Get for an absent key.
	ErrKeyNotFound = errors.New("kv: key not found")

	// ErrKeyExists is returned by Create when the key is already present.
	ErrKeyExists = errors.New("kv: key exists")

	// ErrRevisionMismatch is returned by Update and Delete when the expected revision is stale.
	ErrRevisionMismatch = errors.New("kv: revision mismatch")
)

// Entry is a value read from the store together with its revision.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KV is the atomic store interface the coordinator is built on.
type KV interface {
	// Get returns the current entry for key.
	Get(ctx context.Context, key string) (Entry, error)

	// Create writes key only if it does not exist and returns the new revision.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update writes key only if its current revision equals revision.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)

	// Put writes key unconditionally.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Delete removes key. A non-zero revision makes the delete conditional.
	// Deleting an absent key without a revision is not an error.
	Delete(ctx context.Context, key string, revision uint64) error

	// Keys returns all live keys in unspecified order.
	Keys(ctx context.Context) ([]string, error)
}

// IsConflict reports whether err is a lost compare-and-swap race:
// ErrKeyExists from Create or ErrRevisionMismatch from Update/Delete.
func IsConflict(err error) bool {
	return errors.Is(err, ErrKeyExists) || errors.Is(err, ErrRevisionMismatch)
}
