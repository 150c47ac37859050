package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ngruychev/distributed-computing/types"
)

// DefaultMaxAttempts bounds compare-and-swap retry loops.
const DefaultMaxAttempts = 32

// GetJSON reads key and decodes it into T.
func GetJSON[T any](ctx context.Context, kv KV, key string) (T, uint64, error) {
	var v T

	e, err := kv.Get(ctx, key)
	if err != nil {
		return v, 0, err
	}
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, 0, fmt.Errorf("decode %q: %w", key, err)
	}

	return v, e.Revision, nil
}

// CreateJSON encodes v and creates key.
func CreateJSON(ctx context.Context, kv KV, key string, v any) (uint64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %q: %w", key, err)
	}

	return kv.Create(ctx, key, b)
}

// PutJSON encodes v and writes key unconditionally.
func PutJSON(ctx context.Context, kv KV, key string, v any) (uint64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %q: %w", key, err)
	}

	return kv.Put(ctx, key, b)
}

// UpdateJSON encodes v and writes key if its revision is still revision.
func UpdateJSON(ctx context.Context, kv KV, key string, v any, revision uint64) (uint64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %q: %w", key, err)
	}

	return kv.Update(ctx, key, b, revision)
}

// MutateFunc edits a record in place. Returning false leaves the record
// unwritten; returning an error aborts the loop with that error.
type MutateFunc[T any] func(cur *T) (bool, error)

// Mutate applies fn to the record at key with a compare-and-swap retry loop.
//
// fn may run several times and must not have side effects outside cur.
// A missing key returns ErrKeyNotFound without calling fn. When maxAttempts
// conflicting writes happen in a row the loop gives up with types.ErrContention.
//
// Returns the record as last seen (written or not) and its revision.
func Mutate[T any](ctx context.Context, kv KV, key string, maxAttempts int, fn MutateFunc[T]) (T, uint64, error) {
	return mutate(ctx, kv, key, maxAttempts, false, fn)
}

// Upsert is Mutate for records that may not exist yet: a missing key is
// presented to fn as the zero value and written with Create.
func Upsert[T any](ctx context.Context, kv KV, key string, maxAttempts int, fn MutateFunc[T]) (T, uint64, error) {
	return mutate(ctx, kv, key, maxAttempts, true, fn)
}

func mutate[T any](ctx context.Context, kv KV, key string, maxAttempts int, create bool, fn MutateFunc[T]) (T, uint64, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var zero T
	for attempt := range maxAttempts {
		cur, rev, err := GetJSON[T](ctx, kv, key)
		missing := errors.Is(err, ErrKeyNotFound)
		switch {
		case missing && create:
			cur, rev = zero, 0
		case err != nil:
			return zero, 0, err
		}

		changed, err := fn(&cur)
		if err != nil {
			return cur, rev, err
		}
		if !changed {
			return cur, rev, nil
		}

		var newRev uint64
		if missing {
			newRev, err = CreateJSON(ctx, kv, key, cur)
		} else {
			newRev, err = UpdateJSON(ctx, kv, key, cur, rev)
		}
		if err == nil {
			return cur, newRev, nil
		}
		if !IsConflict(err) {
			return zero, 0, err
		}

		if err := backoff(ctx, attempt); err != nil {
			return zero, 0, err
		}
	}

	return zero, 0, fmt.Errorf("%q after %d attempts: %w", key, maxAttempts, types.ErrContention)
}

// backoff sleeps a short jittered interval that grows with attempt.
func backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return ctx.Err()
	}
	limit := min(attempt, 8)
	d := time.Duration(rand.IntN(limit*500)+1) * time.Microsecond //nolint:gosec // jitter only

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
