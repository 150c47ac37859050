package kvstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type memEntry struct {
	value     []byte
	revision  uint64
	expiresAt time.Time
}

func (e memEntry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// Memory is an in-process KV.
//
// Every write goes through xsync.Map.Compute, which runs the callback under
// the key's bucket lock, so check-and-write is atomic per key. Revisions are
// drawn from one counter, as in a JetStream bucket.
type Memory struct {
	entries  *xsync.Map[string, memEntry]
	revision atomic.Uint64
	ttl      time.Duration
	now      func() time.Time
}

// Compile-time assertion that Memory implements KV.
var _ KV = (*Memory)(nil)

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithTTL expires entries ttl after their last write.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: xsync.NewMap[string, memEntry](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Memory) stamp(value []byte) memEntry {
	e := memEntry{
		value:    append([]byte(nil), value...),
		revision: m.revision.Add(1),
	}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}

	return e
}

func (m *Memory) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	e, ok := m.entries.Load(key)
	if !ok || !e.live(m.now()) {
		return Entry{}, ErrKeyNotFound
	}

	return Entry{Key: key, Value: append([]byte(nil), e.value...), Revision: e.revision}, nil
}

func (m *Memory) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var rev uint64
	var err error
	now := m.now()
	m.entries.Compute(key, func(old memEntry, loaded bool) (memEntry, xsync.ComputeOp) {
		if loaded && old.live(now) {
			err = ErrKeyExists
			return old, xsync.CancelOp
		}
		e := m.stamp(value)
		rev = e.revision

		return e, xsync.UpdateOp
	})

	return rev, err
}

func (m *Memory) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var rev uint64
	var err error
	now := m.now()
	m.entries.Compute(key, func(old memEntry, loaded bool) (memEntry, xsync.ComputeOp) {
		if !loaded || !old.live(now) || old.revision != revision {
			err = ErrRevisionMismatch
			return old, xsync.CancelOp
		}
		e := m.stamp(value)
		rev = e.revision

		return e, xsync.UpdateOp
	})

	return rev, err
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var rev uint64
	m.entries.Compute(key, func(memEntry, bool) (memEntry, xsync.ComputeOp) {
		e := m.stamp(value)
		rev = e.revision

		return e, xsync.UpdateOp
	})

	return rev, nil
}

func (m *Memory) Delete(ctx context.Context, key string, revision uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	now := m.now()
	m.entries.Compute(key, func(old memEntry, loaded bool) (memEntry, xsync.ComputeOp) {
		if revision > 0 && (!loaded || !old.live(now) || old.revision != revision) {
			err = ErrRevisionMismatch
			return old, xsync.CancelOp
		}
		if !loaded {
			return old, xsync.CancelOp
		}

		return old, xsync.DeleteOp
	})

	return err
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now()
	keys := []string{}
	m.entries.Range(func(key string, e memEntry) bool {
		if e.live(now) {
			keys = append(keys, key)
		}

		return true
	})

	return keys, nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	n := 0
	now := m.now()
	m.entries.Range(func(_ string, e memEntry) bool {
		if e.live(now) {
			n++
		}

		return true
	})

	return n
}
