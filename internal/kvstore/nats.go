package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngruychev/distributed-computing/internal/metrics"
	"github.com/ngruychev/distributed-computing/internal/natsutil"
	"github.com/ngruychev/distributed-computing/types"
)

// NATS adapts a JetStream KeyValue bucket to KV.
type NATS struct {
	kv      jetstream.KeyValue
	metrics types.StoreMetrics
}

// Compile-time assertion that NATS implements KV.
var _ KV = (*NATS)(nil)

// NATSOption configures a NATS adapter.
type NATSOption func(*NATS)

// WithStoreMetrics records the latency of every store call.
func WithStoreMetrics(m types.StoreMetrics) NATSOption {
	return func(n *NATS) {
		if m != nil {
			n.metrics = m
		}
	}
}

// NewNATS wraps an open JetStream KeyValue bucket.
func NewNATS(kv jetstream.KeyValue, opts ...NATSOption) *NATS {
	n := &NATS{kv: kv, metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Bucket returns the name of the underlying bucket.
func (n *NATS) Bucket() string {
	return n.kv.Bucket()
}

func (n *NATS) Get(ctx context.Context, key string) (Entry, error) {
	defer n.observe("get", time.Now())

	e, err := n.kv.Get(ctx, key)
	if err != nil {
		return Entry{}, n.mapError("get", key, err)
	}

	return Entry{Key: e.Key(), Value: e.Value(), Revision: e.Revision()}, nil
}

func (n *NATS) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	defer n.observe("create", time.Now())

	rev, err := n.kv.Create(ctx, key, value)
	if err != nil {
		return 0, n.mapError("create", key, err)
	}

	return rev, nil
}

func (n *NATS) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	defer n.observe("update", time.Now())

	rev, err := n.kv.Update(ctx, key, value, revision)
	if err != nil {
		return 0, n.mapError("update", key, err)
	}

	return rev, nil
}

func (n *NATS) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	defer n.observe("put", time.Now())

	rev, err := n.kv.Put(ctx, key, value)
	if err != nil {
		return 0, n.mapError("put", key, err)
	}

	return rev, nil
}

func (n *NATS) Delete(ctx context.Context, key string, revision uint64) error {
	defer n.observe("delete", time.Now())

	var opts []jetstream.KVDeleteOpt
	if revision > 0 {
		opts = append(opts, jetstream.LastRevision(revision))
	}
	if err := n.kv.Delete(ctx, key, opts...); err != nil {
		return n.mapError("delete", key, err)
	}

	return nil
}

func (n *NATS) Keys(ctx context.Context) ([]string, error) {
	defer n.observe("keys", time.Now())

	keys, err := n.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) || types.IsNoKeysFoundError(err) {
			return []string{}, nil
		}

		return nil, n.mapError("keys", "", err)
	}

	return keys, nil
}

func (n *NATS) observe(op string, start time.Time) {
	n.metrics.RecordKVOperationDuration(op, time.Since(start).Seconds())
}

// mapError translates JetStream errors to the KV contract.
//
// A wrong-last-sequence API error is what JetStream returns for a stale
// revision on Update and Delete; jetstream.ErrKeyExists matches that code too,
// so the operation decides which of the two it means.
func (n *NATS) mapError(op, key string, err error) error {
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
		return fmt.Errorf("%s %q: %w", op, key, ErrKeyNotFound)
	case isWrongLastSequence(err):
		if op == "create" {
			return fmt.Errorf("%s %q: %w", op, key, ErrKeyExists)
		}

		return fmt.Errorf("%s %q: %w", op, key, ErrRevisionMismatch)
	case natsutil.IsConnectivityError(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s %q: %w: %w", op, key, types.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
}

func isWrongLastSequence(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}
