// Package testing provides test utilities for the coordinator and its clients.
//
// It follows Go's convention of shipping test helpers in a dedicated package
// (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV: Convenience wrapper for KV bucket creation
//   - NewTestLogger: types.Logger that writes through testing.TB
//
// Example usage:
//
//	import (
//	    "testing"
//	    dctest "github.com/ngruychev/distributed-computing/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := dctest.StartEmbeddedNATS(t)
//	    kv := dctest.CreateJetStreamKV(t, nc, "crack-jobs", 0)
//	}
package testing
