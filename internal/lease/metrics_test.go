package lease

import (
	"sync"

	"github.com/ngruychev/distributed-computing/internal/metrics"
)

// countingMetrics records lease metrics for assertions.
type countingMetrics struct {
	metrics.NopMetrics

	mu       sync.Mutex
	sweepN   int
	failover map[string]int
}

func (c *countingMetrics) RecordFailover(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failover == nil {
		c.failover = map[string]int{}
	}
	c.failover[reason]++
}

func (c *countingMetrics) RecordSweepDuration(float64, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepN++
}

func (c *countingMetrics) sweeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweepN
}

func (c *countingMetrics) failovers(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.failover[reason]
}
