// Package stats aggregates coordinator state into counts.
package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngruychev/distributed-computing/internal/catalog"
	"github.com/ngruychev/distributed-computing/internal/queue"
	"github.com/ngruychev/distributed-computing/types"
)

// Aggregator computes Stats by reading the job index and the queue record of
// every open job. It only reads and costs one store read per open job.
type Aggregator struct {
	catalog *catalog.Catalog
	queue   *queue.Queue
}

// New creates an Aggregator.
func New(c *catalog.Catalog, q *queue.Queue) *Aggregator {
	return &Aggregator{catalog: c, queue: q}
}

// Stats returns the current totals.
//
// Queued, claimed, searched and total subtask counts cover open jobs only;
// solved jobs have no subtasks left. A job solved while the scan runs is
// skipped.
func (a *Aggregator) Stats(ctx context.Context) (types.Stats, error) {
	idx, err := a.catalog.Index(ctx)
	if err != nil {
		return types.Stats{}, fmt.Errorf("read job index: %w", err)
	}

	s := types.Stats{
		TotalJobs:  len(idx.Open) + len(idx.Solved),
		JobsSolved: len(idx.Solved),
	}
	for _, jobID := range idx.Open {
		rec, err := a.queue.Get(ctx, jobID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return types.Stats{}, fmt.Errorf("read queue %s: %w", jobID, err)
		}

		p := rec.Progress()
		s.SubtasksQueued += p.Queued
		s.SubtasksClaimed += p.Claimed
		s.SubtasksSearched += p.Searched
		s.TotalSubtasks += rec.Total
	}

	return s, nil
}

// Progress returns the queue state of one job, or types.ErrNotFound when the
// job is solved or unknown.
func (a *Aggregator) Progress(ctx context.Context, jobID string) (types.JobProgress, error) {
	rec, err := a.queue.Get(ctx, jobID)
	if err != nil {
		return types.JobProgress{}, err
	}

	return rec.Progress(), nil
}
