// Package catalog stores job records, the open/solved job index, subtask
// descriptors, job fingerprints and worker registrations.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/ngruychev/distributed-computing/internal/keyspace"
	"github.com/ngruychev/distributed-computing/internal/kvstore"
	"github.com/ngruychev/distributed-computing/types"
)

// Index lists job ids by state. A job id is in at most one of the two lists.
type Index struct {
	Open   []string `json:"open"`
	Solved []string `json:"solved"`
}

// Catalog operates on the jobs bucket.
type Catalog struct {
	kv           kvstore.KV
	maxAttempts  int
	reserveGrace time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithMaxAttempts bounds compare-and-swap loops on the index and job records.
func WithMaxAttempts(n int) Option {
	return func(c *Catalog) { c.maxAttempts = n }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithReserveGrace sets how long a fingerprint without a job record belongs
// to the CreateJob that reserved it. Set it to at least the time one
// CreateJob may take.
func WithReserveGrace(d time.Duration) Option {
	return func(c *Catalog) {
		if d > 0 {
			c.reserveGrace = d
		}
	}
}

// New creates a Catalog over the jobs bucket.
func New(kv kvstore.KV, opts ...Option) *Catalog {
	c := &Catalog{
		kv:           kv,
		maxAttempts:  kvstore.DefaultMaxAttempts,
		reserveGrace: 30 * time.Second,
		pollInterval: 10 * time.Millisecond,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fingerprint identifies a search independently of its name: two specs with
// the same algorithm, wordlist, hash and subtask length search the same space.
func Fingerprint(spec types.JobSpec) string {
	h := xxh3.HashString128(string(spec.Algorithm) + "\x00" + spec.Wordlist + "\x00" +
		spec.PasswordHash + "\x00" + strconv.Itoa(spec.SubtaskLen))

	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// reservation is the value of a fingerprint key.
type reservation struct {
	JobID      string    `json:"jobId"`
	ReservedAt time.Time `json:"reservedAt"`
}

// stale reports whether the reserving CreateJob can no longer be running.
func (c *Catalog) stale(r reservation) bool {
	return c.now().Sub(r.ReservedAt) >= c.reserveGrace
}

// ReserveFingerprint points fingerprint at jobID unless another job holds it.
//
// Returns the id of the holder and true when the search is a duplicate. The
// holder's job record may not be written yet; use AwaitJob to read it. A
// fingerprint without a job record is taken over once it is older than the
// reserve grace period.
func (c *Catalog) ReserveFingerprint(ctx context.Context, fingerprint, jobID string) (string, bool, error) {
	key := keyspace.Fingerprint(fingerprint)
	mine := reservation{JobID: jobID, ReservedAt: c.now()}

	for range c.maxAttempts {
		_, err := kvstore.CreateJSON(ctx, c.kv, key, mine)
		if err == nil {
			return jobID, false, nil
		}
		if !errors.Is(err, kvstore.ErrKeyExists) {
			return "", false, fmt.Errorf("reserve fingerprint: %w", err)
		}

		cur, rev, err := kvstore.GetJSON[reservation](ctx, c.kv, key)
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("read fingerprint: %w", err)
		}

		_, err = c.kv.Get(ctx, keyspace.Job(cur.JobID))
		switch {
		case err == nil:
			return cur.JobID, true, nil
		case !errors.Is(err, kvstore.ErrKeyNotFound):
			return "", false, fmt.Errorf("read job %s: %w", cur.JobID, err)
		case !c.stale(cur):
			// still being created
			return cur.JobID, true, nil
		}

		_, err = kvstore.UpdateJSON(ctx, c.kv, key, mine, rev)
		if err == nil {
			return jobID, false, nil
		}
		if !kvstore.IsConflict(err) {
			return "", false, fmt.Errorf("take over fingerprint: %w", err)
		}
	}

	return "", false, fmt.Errorf("reserve fingerprint: %w", types.ErrContention)
}

// AwaitJob waits for the job holding fingerprint to be written.
//
// Returns types.ErrNotFound as soon as the fingerprint no longer points at a
// live reservation for jobID: its creator failed or gave up.
func (c *Catalog) AwaitJob(ctx context.Context, fingerprint, jobID string) (types.Job, error) {
	key := keyspace.Fingerprint(fingerprint)

	for {
		job, err := c.GetJob(ctx, jobID)
		if !errors.Is(err, types.ErrNotFound) {
			return job, err
		}

		cur, _, err := kvstore.GetJSON[reservation](ctx, c.kv, key)
		switch {
		case errors.Is(err, kvstore.ErrKeyNotFound):
			return types.Job{}, fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
		case err != nil:
			return types.Job{}, fmt.Errorf("read fingerprint: %w", err)
		case cur.JobID != jobID || c.stale(cur):
			return types.Job{}, fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
		}

		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return types.Job{}, ctx.Err()
		case <-t.C:
		}
	}
}

// ReleaseFingerprint removes a fingerprint that still points at jobID.
func (c *Catalog) ReleaseFingerprint(ctx context.Context, fingerprint, jobID string) error {
	key := keyspace.Fingerprint(fingerprint)
	cur, rev, err := kvstore.GetJSON[reservation](ctx, c.kv, key)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.JobID != jobID {
		return nil
	}
	if err := c.kv.Delete(ctx, key, rev); err != nil && !kvstore.IsConflict(err) {
		return err
	}

	return nil
}

// PutSubTasks writes the descriptors of a job, index by index.
func (c *Catalog) PutSubTasks(ctx context.Context, jobID string, subtasks []types.SubTask) error {
	for i, st := range subtasks {
		if _, err := kvstore.PutJSON(ctx, c.kv, keyspace.SubTask(jobID, i), st); err != nil {
			return fmt.Errorf("put subtask %s/%d: %w", jobID, i, err)
		}
	}

	return nil
}

// GetSubTask returns a descriptor or types.ErrNotFound.
func (c *Catalog) GetSubTask(ctx context.Context, jobID string, idx int) (types.SubTask, error) {
	st, _, err := kvstore.GetJSON[types.SubTask](ctx, c.kv, keyspace.SubTask(jobID, idx))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return types.SubTask{}, fmt.Errorf("subtask %s/%d: %w", jobID, idx, types.ErrNotFound)
	}

	return st, err
}

// PurgeSubTasks deletes the descriptors of a job.
func (c *Catalog) PurgeSubTasks(ctx context.Context, jobID string, count int) error {
	for i := range count {
		if err := c.kv.Delete(ctx, keyspace.SubTask(jobID, i), 0); err != nil {
			return fmt.Errorf("purge subtask %s/%d: %w", jobID, i, err)
		}
	}

	return nil
}

// CreateJob writes a new job record.
func (c *Catalog) CreateJob(ctx context.Context, job types.Job) error {
	if _, err := kvstore.CreateJSON(ctx, c.kv, keyspace.Job(job.ID), job); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}

	return nil
}

// GetJob returns a job record or types.ErrNotFound.
func (c *Catalog) GetJob(ctx context.Context, jobID string) (types.Job, error) {
	job, _, err := kvstore.GetJSON[types.Job](ctx, c.kv, keyspace.Job(jobID))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return types.Job{}, fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
	}

	return job, err
}

// SetAnswer records the answer of a job exactly once.
//
// Returns the job as stored and whether this call set the answer. A job that
// already has an answer is returned unchanged with false.
func (c *Catalog) SetAnswer(ctx context.Context, jobID, answer string) (types.Job, bool, error) {
	set := false
	job, _, err := kvstore.Mutate(ctx, c.kv, keyspace.Job(jobID), c.maxAttempts, func(j *types.Job) (bool, error) {
		set = false
		if j.Answer != nil {
			return false, nil
		}
		now := c.now()
		j.Answer = &answer
		j.SolvedAt = &now
		set = true

		return true, nil
	})
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return types.Job{}, false, fmt.Errorf("job %s: %w", jobID, types.ErrNotFound)
	}
	if err != nil {
		return types.Job{}, false, fmt.Errorf("set answer %s: %w", jobID, err)
	}

	return job, set, nil
}

// Index returns the job index. A missing index is empty.
func (c *Catalog) Index(ctx context.Context) (Index, error) {
	idx, _, err := kvstore.GetJSON[Index](ctx, c.kv, keyspace.JobIndex)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return Index{}, nil
	}

	return idx, err
}

// AddOpen lists a job as open.
func (c *Catalog) AddOpen(ctx context.Context, jobID string) error {
	_, _, err := kvstore.Upsert(ctx, c.kv, keyspace.JobIndex, c.maxAttempts, func(idx *Index) (bool, error) {
		if slices.Contains(idx.Open, jobID) || slices.Contains(idx.Solved, jobID) {
			return false, nil
		}
		idx.Open = append(idx.Open, jobID)

		return true, nil
	})
	if err != nil {
		return fmt.Errorf("list job %s as open: %w", jobID, err)
	}

	return nil
}

// MarkSolved moves a job from the open list to the solved list.
func (c *Catalog) MarkSolved(ctx context.Context, jobID string) error {
	_, _, err := kvstore.Upsert(ctx, c.kv, keyspace.JobIndex, c.maxAttempts, func(idx *Index) (bool, error) {
		i := slices.Index(idx.Open, jobID)
		solved := slices.Contains(idx.Solved, jobID)
		if i < 0 && solved {
			return false, nil
		}
		if i >= 0 {
			idx.Open = slices.Delete(idx.Open, i, i+1)
		}
		if !solved {
			idx.Solved = append(idx.Solved, jobID)
		}

		return true, nil
	})
	if err != nil {
		return fmt.Errorf("mark job %s solved: %w", jobID, err)
	}

	return nil
}

// RegisterWorker issues a new worker id and secret.
func (c *Catalog) RegisterWorker(ctx context.Context) (types.WorkerRegistration, error) {
	reg := types.WorkerRegistration{
		WorkerID:     uuid.NewString(),
		Secret:       uuid.NewString(),
		RegisteredAt: c.now(),
	}
	if _, err := kvstore.CreateJSON(ctx, c.kv, keyspace.Worker(reg.WorkerID), reg); err != nil {
		return types.WorkerRegistration{}, fmt.Errorf("register worker: %w", err)
	}

	return reg, nil
}

// GetWorker returns a registration or types.ErrNotFound.
func (c *Catalog) GetWorker(ctx context.Context, workerID string) (types.WorkerRegistration, error) {
	reg, _, err := kvstore.GetJSON[types.WorkerRegistration](ctx, c.kv, keyspace.Worker(workerID))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return types.WorkerRegistration{}, fmt.Errorf("worker %s: %w", workerID, types.ErrNotFound)
	}

	return reg, err
}
