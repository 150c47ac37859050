package types

import (
	"fmt"
	"time"
)

// Algorithm names a supported password hash function.
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
	AlgorithmMD5    Algorithm = "MD5"
)

// LineRange is an inclusive, zero-based range of wordlist lines.
//
// It encodes to JSON as a two-element array [start, end].
type LineRange [2]int

// Start returns the first line of the range.
func (r LineRange) Start() int { return r[0] }

// End returns the last line of the range (inclusive).
func (r LineRange) End() int { return r[1] }

// Len returns the number of lines covered by the range.
func (r LineRange) Len() int { return r[1] - r[0] + 1 }

// Contains reports whether line falls within the range.
func (r LineRange) Contains(line int) bool { return line >= r[0] && line <= r[1] }

// Valid reports whether 0 <= start <= end.
func (r LineRange) Valid() bool { return r[0] >= 0 && r[0] <= r[1] }

func (r LineRange) String() string { return fmt.Sprintf("[%d,%d]", r[0], r[1]) }

// JobSpec is the input to CreateJob.
type JobSpec struct {
	Name         string    `json:"name" yaml:"name"`
	Algorithm    Algorithm `json:"algo" yaml:"algo"`
	Wordlist     string    `json:"wordlist" yaml:"wordlist"`
	PasswordHash string    `json:"passwordHash" yaml:"passwordHash"`
	SubtaskLen   int       `json:"subtaskRangeLen" yaml:"subtaskRangeLen"`
}

// Job is one hash-cracking request split into SubtaskCount subtasks.
//
// Answer is nil until the job is solved and is written exactly once.
type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Algorithm    Algorithm  `json:"algo"`
	Wordlist     string     `json:"wordlist"`
	PasswordHash string     `json:"passwordHash"`
	SubtaskLen   int        `json:"subtaskRangeLen"`
	SubtaskCount int        `json:"subtaskCount"`
	Answer       *string    `json:"answer,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	SolvedAt     *time.Time `json:"solvedAt,omitempty"`
}

// Solved reports whether the job has an answer.
func (j *Job) Solved() bool { return j.Answer != nil }

// SubTask is the descriptor of one bounded piece of a job.
type SubTask struct {
	Password  string    `json:"password"`
	Algorithm Algorithm `json:"algo"`
	Wordlist  string    `json:"wordlist"`
	LineRange LineRange `json:"wordlistLineRange"`
}

// Claim records which worker checked out a subtask and when.
type Claim struct {
	WorkerID  string    `json:"workerId"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// Lease is the current proof of ownership of a claimed subtask.
//
// The nonce is single-use: every accepted renewal replaces it.
type Lease struct {
	Nonce     string    `json:"nonce"`
	WorkerID  string    `json:"workerId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the lease is past its expiry at now.
func (l *Lease) Expired(now time.Time) bool { return !now.Before(l.ExpiresAt) }

// LeaseGrant is the part of a lease handed to the worker.
type LeaseGrant struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SubTaskClaim is the result of a successful claim.
type SubTaskClaim struct {
	JobID     string     `json:"jobId"`
	SubtaskID int        `json:"subtaskId"`
	Lease     LeaseGrant `json:"lease"`
}

// WorkerRegistration is issued on request. The secret is never verified.
type WorkerRegistration struct {
	WorkerID     string    `json:"workerId"`
	Secret       string    `json:"secret"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Stats is a point-in-time aggregate over coordinator state.
type Stats struct {
	TotalJobs        int `json:"totalJobs"`
	SubtasksQueued   int `json:"subtasksQueued"`
	SubtasksClaimed  int `json:"subtasksClaimed"`
	SubtasksSearched int `json:"subtasksSearched"`
	TotalSubtasks    int `json:"totalSubtasks"`
	JobsSolved       int `json:"jobsSolved"`
}

// JobProgress is the queue state of a single open job.
type JobProgress struct {
	Queued   int `json:"queued"`
	Claimed  int `json:"claimed"`
	Searched int `json:"searched"`
	// Exhausted is true when every subtask was searched without an answer.
	Exhausted bool `json:"exhausted"`
}

// JobView is a job record together with its progress.
type JobView struct {
	Job
	Progress *JobProgress `json:"progress,omitempty"`
}

// JobListing groups job ids by state.
type JobListing struct {
	Open   []JobView `json:"open"`
	Solved []JobView `json:"solved"`
}
