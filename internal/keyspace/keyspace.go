// Package keyspace defines the key layout of the jobs and leases buckets.
//
// Jobs bucket:
//
//	index.jobs                 open and solved job ids
//	job.<jobId>                job record
//	queue.<jobId>              pending indices, claims and searched indices
//	subtask.<jobId>.<idx>      subtask descriptor
//	fingerprint.<hex>          id of the job with the same search parameters
//	worker.<workerId>          worker registration
//
// Leases bucket:
//
//	<jobId>.<idx>              lease of a claimed subtask
//
// NATS KV keys may contain letters, digits and "-_=./"; job and worker ids
// are UUIDs, so every key produced here is valid.
package keyspace

import (
	"fmt"
	"strconv"
	"strings"
)

// JobIndex is the key of the open/solved job index.
const JobIndex = "index.jobs"

const (
	jobPrefix         = "job."
	queuePrefix       = "queue."
	subtaskPrefix     = "subtask."
	fingerprintPrefix = "fingerprint."
	workerPrefix      = "worker."
)

// Job returns the key of a job record.
func Job(jobID string) string { return jobPrefix + jobID }

// Queue returns the key of a job's queue record.
func Queue(jobID string) string { return queuePrefix + jobID }

// SubTask returns the key of a subtask descriptor.
func SubTask(jobID string, idx int) string {
	return subtaskPrefix + jobID + "." + strconv.Itoa(idx)
}

// Fingerprint returns the key of a job fingerprint.
func Fingerprint(hex string) string { return fingerprintPrefix + hex }

// Worker returns the key of a worker registration.
func Worker(workerID string) string { return workerPrefix + workerID }

// Lease returns the key of a lease in the leases bucket.
func Lease(jobID string, idx int) string {
	return jobID + "." + strconv.Itoa(idx)
}

// ParseLease splits a lease key into job id and subtask index.
func ParseLease(key string) (jobID string, idx int, err error) {
	dot := strings.LastIndexByte(key, '.')
	if dot <= 0 || dot == len(key)-1 {
		return "", 0, fmt.Errorf("malformed lease key %q", key)
	}

	idx, err = strconv.Atoi(key[dot+1:])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("malformed lease key %q", key)
	}

	return key[:dot], idx, nil
}
