// Package httpapi exposes the coordinator over HTTP and provides a client
// for workers.
//
// Routes:
//
//	POST /api/task                          create a job
//	GET  /api/task                          list open and solved jobs
//	GET  /api/task/{id}                     one job
//	GET  /api/task/{id}/subtask/{sid}       one subtask descriptor
//	POST /api/task/claim                    claim a subtask (204 when none)
//	POST /api/task/heartbeat                renew a lease
//	POST /api/task/answer                   submit or release
//	GET  /api/stats                         coordinator totals
//	POST /api/worker/register               issue a worker id and secret
//	GET  /test                              liveness
//
// Errors are JSON bodies {"error": "...", "field": "..."} with status 400
// for validation, 404 for unknown ids and 503 when the store is unreachable.
package httpapi

import (
	"context"
	"time"

	"github.com/ngruychev/distributed-computing/types"
)

// Service is the set of coordinator operations served over HTTP.
type Service interface {
	CreateJob(ctx context.Context, spec types.JobSpec) (types.Job, error)
	ClaimSubtask(ctx context.Context, jobID, workerID string) (types.SubTaskClaim, error)
	Heartbeat(ctx context.Context, jobID string, subtaskID int, workerID, nonce string) (types.HeartbeatResult, error)
	SubmitAnswer(ctx context.Context, jobID string, subtaskID int, answer *string) (types.Job, error)
	ListJobs(ctx context.Context) (types.JobListing, error)
	GetJob(ctx context.Context, jobID string) (types.JobView, error)
	GetSubtask(ctx context.Context, jobID string, subtaskID int) (types.SubTask, error)
	GetStats(ctx context.Context) (types.Stats, error)
	RegisterWorker(ctx context.Context) (types.WorkerRegistration, error)
}

// ClaimRequest is the body of POST /api/task/claim.
type ClaimRequest struct {
	JobID    string `json:"jobId"`
	WorkerID string `json:"workerId"`
}

// HeartbeatRequest is the body of POST /api/task/heartbeat.
type HeartbeatRequest struct {
	JobID     string `json:"jobId"`
	SubtaskID int    `json:"subtaskId"`
	WorkerID  string `json:"workerId"`
	Nonce     string `json:"nonce"`
}

// HeartbeatResponse carries the next nonce when the lease was renewed.
type HeartbeatResponse struct {
	Accepted  bool       `json:"accepted"`
	Nonce     string     `json:"nonce,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AnswerRequest is the body of POST /api/task/answer. A null or empty
// answer releases the subtask.
type AnswerRequest struct {
	JobID     string  `json:"jobId"`
	SubtaskID int     `json:"subtaskId"`
	Answer    *string `json:"answer"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func toResponse(res types.HeartbeatResult) HeartbeatResponse {
	if r, ok := res.(types.Renewed); ok {
		exp := r.ExpiresAt
		return HeartbeatResponse{Accepted: true, Nonce: r.Nonce, ExpiresAt: &exp}
	}

	return HeartbeatResponse{}
}

func fromResponse(resp HeartbeatResponse) types.HeartbeatResult {
	if !resp.Accepted {
		return types.Rejected{}
	}
	r := types.Renewed{Nonce: resp.Nonce}
	if resp.ExpiresAt != nil {
		r.ExpiresAt = *resp.ExpiresAt
	}

	return r
}
