package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ngruychev/distributed-computing/types"
)

// DefaultTimeout bounds a single request when no timeout is given.
const DefaultTimeout = 5 * time.Second

// Client calls a coordinator over HTTP. It implements Service, so workers
// can use it and an in-process Coordinator interchangeably.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the coordinator at baseURL
// (e.g. "http://localhost:8080"). Every request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateJob creates a job.
func (c *Client) CreateJob(ctx context.Context, spec types.JobSpec) (types.Job, error) {
	var job types.Job
	_, err := c.postJSON(ctx, "/api/task", spec, &job)

	return job, err
}

// ClaimSubtask claims the next pending subtask of a job.
//
// Returns types.ErrNoSubtasksAvailable when the coordinator answers 204.
func (c *Client) ClaimSubtask(ctx context.Context, jobID, workerID string) (types.SubTaskClaim, error) {
	var claim types.SubTaskClaim
	status, err := c.postJSON(ctx, "/api/task/claim", ClaimRequest{JobID: jobID, WorkerID: workerID}, &claim)
	if err != nil {
		return types.SubTaskClaim{}, err
	}
	if status == http.StatusNoContent {
		return types.SubTaskClaim{}, fmt.Errorf("job %s: %w", jobID, types.ErrNoSubtasksAvailable)
	}

	return claim, nil
}

// Heartbeat renews a lease.
func (c *Client) Heartbeat(ctx context.Context, jobID string, subtaskID int, workerID, nonce string) (types.HeartbeatResult, error) {
	var resp HeartbeatResponse
	req := HeartbeatRequest{JobID: jobID, SubtaskID: subtaskID, WorkerID: workerID, Nonce: nonce}
	if _, err := c.postJSON(ctx, "/api/task/heartbeat", req, &resp); err != nil {
		return nil, err
	}

	return fromResponse(resp), nil
}

// SubmitAnswer submits an answer; nil or empty releases the subtask.
func (c *Client) SubmitAnswer(ctx context.Context, jobID string, subtaskID int, answer *string) (types.Job, error) {
	var job types.Job
	req := AnswerRequest{JobID: jobID, SubtaskID: subtaskID, Answer: answer}
	_, err := c.postJSON(ctx, "/api/task/answer", req, &job)

	return job, err
}

// ListJobs lists open and solved jobs.
func (c *Client) ListJobs(ctx context.Context) (types.JobListing, error) {
	var listing types.JobListing
	err := c.getJSON(ctx, "/api/task", &listing)

	return listing, err
}

// GetJob returns one job.
func (c *Client) GetJob(ctx context.Context, jobID string) (types.JobView, error) {
	var view types.JobView
	err := c.getJSON(ctx, "/api/task/"+url.PathEscape(jobID), &view)

	return view, err
}

// GetSubtask returns one subtask descriptor.
func (c *Client) GetSubtask(ctx context.Context, jobID string, subtaskID int) (types.SubTask, error) {
	var st types.SubTask
	err := c.getJSON(ctx, "/api/task/"+url.PathEscape(jobID)+"/subtask/"+strconv.Itoa(subtaskID), &st)

	return st, err
}

// GetStats returns coordinator totals.
func (c *Client) GetStats(ctx context.Context) (types.Stats, error) {
	var stats types.Stats
	err := c.getJSON(ctx, "/api/stats", &stats)

	return stats, err
}

// RegisterWorker asks for a worker id and secret.
func (c *Client) RegisterWorker(ctx context.Context) (types.WorkerRegistration, error) {
	var reg types.WorkerRegistration
	_, err := c.postJSON(ctx, "/api/worker/register", struct{}{}, &reg)

	return reg, err
}

// Ping checks that the coordinator is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]string
	return c.getJSON(ctx, "/test", &out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, out)

	return err
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, errors.Join(types.ErrStoreUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, decodeError(req, resp)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}

	return resp.StatusCode, nil
}

// decodeError turns an error response back into the sentinel it came from.
func decodeError(req *http.Request, resp *http.Response) error {
	var body ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if strings.Contains(body.Error, types.ErrAnswerMismatch.Error()) {
			return fmt.Errorf("%s: %w", body.Error, types.ErrAnswerMismatch)
		}
		reason := body.Reason
		if reason == "" {
			reason = body.Error
		}
		return &types.ValidationError{Field: body.Field, Reason: reason}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", body.Error, types.ErrNotFound)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %w", body.Error, types.ErrStoreUnavailable)
	default:
		return fmt.Errorf("http %s %s: %d: %s", req.Method, req.URL.Path, resp.StatusCode, body.Error)
	}
}
