package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	distcomp "github.com/ngruychev/distributed-computing"
	"github.com/ngruychev/distributed-computing/internal/cracker"
	dctest "github.com/ngruychev/distributed-computing/testing"
	"github.com/ngruychev/distributed-computing/types"
)

func newTestServer(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()

	cfg := distcomp.TestConfig()
	coord, err := distcomp.NewCoordinator(&cfg, distcomp.NewMemoryStore(), distcomp.NewMemoryStore())
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(coord, dctest.NewTestLogger(t)).Handler())
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, 2*time.Second), srv
}

func ezpzSpec(t *testing.T) types.JobSpec {
	t.Helper()

	hash, err := cracker.Hash(types.AlgorithmSHA256, "hunter2")
	require.NoError(t, err)

	return types.JobSpec{
		Name:         "http",
		Algorithm:    types.AlgorithmSHA256,
		Wordlist:     types.WordlistEzpz,
		PasswordHash: hash,
		SubtaskLen:   10,
	}
}

func TestClient_Lifecycle(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := t.Context()

	require.NoError(t, client.Ping(ctx))

	reg, err := client.RegisterWorker(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, reg.WorkerID)

	job, err := client.CreateJob(ctx, ezpzSpec(t))
	require.NoError(t, err)
	require.Equal(t, 3, job.SubtaskCount)

	listing, err := client.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, listing.Open, 1)
	require.Equal(t, job.ID, listing.Open[0].ID)

	claim, err := client.ClaimSubtask(ctx, job.ID, reg.WorkerID)
	require.NoError(t, err)
	require.Equal(t, 0, claim.SubtaskID)

	st, err := client.GetSubtask(ctx, job.ID, claim.SubtaskID)
	require.NoError(t, err)
	require.Equal(t, types.LineRange{0, 9}, st.LineRange)

	res, err := client.Heartbeat(ctx, job.ID, claim.SubtaskID, reg.WorkerID, claim.Lease.Nonce)
	require.NoError(t, err)
	renewed, ok := res.(types.Renewed)
	require.True(t, ok)
	require.NotEqual(t, claim.Lease.Nonce, renewed.Nonce)
	require.False(t, renewed.ExpiresAt.IsZero())

	res, err = client.Heartbeat(ctx, job.ID, claim.SubtaskID, reg.WorkerID, claim.Lease.Nonce)
	require.NoError(t, err)
	require.Equal(t, types.Rejected{}, res)

	// Rejected: subtask 0 went to the tail.
	claim, err = client.ClaimSubtask(ctx, job.ID, reg.WorkerID)
	require.NoError(t, err)
	require.Equal(t, 1, claim.SubtaskID)

	released, err := client.SubmitAnswer(ctx, job.ID, claim.SubtaskID, nil)
	require.NoError(t, err)
	require.Nil(t, released.Answer)

	_, err = client.SubmitAnswer(ctx, job.ID, claim.SubtaskID, ptr("wrong"))
	require.ErrorIs(t, err, types.ErrAnswerMismatch)

	solved, err := client.SubmitAnswer(ctx, job.ID, 2, ptr("hunter2"))
	require.NoError(t, err)
	require.Equal(t, "hunter2", *solved.Answer)

	view, err := client.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, view.Solved())
	require.Nil(t, view.Progress)

	stats, err := client.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, types.Stats{TotalJobs: 1, JobsSolved: 1}, stats)

	_, err = client.ClaimSubtask(ctx, job.ID, reg.WorkerID)
	require.ErrorIs(t, err, types.ErrNoSubtasksAvailable)
}

func TestClient_Errors(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := t.Context()

	spec := ezpzSpec(t)
	spec.SubtaskLen = 3
	_, err := client.CreateJob(ctx, spec)
	require.ErrorIs(t, err, types.ErrValidation)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "subtaskRangeLen", verr.Field)
	require.NotContains(t, verr.Reason, "validation failed")

	_, err = client.GetJob(ctx, uuid.NewString())
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = client.ClaimSubtask(ctx, uuid.NewString(), uuid.NewString())
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = client.GetSubtask(ctx, "not-a-uuid", 0)
	require.ErrorIs(t, err, types.ErrValidation)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).GetStats(t.Context())
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
}

type failingService struct {
	Service
	err error
}

func (f failingService) GetStats(context.Context) (types.Stats, error) { return types.Stats{}, f.err }

func TestServer_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", types.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{types.ErrContention, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{types.ErrNotFound, http.StatusNotFound},
		{types.NewValidationError("f", "bad"), http.StatusBadRequest},
		{types.ErrAnswerMismatch, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewServer(failingService{err: tt.err}, nil).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestServer_BadRequests(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/task/claim", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/task/" + uuid.NewString() + "/subtask/abc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/task/claim")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/test")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func ptr(s string) *string { return &s }
