package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ngruychev/distributed-computing/internal/logger"
	"github.com/ngruychev/distributed-computing/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server translates HTTP requests into Service calls.
type Server struct {
	svc    Service
	logger types.Logger
}

// NewServer creates a Server. A nil logger disables logging.
func NewServer(svc Service, l types.Logger) *Server {
	return &Server{svc: svc, logger: logger.OrNop(l)}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/task", s.handleCreateJob)
	mux.HandleFunc("GET /api/task", s.handleListJobs)
	mux.HandleFunc("GET /api/task/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/task/{id}/subtask/{sid}", s.handleGetSubtask)
	mux.HandleFunc("POST /api/task/claim", s.handleClaim)
	mux.HandleFunc("POST /api/task/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /api/task/answer", s.handleAnswer)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/worker/register", s.handleRegister)
	mux.HandleFunc("GET /test", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})

	return s.logRequests(mux)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var spec types.JobSpec
	if !s.decode(w, r, &spec) {
		return
	}
	job, err := s.svc.CreateJob(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	listing, err := s.svc.ListJobs(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetSubtask(w http.ResponseWriter, r *http.Request) {
	sid, err := strconv.Atoi(r.PathValue("sid"))
	if err != nil {
		s.writeError(w, r, types.NewValidationError("subtaskId", "must be an integer, got %q", r.PathValue("sid")))
		return
	}
	st, err := s.svc.GetSubtask(r.Context(), r.PathValue("id"), sid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !s.decode(w, r, &req) {
		return
	}
	claim, err := s.svc.ClaimSubtask(r.Context(), req.JobID, req.WorkerID)
	if errors.Is(err, types.ErrNoSubtasksAvailable) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Heartbeat(r.Context(), req.JobID, req.SubtaskID, req.WorkerID, req.Nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.SubmitAnswer(r.Context(), req.JobID, req.SubtaskID, req.Answer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	reg, err := s.svc.RegisterWorker(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, &types.ValidationError{Reason: "invalid request body: " + err.Error()})
		return false
	}

	return true
}

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrAnswerMismatch):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrStoreUnavailable),
		errors.Is(err, types.ErrContention),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	body := ErrorResponse{Error: err.Error()}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
		body.Reason = verr.Reason
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
