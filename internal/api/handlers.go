package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ChuLiYu/hash-queue/internal/config"
	"github.com/ChuLiYu/hash-queue/internal/controller"
	"github.com/ChuLiYu/hash-queue/internal/events"
	"github.com/ChuLiYu/hash-queue/internal/jobmanager"
	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// Queue is what the handlers need from the controller.
type Queue interface {
	Submit(algorithm string, input any) (*types.Job, error)
	GetJob(id types.JobID) (*types.Job, error)
	ListJobs() []types.JobSummary
	ListHistory() []types.JobSummary
	GetConfig() types.RuntimeConfig
	UpdateConfig(patch config.Patch) (types.RuntimeConfig, error)
	Algorithms() []string
	Stats() map[string]any
	Events() *events.Hub
}

type Handlers struct {
	q Queue
}

func NewHandlers(q Queue) *Handlers {
	return &Handlers{q: q}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SubmitRequest body of POST /api/jobs
type SubmitRequest struct {
	Algorithm string `json:"algorithm"`
	Input     any    `json:"input"`
}

// SubmitResponse body of a successful submission
type SubmitResponse struct {
	ID types.JobID `json:"id"`
}

func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.q.Submit(req.Algorithm, req.Input)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{ID: job.ID})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := types.JobID(chi.URLParam(r, "id"))
	job, err := h.q.GetJob(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListResponse body of the list endpoints
type ListResponse struct {
	Jobs []types.JobSummary `json:"jobs"`
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse{Jobs: h.q.ListJobs()})
}

func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse{Jobs: h.q.ListHistory()})
}

func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.q.GetConfig())
}

func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeConfigError(w, err)
		return
	}

	cfg, err := h.q.UpdateConfig(patch)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) Algorithms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"algorithms": h.q.Algorithms()})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.q.Stats())
}

// ErrorResponse error envelope; Field is set for config validation errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeConfigError(w http.ResponseWriter, err error) {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, jobmanager.ErrInvalidAlgorithm),
		errors.Is(err, jobmanager.ErrInvalidInput),
		errors.Is(err, config.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, jobmanager.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, jobmanager.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
