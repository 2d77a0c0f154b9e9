package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/collection"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Service defines the interface for collection job administration.
type Service interface {
	CreateJob(ctx context.Context, name, jobType, sourceSystem string, interval, timeout time.Duration) (*collection.Job, error)
	SetEnabled(ctx context.Context, jobID id.JobID, enabled bool) error
	List(ctx context.Context) ([]*collection.Job, error)
}

// Runner triggers a job outside its schedule. Run outcomes are recorded on
// the job row, not returned.
type Runner interface {
	RunJob(ctx context.Context, jobID id.JobID, now time.Time)
}

// Handler wires collection job endpoints to the collection service.
type Handler struct {
	service Service
	runner  Runner
	logger  *slog.Logger
}

func New(service Service, runner Runner, logger *slog.Logger) *Handler {
	return &Handler{service: service, runner: runner, logger: logger}
}

// Register mounts the collection job endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/jobs", h.HandleCreate)
	r.Get("/jobs", h.HandleList)
	r.Post("/jobs/{jobID}/enable", h.HandleEnable)
	r.Post("/jobs/{jobID}/disable", h.HandleDisable)
	r.Post("/jobs/{jobID}/run", h.HandleRun)
}

// CreateRequest schedules a new collection job. Durations use Go syntax,
// for example "24h" or "30m". Timeout may be omitted to take the server
// default.
type CreateRequest struct {
	Name         string `json:"name"`
	JobType      string `json:"job_type"`
	SourceSystem string `json:"source_system"`
	Interval     string `json:"interval"`
	Timeout      string `json:"timeout,omitempty"`
}

// HandleCreate handles POST /jobs requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}
	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "interval must be a duration"))
		return
	}
	var timeout time.Duration
	if req.Timeout != "" {
		timeout, err = time.ParseDuration(req.Timeout)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "timeout must be a duration"))
			return
		}
	}

	job, err := h.service.CreateJob(ctx, req.Name, req.JobType, req.SourceSystem, interval, timeout)
	if err != nil {
		h.logger.ErrorContext(ctx, "job creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"job", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, job)
}

// HandleList handles GET /jobs requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, jobs)
}

// HandleEnable handles POST /jobs/{jobID}/enable requests.
func (h *Handler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// HandleDisable handles POST /jobs/{jobID}/disable requests.
func (h *Handler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetEnabled(r.Context(), jobID, enabled); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRun handles POST /jobs/{jobID}/run requests: an immediate run
// regardless of schedule. The run executes in the background and its outcome
// lands on the job row, so the response never waits on a slow source.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// Detach from the request lifetime but keep the actor and request ID
	// for the activity trail.
	go h.runner.RunJob(context.WithoutCancel(ctx), jobID, requestcontext.Now(ctx))
	w.WriteHeader(http.StatusAccepted)
}
