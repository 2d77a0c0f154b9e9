package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/evidence"
	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Service defines the interface for evidence operations.
type Service interface {
	Submit(ctx context.Context, req evidence.SubmitRequest) (*evidence.SubmitResult, error)
	Review(ctx context.Context, evidenceID id.EvidenceID, to evidence.ReviewStatus, notes string) (*evidence.Evidence, error)
	Get(ctx context.Context, evidenceID id.EvidenceID) (*evidence.Evidence, error)
}

// Handler wires evidence endpoints to the evidence service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterCollector mounts the collector-facing submission endpoint.
func (h *Handler) RegisterCollector(r chi.Router) {
	r.Post("/evidence", h.HandleSubmit)
}

// RegisterReviewer mounts the reviewer-facing endpoints.
func (h *Handler) RegisterReviewer(r chi.Router) {
	r.Get("/evidence/{evidenceID}", h.HandleGet)
	r.Post("/evidence/{evidenceID}/review", h.HandleReview)
}

// HandleSubmit handles POST /evidence requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}

	// The authenticated collector identity is the source system.
	domainReq, err := req.ToDomain(requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Submit(ctx, domainReq)
	if err != nil {
		h.logger.ErrorContext(ctx, "evidence submission failed",
			"request_id", requestcontext.RequestID(ctx),
			"source_system", domainReq.SourceSystem,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

// HandleReview handles POST /evidence/{evidenceID}/review requests.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[ReviewRequest](w, r, h.logger)
	if !ok {
		return
	}

	reviewed, err := h.service.Review(ctx, evidenceID, evidence.ReviewStatus(req.Status), req.Notes)
	if err != nil {
		h.logger.ErrorContext(ctx, "evidence review failed",
			"request_id", requestcontext.RequestID(ctx),
			"evidence_id", evidenceID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviewed)
}

// HandleGet handles GET /evidence/{evidenceID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := h.service.Get(r.Context(), evidenceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}
