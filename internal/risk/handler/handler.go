package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/risk"
	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Service defines the interface for risk engine operations.
type Service interface {
	CreateRisk(ctx context.Context, title, description string, likelihood, impact risk.Rating) (*risk.Risk, error)
	UpsertMapping(ctx context.Context, mapping risk.Mapping) (*risk.Risk, error)
	Get(ctx context.Context, riskID id.RiskID) (*risk.Risk, error)
}

// Handler wires risk endpoints to the risk service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the risk endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/risks", h.HandleCreate)
	r.Get("/risks/{riskID}", h.HandleGet)
	r.Put("/risks/{riskID}/mappings", h.HandleUpsertMapping)
}

// CreateRequest records a new risk.
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Likelihood  string `json:"likelihood"`
	Impact      string `json:"impact"`
}

// HandleCreate handles POST /risks requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}

	created, err := h.service.CreateRisk(ctx, req.Title, req.Description,
		risk.Rating(req.Likelihood), risk.Rating(req.Impact))
	if err != nil {
		h.logger.ErrorContext(ctx, "risk creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// MappingRequest declares or re-rates a mitigation.
type MappingRequest struct {
	ControlID     string `json:"control_id"`
	Effectiveness string `json:"effectiveness"`
}

// HandleUpsertMapping handles PUT /risks/{riskID}/mappings requests. The
// response carries the risk with its recomputed residual score.
func (h *Handler) HandleUpsertMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	riskID, err := id.ParseRiskID(chi.URLParam(r, "riskID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[MappingRequest](w, r, h.logger)
	if !ok {
		return
	}
	controlID, err := id.ParseControlID(req.ControlID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := h.service.UpsertMapping(ctx, risk.Mapping{
		RiskID:        riskID,
		ControlID:     controlID,
		Effectiveness: risk.Effectiveness(req.Effectiveness),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "mapping upsert failed",
			"request_id", requestcontext.RequestID(ctx),
			"risk_id", riskID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// HandleGet handles GET /risks/{riskID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	riskID, err := id.ParseRiskID(chi.URLParam(r, "riskID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.service.Get(r.Context(), riskID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}
