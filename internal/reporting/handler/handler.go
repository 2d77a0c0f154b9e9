package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/reporting"
	"creaturegrc/internal/risk"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Aggregator defines the read-only reporting queries.
type Aggregator interface {
	Coverage(ctx context.Context, framework string, period id.Period) (*reporting.CoverageReport, error)
	Gaps(ctx context.Context, framework string, period id.Period) ([]reporting.Gap, error)
	RiskRegister(ctx context.Context) ([]*risk.Risk, error)
}

// Handler wires reporting endpoints to the aggregator.
type Handler struct {
	aggregator Aggregator
	logger     *slog.Logger
}

func New(aggregator Aggregator, logger *slog.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// Register mounts the reporting endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/reports/coverage", h.HandleCoverage)
	r.Get("/reports/gaps", h.HandleGaps)
	r.Get("/reports/risks", h.HandleRiskRegister)
}

// reportQuery extracts the framework and period from query parameters.
// Dates are RFC 3339.
func reportQuery(r *http.Request) (string, id.Period, error) {
	framework := r.URL.Query().Get("framework")
	if framework == "" {
		return "", id.Period{}, dErrors.New(dErrors.CodeBadRequest, "framework query parameter is required")
	}
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		return "", id.Period{}, dErrors.New(dErrors.CodeBadRequest, "from must be RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		return "", id.Period{}, dErrors.New(dErrors.CodeBadRequest, "to must be RFC 3339")
	}
	period, err := id.NewPeriod(start, end)
	if err != nil {
		return "", id.Period{}, err
	}
	return framework, period, nil
}

// HandleCoverage handles GET /reports/coverage requests.
func (h *Handler) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	framework, period, err := reportQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.aggregator.Coverage(ctx, framework, period)
	if err != nil {
		h.logger.ErrorContext(ctx, "coverage report failed",
			"request_id", requestcontext.RequestID(ctx),
			"framework", framework,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleGaps handles GET /reports/gaps requests.
func (h *Handler) HandleGaps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	framework, period, err := reportQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	gaps, err := h.aggregator.Gaps(ctx, framework, period)
	if err != nil {
		h.logger.ErrorContext(ctx, "gap report failed",
			"request_id", requestcontext.RequestID(ctx),
			"framework", framework,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, gaps)
}

// HandleRiskRegister handles GET /reports/risks requests.
func (h *Handler) HandleRiskRegister(w http.ResponseWriter, r *http.Request) {
	risks, err := h.aggregator.RiskRegister(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, risks)
}
