package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/tracker"
	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Service defines the interface for implementation tracker operations.
type Service interface {
	CreateImplementation(ctx context.Context, controlID id.ControlID, automation tracker.AutomationLevel, frequency tracker.TestingFrequency) (*tracker.Implementation, error)
	Transition(ctx context.Context, req tracker.TransitionRequest) (*tracker.Implementation, error)
	BindCreature(ctx context.Context, implementationID id.ImplementationID, creatureID id.CreatureID) (*tracker.Implementation, error)
	BindPolicy(ctx context.Context, implementationID id.ImplementationID, policyRef string) (*tracker.Implementation, error)
	RecordTest(ctx context.Context, implementationID id.ImplementationID, at time.Time) (*tracker.Implementation, error)
	Get(ctx context.Context, implementationID id.ImplementationID) (*tracker.Implementation, error)
	History(ctx context.Context, implementationID id.ImplementationID) ([]tracker.Transition, error)
	OpenFinding(ctx context.Context, implementationID id.ImplementationID, evidenceID *id.EvidenceID, title, description string, severity tracker.FindingSeverity, dueDate *time.Time) (*tracker.Finding, error)
	AdvanceFinding(ctx context.Context, findingID id.FindingID, to tracker.FindingStatus) (*tracker.Finding, error)
}

// Handler wires implementation tracker endpoints to the tracker service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the tracker endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/implementations", h.HandleCreate)
	r.Get("/implementations/{implementationID}", h.HandleGet)
	r.Get("/implementations/{implementationID}/history", h.HandleHistory)
	r.Post("/implementations/{implementationID}/transition", h.HandleTransition)
	r.Post("/implementations/{implementationID}/creatures", h.HandleBindCreature)
	r.Post("/implementations/{implementationID}/policies", h.HandleBindPolicy)
	r.Post("/implementations/{implementationID}/tests", h.HandleRecordTest)
	r.Post("/implementations/{implementationID}/findings", h.HandleOpenFinding)
	r.Post("/findings/{findingID}/advance", h.HandleAdvanceFinding)
}

// CreateRequest declares that a control applies and will be tracked.
type CreateRequest struct {
	ControlID  string `json:"control_id"`
	Automation string `json:"automation"`
	Frequency  string `json:"testing_frequency"`
}

// HandleCreate handles POST /implementations requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}
	controlID, err := id.ParseControlID(req.ControlID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	implementation, err := h.service.CreateImplementation(ctx, controlID,
		tracker.AutomationLevel(req.Automation), tracker.TestingFrequency(req.Frequency))
	if err != nil {
		h.logger.ErrorContext(ctx, "implementation creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"control_id", req.ControlID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, implementation)
}

// TransitionRequest asks for one status change.
type TransitionRequest struct {
	To       string `json:"to"`
	Override bool   `json:"override,omitempty"`
	Note     string `json:"note,omitempty"`
}

// HandleTransition handles POST /implementations/{implementationID}/transition
// requests.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	implementationID, err := id.ParseImplementationID(chi.URLParam(r, "implementationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[TransitionRequest](w, r, h.logger)
	if !ok {
		return
	}

	implementation, err := h.service.Transition(ctx, tracker.TransitionRequest{
		ImplementationID: implementationID,
		To:               tracker.ImplementationStatus(req.To),
		Override:         req.Override,
		Note:             req.Note,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "status transition failed",
			"request_id", requestcontext.RequestID(ctx),
			"implementation_id", implementationID.String(),
			"to", req.To,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, implementation)
}

// BindCreatureRequest attaches a creature to an implementation.
type BindCreatureRequest struct {
	CreatureID string `json:"creature_id"`
}

// HandleBindCreature handles POST /implementations/{implementationID}/creatures
// requests.
func (h *Handler) HandleBindCreature(w http.ResponseWriter, r *http.Request) {
	implementationID, err := id.ParseImplementationID(chi.URLParam(r, "implementationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[BindCreatureRequest](w, r, h.logger)
	if !ok {
		return
	}
	creatureID, err := id.ParseCreatureID(req.CreatureID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	implementation, err := h.service.BindCreature(r.Context(), implementationID, creatureID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, implementation)
}

// BindPolicyRequest attaches a policy document reference.
type BindPolicyRequest struct {
	PolicyRef string `json:"policy_ref"`
}

// HandleBindPolicy handles POST /implementations/{implementationID}/policies
// requests.
func (h *Handler) HandleBindPolicy(w http.ResponseWriter, r *http.Request) {
	implementationID, err := id.ParseImplementationID(chi.URLParam(r, "implementationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[BindPolicyRequest](w, r, h.logger)
	if !ok {
		return
	}

	implementation, err := h.service.BindPolicy(r.Context(), implementationID, req.PolicyRef)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, implementation)
}

// HandleRecordTest handles POST /implementations/{implementationID}/tests
// requests.
func (h *Handler) HandleRecordTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	implementationID, err := id.ParseImplementationID(chi.URLParam(r, "implementationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	implementation, err := h.service.RecordTest(ctx, implementationID, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, implementation)
}

// HandleGet handles GET /implementations/{implementationID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	implementationID, err := id.ParseImplementationID(chi.URLParam(r, "implementationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	implementation, err := h.service.Get(r.Context(), implementationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, implementation)
}

// HandleHistory handles GET /implementations/{implementationID}/history
// requests.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	implementationID, err := id.ParseImplementationID(chi.URLParam(r, "implementationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	history, err := h.service.History(r.Context(), implementationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

// OpenFindingRequest records an audit finding against an implementation.
type OpenFindingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity"`
	EvidenceID  string `json:"evidence_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// HandleOpenFinding handles POST /implementations/{implementationID}/findings
// requests.
func (h *Handler) HandleOpenFinding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	implementationID, err := id.ParseImplementationID(chi.URLParam(r, "implementationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[OpenFindingRequest](w, r, h.logger)
	if !ok {
		return
	}

	var evidenceID *id.EvidenceID
	if req.EvidenceID != "" {
		parsed, err := id.ParseEvidenceID(req.EvidenceID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		evidenceID = &parsed
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.DueDate)
		if err == nil {
			dueDate = &parsed
		}
	}

	finding, err := h.service.OpenFinding(ctx, implementationID, evidenceID,
		req.Title, req.Description, tracker.FindingSeverity(req.Severity), dueDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, finding)
}

// AdvanceFindingRequest moves a finding through its lifecycle.
type AdvanceFindingRequest struct {
	To string `json:"to"`
}

// HandleAdvanceFinding handles POST /findings/{findingID}/advance requests.
func (h *Handler) HandleAdvanceFinding(w http.ResponseWriter, r *http.Request) {
	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[AdvanceFindingRequest](w, r, h.logger)
	if !ok {
		return
	}

	finding, err := h.service.AdvanceFinding(r.Context(), findingID, tracker.FindingStatus(req.To))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, finding)
}
