package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/creatures"
	id "creaturegrc/pkg/domain"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Service defines the interface for entity registry operations.
type Service interface {
	Register(ctx context.Context, input creatures.RegisterInput) (*creatures.Creature, bool, error)
	Link(ctx context.Context, fromID, toID id.CreatureID, kind creatures.RelationKind) error
	Get(ctx context.Context, creatureID id.CreatureID) (*creatures.Creature, error)
	Dependencies(ctx context.Context, creatureID id.CreatureID) ([]creatures.Edge, error)
}

// Handler wires entity registry endpoints to the creatures service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the entity registry endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/creatures", h.HandleRegister)
	r.Get("/creatures/{creatureID}", h.HandleGet)
	r.Get("/creatures/{creatureID}/dependencies", h.HandleDependencies)
	r.Post("/creatures/{creatureID}/links", h.HandleLink)
}

// RegisterRequest is one discovery sighting.
type RegisterRequest struct {
	Name         string            `json:"name"`
	Class        string            `json:"class"`
	SubClass     string            `json:"sub_class,omitempty"`
	Domain       string            `json:"domain,omitempty"`
	Criticality  string            `json:"criticality"`
	SourceSystem string            `json:"source_system"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	DiscoveredAt string            `json:"discovered_at,omitempty"`
}

// HandleRegister handles POST /creatures requests.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[RegisterRequest](w, r, h.logger)
	if !ok {
		return
	}

	discoveredAt := requestcontext.Now(ctx)
	if req.DiscoveredAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.DiscoveredAt)
		if err == nil {
			discoveredAt = parsed
		}
	}

	creature, created, err := h.service.Register(ctx, creatures.RegisterInput{
		Name:         req.Name,
		Class:        creatures.Class(req.Class),
		SubClass:     req.SubClass,
		Domain:       req.Domain,
		Criticality:  creatures.Criticality(req.Criticality),
		SourceSystem: req.SourceSystem,
		Attributes:   req.Attributes,
		DiscoveredAt: discoveredAt,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "creature registration failed",
			"request_id", requestcontext.RequestID(ctx),
			"source_system", req.SourceSystem,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, creature)
}

// LinkRequest relates the creature in the URL to another one.
type LinkRequest struct {
	ToID string `json:"to_id"`
	Kind string `json:"kind"`
}

// HandleLink handles POST /creatures/{creatureID}/links requests.
func (h *Handler) HandleLink(w http.ResponseWriter, r *http.Request) {
	fromID, err := id.ParseCreatureID(chi.URLParam(r, "creatureID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[LinkRequest](w, r, h.logger)
	if !ok {
		return
	}
	toID, err := id.ParseCreatureID(req.ToID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Link(r.Context(), fromID, toID, creatures.RelationKind(req.Kind)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet handles GET /creatures/{creatureID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	creatureID, err := id.ParseCreatureID(chi.URLParam(r, "creatureID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	creature, err := h.service.Get(r.Context(), creatureID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, creature)
}

// HandleDependencies handles GET /creatures/{creatureID}/dependencies
// requests.
func (h *Handler) HandleDependencies(w http.ResponseWriter, r *http.Request) {
	creatureID, err := id.ParseCreatureID(chi.URLParam(r, "creatureID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	edges, err := h.service.Dependencies(r.Context(), creatureID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, edges)
}
