package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/library"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Service defines the interface for control library operations.
type Service interface {
	ImportCatalog(ctx context.Context, r io.Reader) (*library.ImportSummary, error)
	ResolveControl(ctx context.Context, frameworkName, code string) (*library.ControlRef, error)
	DeclareEquivalence(ctx context.Context, controlID, peerID id.ControlID, note string) error
}

// Handler wires control library endpoints to the library service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the library administration endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/catalogs/import", h.HandleImport)
	r.Post("/controls/equivalences", h.HandleDeclareEquivalence)
}

// HandleImport handles POST /catalogs/import requests. The body is the raw
// YAML catalog.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.service.ImportCatalog(ctx, r.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "catalog import failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// EquivalenceRequest declares that two controls satisfy the same
// requirement. Controls are addressed by framework name and code.
type EquivalenceRequest struct {
	Framework     string `json:"framework"`
	ControlCode   string `json:"control_code"`
	PeerFramework string `json:"peer_framework"`
	PeerCode      string `json:"peer_control_code"`
	Note          string `json:"note,omitempty"`
}

// HandleDeclareEquivalence handles POST /controls/equivalences requests.
func (h *Handler) HandleDeclareEquivalence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[EquivalenceRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.Framework == "" || req.ControlCode == "" || req.PeerFramework == "" || req.PeerCode == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			"framework, control_code, peer_framework, and peer_control_code are required"))
		return
	}

	ref, err := h.service.ResolveControl(ctx, req.Framework, req.ControlCode)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	peer, err := h.service.ResolveControl(ctx, req.PeerFramework, req.PeerCode)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.DeclareEquivalence(ctx, ref.Control.ID, peer.Control.ID, req.Note); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
