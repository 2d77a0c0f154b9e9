package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"creaturegrc/internal/auditpkg"
	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
	"creaturegrc/pkg/platform/httputil"
	"creaturegrc/pkg/requestcontext"
)

// Assembler builds an audit package archive.
type Assembler interface {
	Assemble(ctx context.Context, client, framework string, period id.Period, w io.Writer) (*auditpkg.Manifest, error)
}

// GenerateRequest asks for one audit package.
type GenerateRequest struct {
	Client      string `json:"client"`
	Framework   string `json:"framework"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func (r GenerateRequest) period() (id.Period, error) {
	start, err := time.Parse(time.RFC3339, r.PeriodStart)
	if err != nil {
		return id.Period{}, dErrors.New(dErrors.CodeBadRequest, "period_start must be RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, r.PeriodEnd)
	if err != nil {
		return id.Period{}, dErrors.New(dErrors.CodeBadRequest, "period_end must be RFC 3339")
	}
	return id.NewPeriod(start, end)
}

// Handler exposes audit package generation over HTTP.
type Handler struct {
	assembler  Assembler
	archiveDir string
	logger     *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithArchiveDir keeps a copy of every generated archive in dir, named after
// the package. Best effort: a failed copy is logged and the download still
// succeeds.
func WithArchiveDir(dir string) Option {
	return func(h *Handler) { h.archiveDir = dir }
}

func New(assembler Assembler, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{assembler: assembler, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the audit package endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Post("/packages", h.HandleGenerate)
}

// HandleGenerate handles POST /packages requests. The archive is built fully
// before the first response byte so an assembly failure still yields a
// proper error status.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[GenerateRequest](w, r, h.logger)
	if !ok {
		return
	}
	period, err := req.period()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var buf bytes.Buffer
	manifest, err := h.assembler.Assemble(ctx, req.Client, req.Framework, period, &buf)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit package generation failed",
			"request_id", requestcontext.RequestID(ctx),
			"framework", req.Framework,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if h.archiveDir != "" {
		path := filepath.Join(h.archiveDir, manifest.PackageName+".zip")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			h.logger.WarnContext(ctx, "audit package archive copy failed", "path", path, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+manifest.PackageName+`.zip"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		h.logger.WarnContext(ctx, "audit package download interrupted", "error", err)
	}
}
