// Package httpapi assembles the HTTP surface: the collector submission
// contract, the reviewer workflow, and the read-only reporting views.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	auditpkghandler "creaturegrc/internal/auditpkg/handler"
	collectionhandler "creaturegrc/internal/collection/handler"
	creatureshandler "creaturegrc/internal/creatures/handler"
	evidencehandler "creaturegrc/internal/evidence/handler"
	libraryhandler "creaturegrc/internal/library/handler"
	"creaturegrc/internal/platform/metrics"
	"creaturegrc/internal/platform/middleware"
	reportinghandler "creaturegrc/internal/reporting/handler"
	riskhandler "creaturegrc/internal/risk/handler"
	trackerhandler "creaturegrc/internal/tracker/handler"
)

// Deps carries everything the router mounts.
type Deps struct {
	Library    *libraryhandler.Handler
	Creatures  *creatureshandler.Handler
	Tracker    *trackerhandler.Handler
	Evidence   *evidencehandler.Handler
	Collection *collectionhandler.Handler
	Risk       *riskhandler.Handler
	Reporting  *reportinghandler.Handler
	Packages   *auditpkghandler.Handler

	// JWTSigningKey protects everything except the collector contract.
	JWTSigningKey string
	// CollectorKeys maps source system name to bcrypt API key hash.
	CollectorKeys map[string]string

	Logger *slog.Logger
}

// NewRouter wires all endpoints behind their authentication gates.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMeta)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Collector contract: API-key authenticated evidence submission.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireCollectorKey(deps.CollectorKeys, deps.Logger))
		deps.Evidence.RegisterCollector(r)
	})

	// Operator surface: JWT bearer tokens for administration, review, and
	// reporting.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireJWT(deps.JWTSigningKey, deps.Logger))
		deps.Library.Register(r)
		deps.Creatures.Register(r)
		deps.Tracker.Register(r)
		deps.Evidence.RegisterReviewer(r)
		deps.Collection.Register(r)
		deps.Risk.Register(r)
		deps.Reporting.Register(r)
		deps.Packages.Register(r)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
