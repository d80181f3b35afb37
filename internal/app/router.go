package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/garrison-hq/garrison/internal/auth"
	"github.com/garrison-hq/garrison/internal/observability"
	"github.com/garrison-hq/garrison/internal/personnel"
	"github.com/garrison-hq/garrison/internal/rbac"
	"github.com/garrison-hq/garrison/internal/session"
	"github.com/garrison-hq/garrison/internal/shared"
	"github.com/garrison-hq/garrison/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Sessions         *session.WebSessions
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	PersonnelHandler *personnel.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Garrison defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Sessions:    params.Sessions,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		// Login attempts get a tighter per-IP budget than general traffic.
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Route("/auth", params.AuthHandler.MountRoutes)
	})

	if params.PersonnelHandler != nil {
		r.Route("/personnel", params.PersonnelHandler.MountRoutes)
	}

	if params.JobHandler != nil {
		guard := session.Guard{Logger: params.Logger}
		r.Route("/jobs", func(r chi.Router) {
			r.Use(guard.RequireAny(rbac.PermManageSystem))
			params.JobHandler.MountRoutes(r)
		})
	}

	if params.Metrics != nil {
		r.Get("/metrics", params.Metrics.Handler().ServeHTTP)
	}

	return r
}
