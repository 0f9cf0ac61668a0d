package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/activity"
	"github.com/civicconnect/civic/internal/auth"
	"github.com/civicconnect/civic/internal/observability"
	"github.com/civicconnect/civic/internal/rbac"
	"github.com/civicconnect/civic/internal/routeguard"
	"github.com/civicconnect/civic/internal/shared"
	"github.com/civicconnect/civic/internal/users"
	"github.com/civicconnect/civic/jobs"
	"github.com/civicconnect/civic/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Pages          *Pages
	AuthHandler    *auth.Handler
	AuthService    *auth.Service
	Loader         *auth.PrincipalLoader
	UsersHandler   *users.Handler
	RBACMiddleware rbac.Middleware
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)
	r.Use(params.Loader.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	trackers := sessionTrackers(params)
	pages := params.Pages
	guard := &routeguard.Handler{
		Guard:    routeguard.New(params.Config.SensitivePathMarkers...),
		Identity: params.Loader,
		Trackers: trackers,
		Waiting:  http.HandlerFunc(pages.Loading),
		Logger:   params.Logger,
		Metrics:  params.Metrics,
	}
	// Pages without a dedicated view render as dashboards.
	views := map[string]http.Handler{
		"/admin":                       http.HandlerFunc(pages.Admin),
		"/settings":                    http.HandlerFunc(pages.Settings),
		access.VerificationPendingPath: http.HandlerFunc(pages.VerifyPending),
	}

	r.Get("/", pages.Root)
	r.Get(access.LoginPath, pages.Login)
	r.Get("/verify-email", pages.VerifyLink)
	for _, page := range PageRoutes() {
		view, ok := views[page.Path]
		if !ok {
			view = pages.Dashboard(page.Title)
		}
		r.Method(http.MethodGet, page.Path, guard.Protect(page.Requirement, view))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.Loader.RequireResolved)
		r.Use(activity.ExpireIdle(trackers, params.Logger))
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.With(params.RBACMiddleware.RequireAuthenticated()).
			Post("/activity", activity.HeartbeatHandler(trackers, params.Logger))
		if params.UsersHandler != nil {
			r.Route("/admin/users", params.UsersHandler.MountRoutes)
		}
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// sessionTrackers builds an idle tracker over the signed-in request's session.
// Anonymous requests get nil.
func sessionTrackers(params RouterParams) activity.TrackerFunc {
	expire := func(ctx context.Context) {
		sess := shared.SessionFromContext(ctx)
		if sess == nil || sess.User() == "" {
			return
		}
		params.Logger.Info("session idle timeout", slog.String("user_id", sess.User()))
		if params.AuthService != nil {
			if err := params.AuthService.RemoveSession(ctx, sess.ID); err != nil {
				params.Logger.Warn("remove expired session", slog.Any("error", err))
			}
		}
		sess.ClearUser()
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "You were signed out after a period of inactivity."})
		params.Metrics.SessionExpired()
	}
	return func(r *http.Request) *activity.Tracker {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || access.PrincipalFromContext(r.Context()) == nil {
			return nil
		}
		return activity.NewTracker(activity.SessionStore{Session: sess},
			activity.WithIdleTimeout(params.Config.SessionIdleTimeout),
			activity.WithExpireHook(expire),
		)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
