package routeguard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/activity"
	"github.com/civicconnect/civic/internal/observability"
)

const guardName = "page"

// IdentitySource resolves the identity for a page request.
type IdentitySource interface {
	Identity(r *http.Request) Identity
}

// IdentityFunc adapts a function into an IdentitySource.
type IdentityFunc func(r *http.Request) Identity

// Identity implements IdentitySource.
func (f IdentityFunc) Identity(r *http.Request) Identity {
	return f(r)
}

// Handler protects page views.
type Handler struct {
	Guard    Guard
	Identity IdentitySource
	// Trackers builds the idle tracker for the request's session; nil disables idle logout.
	Trackers activity.TrackerFunc
	// Waiting renders the neutral page shown while identity is unresolved.
	Waiting http.Handler
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

type viewConfig struct {
	timeout time.Duration
}

// ViewOption customises one protected view.
type ViewOption func(*viewConfig)

// WithIdleTimeout overrides the idle timeout for one view.
func WithIdleTimeout(d time.Duration) ViewOption {
	return func(c *viewConfig) { c.timeout = d }
}

// Protect wraps view with the navigation guard.
func (h *Handler) Protect(req access.Requirement, view http.Handler, opts ...ViewOption) http.Handler {
	var cfg viewConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		location := r.URL.RequestURI()
		id := h.Identity.Identity(r)

		var tracker *activity.Tracker
		if id.Principal != nil && h.Trackers != nil {
			tracker = h.Trackers(r)
		}
		if tracker != nil {
			mounted := tracker.WithTimeout(cfg.timeout).Mount(r.Context(), nil)
			defer mounted.Unmount()
			if mounted.Expired {
				h.finish(w, r, Outcome{
					Kind:   KindRedirect,
					Target: access.LoginURL(location),
					Reason: access.ReasonSessionExpired,
				}, view)
				return
			}
		}

		outcome := h.Guard.Check(Navigation{Identity: id, Location: location, Requirement: req})
		h.finish(w, r, outcome, view)
	})
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, outcome Outcome, view http.Handler) {
	if outcome.Reason != "" {
		h.Metrics.ObserveDecision(guardName, string(outcome.Reason))
	}
	switch outcome.Kind {
	case KindWait:
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Refresh", "1")
		if h.Waiting != nil {
			h.Waiting.ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	case KindRedirect:
		if h.Logger != nil {
			h.Logger.Debug("navigation redirected",
				slog.String("path", r.URL.Path),
				slog.String("target", outcome.Target),
				slog.String("reason", string(outcome.Reason)),
			)
		}
		http.Redirect(w, r, outcome.Target, http.StatusSeeOther)
	default:
		view.ServeHTTP(w, r)
	}
}
