// Package rbac guards API routes by role and answers denials with 401 or 403.
package rbac

import (
	"log/slog"
	"net/http"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/observability"
	"github.com/civicconnect/civic/internal/platform/httpx"
)

const guardName = "api"

// Middleware wires role checks for HTTP handlers. The principal must already be
// attached to the request context by the authentication layer.
type Middleware struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// forbiddenBody is the 403 payload.
type forbiddenBody struct {
	Message  string            `json:"message"`
	Required access.Requirement `json:"required"`
	Current  string            `json:"current"`
}

// RequireRoles allows the listed roles (and admin).
func (m Middleware) RequireRoles(roles ...access.Role) func(http.Handler) http.Handler {
	return m.Require(access.Require(roles...))
}

// RequireAuthenticated allows any signed-in principal.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.Require(access.Requirement{})
}

// Require enforces req on every request passing through.
func (m Middleware) Require(req access.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := access.PrincipalFromContext(r.Context())
			decision := access.Evaluate(principal, req)
			m.Metrics.ObserveDecision(guardName, string(decision.Reason))

			switch {
			case decision.Allowed:
				next.ServeHTTP(w, r)
			case principal == nil:
				m.log(r, slog.LevelInfo, "api request unauthenticated")
				httpx.Message(w, http.StatusUnauthorized, "Authentication required")
			default:
				m.log(r, slog.LevelWarn, "api request forbidden",
					slog.String("user_id", principal.ID),
					slog.String("role", principal.Role.String()),
					slog.Any("required", req.Names()),
				)
				httpx.JSON(w, http.StatusForbidden, forbiddenBody{
					Message:  "Access forbidden",
					Required: req,
					Current:  principal.Role.String(),
				})
			}
		})
	}
}

func (m Middleware) log(r *http.Request, level slog.Level, msg string, attrs ...slog.Attr) {
	if m.Logger == nil {
		return
	}
	attrs = append(attrs, slog.String("method", r.Method), slog.String("path", r.URL.Path))
	m.Logger.LogAttrs(r.Context(), level, msg, attrs...)
}
