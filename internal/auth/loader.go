package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/platform/httpx"
	"github.com/civicconnect/civic/internal/routeguard"
	"github.com/civicconnect/civic/internal/shared"
)

// UserFinder loads users by id.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*User, error)
}

// PrincipalLoader resolves the session's user into an access.Principal and
// attaches it to the request context.
type PrincipalLoader struct {
	users  UserFinder
	logger *slog.Logger
	group  singleflight.Group
}

// NewPrincipalLoader constructs a PrincipalLoader.
func NewPrincipalLoader(users UserFinder, logger *slog.Logger) *PrincipalLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrincipalLoader{users: users, logger: logger}
}

type pendingContextKey struct{}

// Middleware resolves the principal once per request. A lookup failure that is
// not "not found" leaves the identity pending instead of anonymous.
func (l *PrincipalLoader) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := shared.SessionFromContext(ctx)
		if sess == nil || strings.TrimSpace(sess.User()) == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := l.resolve(ctx, sess.User())
		switch {
		case err == nil:
			ctx = access.ContextWithPrincipal(ctx, principal)
		case errors.Is(err, shared.ErrNotFound):
			sess.ClearUser()
		default:
			l.logger.Warn("resolve principal", slog.String("user_id", sess.User()), slog.Any("error", err))
			ctx = context.WithValue(ctx, pendingContextKey{}, true)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireResolved answers 503 while the identity could not be resolved, so API
// clients retry instead of treating a backend hiccup as a logout.
func (l *PrincipalLoader) RequireResolved(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pending(r.Context()) {
			w.Header().Set("Retry-After", "1")
			httpx.Message(w, http.StatusServiceUnavailable, "Identity temporarily unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Identity implements routeguard.IdentitySource.
func (l *PrincipalLoader) Identity(r *http.Request) routeguard.Identity {
	return routeguard.Identity{
		Loading:   pending(r.Context()),
		Principal: access.PrincipalFromContext(r.Context()),
	}
}

func (l *PrincipalLoader) resolve(ctx context.Context, rawID string) (*access.Principal, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		return nil, shared.ErrNotFound
	}
	// The lookup is shared by every request collapsed onto it, so one caller
	// going away must not fail the others.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := l.group.Do(rawID, func() (any, error) {
		return l.users.FindByID(lookupCtx, id)
	})
	if err != nil {
		return nil, err
	}
	user := v.(*User)
	if !user.IsActive {
		return nil, shared.ErrNotFound
	}
	return user.Principal(), nil
}

func pending(ctx context.Context) bool {
	v, _ := ctx.Value(pendingContextKey{}).(bool)
	return v
}

var _ routeguard.IdentitySource = (*PrincipalLoader)(nil)
