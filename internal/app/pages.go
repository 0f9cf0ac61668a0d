package app

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/auth"
	"github.com/civicconnect/civic/internal/shared"
	"github.com/civicconnect/civic/internal/users"
	"github.com/civicconnect/civic/internal/view"
)

// Pages renders the HTML views. Access control happens in the route guard
// before any of these run.
type Pages struct {
	Templates   *view.Engine
	CSRF        *shared.CSRFManager
	Auth        *auth.Service
	Users       *users.Service
	Logger      *slog.Logger
	IdleTimeout time.Duration
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := p.CSRF.EnsureToken(sess)
	if err != nil {
		p.Logger.Warn("csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	principal := access.PrincipalFromContext(r.Context())
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Data:        data,
	}
	if principal != nil {
		td.IdleTimeout = p.IdleTimeout
	}
	if err := p.Templates.RenderStatus(w, status, name, td); err != nil {
		p.Logger.Error("render page", slog.String("template", name), slog.Any("error", err))
	}
}

// Root sends signed-in users to their dashboard and everyone else to sign in.
func (p *Pages) Root(w http.ResponseWriter, r *http.Request) {
	if principal := access.PrincipalFromContext(r.Context()); principal != nil {
		http.Redirect(w, r, access.DashboardFor(principal.Role), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
}

// Login shows the sign-in form.
func (p *Pages) Login(w http.ResponseWriter, r *http.Request) {
	if principal := access.PrincipalFromContext(r.Context()); principal != nil {
		http.Redirect(w, r, access.DashboardFor(principal.Role), http.StatusSeeOther)
		return
	}
	p.render(w, r, http.StatusOK, "pages/login.html", "Sign in", map[string]any{
		"From": r.URL.Query().Get(access.ResumeParam),
	})
}

// Dashboard renders a dashboard with the given heading.
func (p *Pages) Dashboard(heading string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.render(w, r, http.StatusOK, "pages/dashboard.html", heading, map[string]any{"Heading": heading})
	}
}

// Admin renders the account overview.
func (p *Pages) Admin(w http.ResponseWriter, r *http.Request) {
	list, err := p.Users.List(r.Context(), users.ListFilter{})
	if err != nil {
		p.Logger.Error("list users for admin page", slog.Any("error", err))
		p.render(w, r, http.StatusInternalServerError, "pages/admin.html", "Administration", nil)
		return
	}
	p.render(w, r, http.StatusOK, "pages/admin.html", "Administration", map[string]any{"Users": list})
}

// Settings renders account settings.
func (p *Pages) Settings(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/settings.html", "Settings", nil)
}

// VerifyPending tells an unverified user to check their inbox.
func (p *Pages) VerifyPending(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/verify_pending.html", "Verify your email", nil)
}

// Loading is shown while the identity cannot be resolved yet.
func (p *Pages) Loading(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/loading.html", "Loading", nil)
}

// VerifyLink redeems the token from a verification mail.
func (p *Pages) VerifyLink(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	principal := access.PrincipalFromContext(r.Context())

	user, err := p.Auth.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidToken) {
			p.Logger.Error("verify email link", slog.Any("error", err))
		}
		flash(sess, "error", "This verification link is invalid or has expired.")
		target := access.LoginPath
		if principal != nil {
			target = access.VerificationPendingPath
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	flash(sess, "success", "Your email address is verified.")
	target := access.LoginPath
	if principal != nil {
		target = access.DashboardFor(user.Role)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func flash(sess *shared.Session, kind, message string) {
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}
