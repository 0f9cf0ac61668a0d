package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/activity"
	"github.com/civicconnect/civic/internal/credential"
	"github.com/civicconnect/civic/internal/platform/httpx"
	"github.com/civicconnect/civic/internal/rbac"
	"github.com/civicconnect/civic/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	guard          rbac.Middleware
	validator      *validator.Validate
	now            func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		guard:          guard,
		validator:      validator.New(validator.WithRequiredStructEnabled()),
		now:            time.Now,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrfToken)
	r.Get("/verify", h.verifyEmail)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})
	r.Post("/logout", h.logout)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated())
		r.Get("/me", h.me)
		r.Post("/verify/resend", h.resendVerification)
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=citizen user representative organization"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	From     string `json:"from"`
}

type sessionResponse struct {
	Principal *access.Principal `json:"principal"`
	Redirect  string            `json:"redirect,omitempty"`
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.Message(w, http.StatusInternalServerError, "Session unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.FieldErrors(w, "Validation failed", fields)
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		httpx.FieldErrors(w, "Validation failed", map[string]string{"role": "unknown role"})
		return
	}

	user, err := h.service.Register(r.Context(), Registration{Email: req.Email, Name: req.Name, Password: req.Password, Role: role})
	switch {
	case err == nil:
	case errors.Is(err, credential.ErrWeakPassword):
		httpx.FieldErrors(w, "Password too weak", map[string]string{"password": strings.Join(credential.Violations(err), "; ")})
		return
	case errors.Is(err, ErrRegistration):
		httpx.FieldErrors(w, "Validation failed", map[string]string{"role": "role not allowed"})
		return
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Message(w, http.StatusConflict, "An account with this email already exists")
		return
	default:
		h.logger.Error("register", slog.Any("error", err))
		httpx.Message(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	h.signIn(r, user)
	httpx.JSON(w, http.StatusCreated, sessionResponse{Principal: user.Principal(), Redirect: access.DashboardFor(user.Role)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.FieldErrors(w, "Validation failed", fields)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Message(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.Message(w, http.StatusInternalServerError, "Login failed")
		return
	}

	h.signIn(r, user)
	redirect := access.DashboardFor(user.Role)
	if safeResume(req.From) {
		redirect = req.From
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Principal: user.Principal(), Redirect: redirect})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if sess.User() != "" {
			if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, sessionResponse{Principal: access.PrincipalFromContext(r.Context())})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, shared.ErrInvalidToken) {
			httpx.Message(w, http.StatusBadRequest, "Verification link is invalid or expired")
			return
		}
		h.logger.Error("verify email", slog.Any("error", err))
		httpx.Message(w, http.StatusInternalServerError, "Verification failed")
		return
	}
	h.logger.Info("email verified", slog.Int64("user_id", user.ID))
	httpx.Message(w, http.StatusOK, "Email verified")
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	principal := access.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(principal.ID, 10, 64)
	if err != nil {
		httpx.Message(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	user, err := h.service.FindUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SendVerification(r.Context(), user); err != nil {
		if errors.Is(err, ErrAlreadyVerified) {
			httpx.Message(w, http.StatusConflict, "Email already verified")
			return
		}
		h.logger.Error("resend verification", slog.Any("error", err))
		httpx.Message(w, http.StatusServiceUnavailable, "Could not send verification mail")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) signIn(r *http.Request, user *User) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during sign-in")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	activity.SessionStore{Session: sess}.Touch(h.now())
	expiresAt := h.now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
}

func (h *Handler) validate(v any) map[string]string {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"general": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return fields
}

// safeResume accepts only same-origin absolute paths. Browsers drop tabs and
// newlines and read a backslash as a slash, so any of those is rejected outright.
func safeResume(from string) bool {
	if from == "" || strings.ContainsRune(from, '\\') || strings.IndexFunc(from, unicode.IsControl) >= 0 {
		return false
	}
	u, err := url.Parse(from)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/") &&
		!strings.HasPrefix(u.Path, "//") &&
		!strings.HasPrefix(from, access.LoginPath)
}
