package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/civicconnect/civic/internal/access"
	"github.com/civicconnect/civic/internal/platform/httpx"
	"github.com/civicconnect/civic/internal/rbac"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes. Every route is admin only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(access.RoleAdmin))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Put("/{id}/role", h.changeRole)
		r.Post("/{id}/verify", h.approveVerification)
		r.Post("/{id}/deactivate", h.setActive(false))
		r.Post("/{id}/activate", h.setActive(true))
	})
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=citizen representative organization admin"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	if raw := q.Get("role"); raw != "" {
		role, err := access.ParseRole(raw)
		if err != nil {
			httpx.Message(w, http.StatusBadRequest, "Unknown role filter")
			return
		}
		filter.Role = role
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	users, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.FieldErrors(w, "Validation failed", map[string]string{"role": "must be one of citizen, representative, organization, admin"})
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		httpx.FieldErrors(w, "Validation failed", map[string]string{"role": err.Error()})
		return
	}
	user, err := h.service.ChangeRole(r.Context(), actorID(r), id, role)
	h.respondUser(w, user, err)
}

func (h *Handler) approveVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.ApproveVerification(r.Context(), actorID(r), id)
	h.respondUser(w, user, err)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		user, err := h.service.SetActive(r.Context(), actorID(r), id, active)
		h.respondUser(w, user, err)
	}
}

func (h *Handler) respondUser(w http.ResponseWriter, user *User, err error) {
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, user)
	case errors.Is(err, ErrSelfModification):
		httpx.Message(w, http.StatusConflict, "You cannot demote or deactivate your own account")
	default:
		if !errors.Is(err, httpx.ErrNotFound) {
			h.logger.Error("update user failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Message(w, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	p := access.PrincipalFromContext(r.Context())
	if p == nil {
		return 0
	}
	id, _ := strconv.ParseInt(p.ID, 10, 64)
	return id
}
