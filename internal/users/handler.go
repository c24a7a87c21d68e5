package users

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Handler wires HTTP endpoints for the identity service.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   authz.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, service: service, guard: authz.Middleware{Logger: logger}}
}

// MountRoutes registers /api/auth and /api/users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/register", h.register)
		r.Group(func(r chi.Router) {
			r.Use(h.guard.Authenticated())
			r.Post("/logout", h.logout)
			r.Post("/password", h.changePassword)
			r.Get("/me", h.me)
		})
	})
	r.Route("/api/users", func(r chi.Router) {
		r.With(h.guard.RequireRoles(authz.Elevated()...)).Get("/", h.list)
		r.With(h.guard.RequireRoles(principal.RoleAdmin)).Post("/", h.createStaff)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type staffRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required"`
}

type refreshRequest struct {
	Token string `json:"token" validate:"required"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *View     `json:"user,omitempty"`
}

func newTokenResponse(cred credential.Credential, user *User) tokenResponse {
	resp := tokenResponse{Token: cred.Token, ExpiresAt: cred.Claims.ExpiresAt}
	if user != nil {
		view := user.View()
		resp.User = &view
	}
	return resp
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cred, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	h.logger.Info("login", slog.String("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, newTokenResponse(cred, &user))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cred, err := h.service.Refresh(r.Context(), req.Token)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTokenResponse(cred, nil))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user.View())
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r.Header)
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, httpx.MessageMissingCredential)
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, _ := httpx.BearerToken(r.Header)
	cred, err := h.service.ChangePassword(r.Context(), trust.FromContext(r.Context()), token, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.fail(w, r, "change password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTokenResponse(cred, nil))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), trust.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user.View())
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context(), trust.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}
	views := make([]View, len(users))
	for i, user := range users {
		views[i] = user.View()
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateStaff(r.Context(), trust.FromContext(r.Context()), req.Email, req.Password, req.Role)
	if err != nil {
		h.fail(w, r, "create staff", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user.View())
}

// fail maps service errors. Credential problems keep their specific 401
// messages; everything else goes through the shared mapping.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Error(w, http.StatusUnauthorized, httpx.MessageInvalidCredentials)
		return
	case credential.KindOf(err) != 0:
		h.logger.Info(op+" rejected credential", slog.String("kind", credential.KindOf(err).String()))
		httpx.Error(w, http.StatusUnauthorized, httpx.MessageInvalidToken)
		return
	}
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrConflict) &&
		!errors.Is(err, httpx.ErrForbidden) && !errors.Is(err, httpx.ErrUnauthorized) {
		h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
