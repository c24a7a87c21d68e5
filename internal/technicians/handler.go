package technicians

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Handler wires HTTP endpoints for the roster.
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

// MountRoutes registers /api/technicians.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/technicians", func(r chi.Router) {
		r.Use(h.guard.Authenticated())
		r.Get("/", h.list)
		r.With(h.guard.RequireRoles(authz.Elevated()...)).Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}/availability", h.setAvailability)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context(), trust.FromContext(r.Context()), r.URL.Query().Get("available") == "true")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Create(r.Context(), trust.FromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("technician rostered", slog.String("technician_id", t.ID), slog.String("user_id", t.UserID))
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), trust.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) setAvailability(w http.ResponseWriter, r *http.Request) {
	var in AvailabilityInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.SetAvailability(r.Context(), trust.FromContext(r.Context()), chi.URLParam(r, "id"), *in.Available)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}
