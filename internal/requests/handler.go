package requests

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/resilience"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Handler wires HTTP endpoints for service requests.
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

// MountRoutes registers /api/requests.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/requests", func(r chi.Router) {
		r.Use(h.guard.Authenticated())
		r.Get("/", h.list)
		r.With(h.guard.RequireRoles(principal.RoleCustomer)).Post("/", h.create)
		r.With(h.guard.RequireRoles(principal.RoleAdmin)).Get("/breakers", h.breakers)
		r.Get("/{id}", h.get)
		r.Get("/{id}/detail", h.detail)
		r.With(h.guard.RequireRoles(authz.Elevated()...)).Post("/{id}/assign", h.assign)
		r.Put("/{id}/status", h.updateStatus)
	})
}

type breakerView struct {
	Target              string     `json:"target"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastProbeAt         *time.Time `json:"lastProbeAt,omitempty"`
}

func newBreakerView(s resilience.Snapshot) breakerView {
	view := breakerView{Target: s.Target, State: s.State.String(), ConsecutiveFailures: s.ConsecutiveFailures}
	if !s.LastFailureAt.IsZero() {
		at := s.LastFailureAt
		view.LastFailureAt = &at
	}
	if !s.LastProbeAt.IsZero() {
		at := s.LastProbeAt
		view.LastProbeAt = &at
	}
	return view
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context(), trust.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "list requests", err)
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
	req, err := h.service.Create(r.Context(), trust.FromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, "create request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) breakers(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.Breakers(trust.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "breakers", err)
		return
	}
	views := make([]breakerView, len(snapshots))
	for i, s := range snapshots {
		views[i] = newBreakerView(s)
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), trust.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Detail(r.Context(), trust.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "request detail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var in AssignInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Assign(r.Context(), trust.FromContext(r.Context()), chi.URLParam(r, "id"), in.TechnicianID)
	if err != nil {
		h.fail(w, r, "assign request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in StatusInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.UpdateStatus(r.Context(), trust.FromContext(r.Context()), chi.URLParam(r, "id"), in.Status)
	if err != nil {
		h.fail(w, r, "update status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, resilience.ErrUpstreamUnavailable):
		h.logger.Warn(op+" degraded", slog.String("path", r.URL.Path), slog.Any("error", err))
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrConflict),
		errors.Is(err, httpx.ErrForbidden), errors.Is(err, httpx.ErrUnauthorized):
	default:
		h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
