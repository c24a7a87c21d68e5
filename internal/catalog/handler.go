package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Handler wires HTTP endpoints for the catalog.
type Handler struct {
	logger *slog.Logger
	store  *Store
	guard  authz.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, store: store, guard: authz.Middleware{Logger: logger}}
}

// MountRoutes registers /api/catalog.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/catalog", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.With(h.guard.RequireRoles(principal.RoleAdmin)).Post("/", h.create)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.store.List(r.Context()))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in ItemInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.store.Create(r.Context(), trust.FromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("catalog item created", slog.String("item_id", item.ID))
	httpx.JSON(w, http.StatusCreated, item)
}
