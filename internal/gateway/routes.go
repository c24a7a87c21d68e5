package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
)

// Mount registers the gated proxy under /api.
func Mount(r chi.Router, gate *Gate, proxy *Proxy) {
	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		r.Handle("/api", proxy)
		r.Handle("/api/*", proxy)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusNotFound, httpx.ErrNotFound.Error())
	})
}
