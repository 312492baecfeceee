// Package httpapi exposes the reconciliation operations over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/recon/internal/registry"
)

// Handler serves the operation surface of a registry.
type Handler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewHandler returns a Handler over reg.
func NewHandler(reg *registry.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: reg, logger: logger}
}

// NewRouter mounts every route of h.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })

	r.Route("/v1/modules", func(r chi.Router) {
		r.Get("/", h.listModules)
		r.Route("/{module}", func(r chi.Router) {
			r.Get("/fields", h.getFields)
			r.Post("/check", h.checkOne)
			r.Post("/fix", h.fixOne)
			r.Post("/check/batch", h.checkMany)
			r.Post("/fix/batch", h.fixMany)
			r.Post("/check/all", h.checkAll)
			r.Post("/fix/all", h.fixAll)
			r.Post("/check/range", h.checkRange)
			r.Post("/fix/range", h.fixRange)
		})
	})
	return r
}
