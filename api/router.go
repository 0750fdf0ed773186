// Package api exposes the HTTP surface: account creation and lookup, plus a
// token-guarded operator view of the dispatcher.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires all routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/accounts", h.createAccount)
	r.Get("/api/accounts/{userID}", h.getAccount)
	r.Post("/api/auth/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.requireOperator)
		r.Get("/api/admin/stats", h.dispatcherStats)
	})

	return r
}
