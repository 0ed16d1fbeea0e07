// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// Routes serves /admin/login. It must be mounted outside RequireAdmin.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeLogin)
	r.Post("/", h.HandleLoginPost)
	return r
}
