// internal/app/features/logout/routes.go
package logout

import (
	"github.com/dalemusser/formguard/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		// Only a signed-in admin can sign out.
		pr.Use(sm.RequireAdmin)
		pr.Post("/", h.HandleLogout)
	})

	return r
}
