// internal/app/features/settings/routes.go
package settings

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes mounts all settings routes on the given router.
// The caller applies admin authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/admin", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/settings", http.StatusSeeOther)
	})
	r.Get("/admin/settings", h.ServeSettings)
	r.Post("/admin/settings", h.HandleSettings)
	r.Get("/admin/settings.json", h.ServeSettingsJSON)
	r.Get("/admin/events", h.ServeEvents)
}
