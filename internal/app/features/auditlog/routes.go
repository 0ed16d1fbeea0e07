// internal/app/features/auditlog/routes.go
package auditlog

import "github.com/go-chi/chi/v5"

// MountRoutes mounts the audit log page on the given router.
// The caller applies admin authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/admin/audit", h.ServeList)
}
