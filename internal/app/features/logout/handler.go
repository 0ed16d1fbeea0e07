// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/dalemusser/formguard/internal/app/system/auditlog"
	"github.com/dalemusser/formguard/internal/app/system/auth"
	"github.com/dalemusser/formguard/internal/app/system/clientip"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Audit      *auditlog.Logger
	IP         *clientip.Resolver
}

func NewHandler(sessionMgr *auth.SessionManager, auditLog *auditlog.Logger, ip *clientip.Resolver, logger *zap.Logger) *Handler {
	if ip == nil {
		ip = clientip.New(nil)
	}
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Audit:      auditLog,
		IP:         ip,
	}
}

// HandleLogout handles POST /admin/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	name := ""
	if a, ok := auth.CurrentAdmin(r); ok {
		name = a.Name
	}

	// The cookie is expired even when the old session could not be decoded.
	if err := h.SessionMgr.Logout(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}
	h.Audit.Logout(r.Context(), r, h.IP.IP(r), name)

	// HTMX handling: use HX-Redirect to force a client-side navigation.
	if r.Header.Get("HX-Request") != "" {
		w.Header().Set("HX-Redirect", auth.LoginPath)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}
