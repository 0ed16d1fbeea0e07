// internal/app/features/login/handler.go
package login

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/formguard/internal/app/system/auditlog"
	"github.com/dalemusser/formguard/internal/app/system/auth"
	"github.com/dalemusser/formguard/internal/app/system/clientip"
	"github.com/dalemusser/formguard/internal/app/system/ratelimit"
	"github.com/dalemusser/formguard/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

// SubmitField names the login button.
const SubmitField = "submitAdminLogin"

const invalidCredentials = "Invalid name or password."

// Credentials is the single admin identity.
type Credentials struct {
	Name         string
	PasswordHash string // bcrypt
}

type Handler struct {
	SessionMgr *auth.SessionManager
	Limiter    *ratelimit.LoginLimiter
	Audit      *auditlog.Logger
	IP         *clientip.Resolver
	Admin      Credentials
	Log        *zap.Logger
}

func NewHandler(sm *auth.SessionManager, limiter *ratelimit.LoginLimiter, auditLog *auditlog.Logger, ip *clientip.Resolver, admin Credentials, logger *zap.Logger) *Handler {
	if limiter == nil {
		limiter = ratelimit.NewLoginLimiter()
	}
	if ip == nil {
		ip = clientip.New(nil)
	}
	return &Handler{
		SessionMgr: sm,
		Limiter:    limiter,
		Audit:      auditLog,
		IP:         ip,
		Admin:      admin,
		Log:        logger,
	}
}

type loginVM struct {
	viewdata.BaseVM
	Name        string
	Return      string
	SubmitField string
	Error       string
}

// ServeLogin handles GET /admin/login.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.CurrentAdmin(r); ok {
		http.Redirect(w, r, auth.SafeReturn(r.URL.Query().Get("return"), "/admin/settings"), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "", "")
}

// HandleLoginPost handles POST /admin/login. The page is not Turnstile
// guarded; the per-IP and per-name limits stand in for it.
func (h *Handler) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "", "Invalid form data.")
		return
	}

	name := strings.TrimSpace(r.PostFormValue("name"))
	password := r.PostFormValue("password")
	ip := h.IP.IP(r)

	if ok, reason := h.Limiter.Check(r.Context(), ip, name); !ok {
		h.Log.Warn("admin login rate limited", zap.String("ip", ip))
		h.Audit.LoginFailedRateLimit(r.Context(), r, ip, name)
		h.render(w, r, http.StatusTooManyRequests, name, reason)
		return
	}

	if !h.matches(name, password) {
		h.Log.Info("admin login failed", zap.String("ip", ip))
		h.Audit.LoginFailedWrongPassword(r.Context(), r, ip, name)
		h.render(w, r, http.StatusUnauthorized, name, invalidCredentials)
		return
	}

	if err := h.SessionMgr.Login(w, r, h.Admin.Name); err != nil {
		h.Log.Error("save admin session", zap.Error(err))
		h.render(w, r, http.StatusInternalServerError, name, "Could not start a session. Please try again.")
		return
	}
	h.Limiter.ResetName(r.Context(), name)
	h.Audit.LoginSuccess(r.Context(), r, ip, h.Admin.Name)

	http.Redirect(w, r, auth.SafeReturn(r.PostFormValue("return"), "/admin/settings"), http.StatusSeeOther)
}

// matches compares both fields; the bcrypt check runs even when the name
// is wrong.
func (h *Handler) matches(name, password string) bool {
	nameOK := subtle.ConstantTimeCompare([]byte(name), []byte(h.Admin.Name)) == 1
	passOK := auth.VerifyPassword(h.Admin.PasswordHash, password)
	return nameOK && passOK && h.Admin.Name != ""
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, msg string) {
	base := viewdata.NewBaseVM(r, "Admin sign in", "/")
	ret := r.URL.Query().Get("return")
	if r.Method == http.MethodPost {
		ret = r.PostFormValue("return")
	}

	w.Header().Set("Cache-Control", "no-store")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	templates.Render(w, r, "admin_login", loginVM{
		BaseVM:      base,
		Name:        name,
		Return:      auth.SafeReturn(ret, ""),
		SubmitField: SubmitField,
		Error:       msg,
	})
}
