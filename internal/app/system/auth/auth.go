// Package auth manages the admin session.
//
// formguard has a single admin identity whose bcrypt hash comes from
// configuration. A signed gorilla/sessions cookie records the login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	isAuthKey  = "is_authenticated"
	adminKey   = "admin_name"
	loggedInAt = "logged_in_at"
)

// LoginPath is where unauthenticated admin requests are sent.
const LoginPath = "/admin/login"

// SessionAdmin is what we cache in the session & inject into r.Context().
type SessionAdmin struct {
	Name       string
	LoggedInAt time.Time
}

type ctxKey string

const currentAdminKey ctxKey = "currentAdmin"

// SessionManager wraps the cookie store used for admin sessions.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds the cookie store. The secure flag controls the
// Secure attribute and SameSite mode; use false for local http.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = "formguard-session"
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		opts.SameSite = http.SameSiteStrictMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// GetSession returns the admin session. On a decode error a fresh session
// is returned together with the error.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// Login marks the session as authenticated for name.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, name string) error {
	sess, err := sm.GetSession(r)
	if err != nil {
		sm.log.Debug("discarding undecodable session on login", zap.Error(err))
	}
	sess.Values[isAuthKey] = true
	sess.Values[adminKey] = name
	sess.Values[loggedInAt] = time.Now().UTC().Unix()
	return sess.Save(r, w)
}

// Logout expires the session cookie.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, err := sm.GetSession(r)
	if err != nil {
		sm.log.Warn("session decode failed during logout", zap.Error(err))
	}
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// CurrentAdmin returns the admin & "found?" flag.
func CurrentAdmin(r *http.Request) (*SessionAdmin, bool) {
	a, ok := r.Context().Value(currentAdminKey).(*SessionAdmin)
	return a, ok
}

// LoadSession injects the admin into context if logged in.
func (sm *SessionManager) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.GetSession(r)
		if err == nil {
			if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
				a := &SessionAdmin{Name: getString(sess, adminKey)}
				if ts, ok := sess.Values[loggedInAt].(int64); ok {
					a.LoggedInAt = time.Unix(ts, 0).UTC()
				}
				r = withAdmin(r, a)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin ensures an admin is in context (set by LoadSession).
// If not signed in:
//   - HTML: 303 redirect to the login page with a return parameter.
//   - API:  401 Unauthorized with a plain error body.
func (sm *SessionManager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentAdmin(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		if wantsHTML(r) {
			http.Redirect(w, r, LoginPath+"?return="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// ErrBadHash is returned for a configured hash bcrypt cannot read.
var ErrBadHash = errors.New("admin password hash is not a bcrypt hash")

// CheckPasswordHash validates that hash is usable.
func CheckPasswordHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadHash, err)
	}
	return nil
}

// VerifyPassword compares password with the admin bcrypt hash.
func VerifyPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SafeReturn returns ret when it is a local path, otherwise fallback.
func SafeReturn(ret, fallback string) string {
	if ret == "" || !strings.HasPrefix(ret, "/") || strings.HasPrefix(ret, "//") || strings.HasPrefix(ret, `/\`) {
		return fallback
	}
	return ret
}

// WithTestAdmin injects an admin into the request context. Tests only.
func WithTestAdmin(r *http.Request, name string) *http.Request {
	return withAdmin(r, &SessionAdmin{Name: name, LoggedInAt: time.Now().UTC()})
}

func withAdmin(r *http.Request, a *SessionAdmin) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentAdminKey, a))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
