package logout_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/formguard/internal/app/features/logout"
	"github.com/dalemusser/formguard/internal/app/system/auth"
	"go.uber.org/zap"
)

func newSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sessionMgr, err := auth.NewSessionManager("test-session-key-for-testing-only", "test-session", "", 24*time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	return sessionMgr
}

func newTestHandler(t *testing.T) *logout.Handler {
	t.Helper()
	// nil audit logger and resolver are accepted
	return logout.NewHandler(newSessionManager(t), nil, nil, zap.NewNop())
}

func TestHandleLogout_RedirectsToLogin(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/logout", nil)
	rec := httptest.NewRecorder()

	handler.HandleLogout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	if location := rec.Header().Get("Location"); location != auth.LoginPath {
		t.Errorf("Location: got %q, want %q", location, auth.LoginPath)
	}
}

func TestHandleLogout_HTMX_ReturnsHXRedirect(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/logout", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	handler.HandleLogout(rec, req)

	if hx := rec.Header().Get("HX-Redirect"); hx != auth.LoginPath {
		t.Errorf("HX-Redirect: got %q, want %q", hx, auth.LoginPath)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d for HTMX, got %d", http.StatusOK, rec.Code)
	}
}

func TestHandleLogout_ClearsExistingSession(t *testing.T) {
	sessionMgr := newSessionManager(t)
	handler := logout.NewHandler(sessionMgr, nil, nil, zap.NewNop())

	// Sign in first to obtain a session cookie.
	rec1 := httptest.NewRecorder()
	if err := sessionMgr.Login(rec1, httptest.NewRequest(http.MethodPost, "/admin/login", nil), "admin"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/admin/logout", nil)
	for _, c := range rec1.Result().Cookies() {
		req2.AddCookie(c)
	}
	rec2 := httptest.NewRecorder()
	sessionMgr.LoadSession(http.HandlerFunc(handler.HandleLogout)).ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusSeeOther {
		t.Errorf("expected status %d, got %d", http.StatusSeeOther, rec2.Code)
	}

	found := false
	for _, c := range rec2.Result().Cookies() {
		if c.Name == "test-session" {
			found = true
			if c.MaxAge != -1 {
				t.Errorf("cookie MaxAge after logout: got %d, want -1", c.MaxAge)
			}
		}
	}
	if !found {
		t.Error("expected session cookie to be set for deletion")
	}
}

func TestRoutes_RequireAdmin(t *testing.T) {
	sessionMgr := newSessionManager(t)
	handler := logout.NewHandler(sessionMgr, nil, nil, zap.NewNop())
	r := logout.Routes(handler, sessionMgr)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
