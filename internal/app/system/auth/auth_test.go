package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/formguard/internal/app/system/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(
		"test-session-key-must-be-32-chars-long",
		"test-session",
		"",
		24*time.Hour,
		false,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm
}

func protected() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("protected content"))
	})
}

func TestNewSessionManager_EmptyKey(t *testing.T) {
	if _, err := auth.NewSessionManager("", "s", "", time.Hour, false, zap.NewNop()); err == nil {
		t.Error("expected error for empty session key")
	}
}

func TestRequireAdmin_NoSession_RedirectsToLogin(t *testing.T) {
	sm := newTestSessionManager(t)
	handler := sm.LoadSession(sm.RequireAdmin(protected()))

	req := httptest.NewRequest("GET", "/admin/settings?tab=keys", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	want := "/admin/login?return=%2Fadmin%2Fsettings%3Ftab%3Dkeys"
	if got := rec.Header().Get("Location"); got != want {
		t.Errorf("Location: got %q, want %q", got, want)
	}
}

func TestRequireAdmin_NoSession_APIGets401(t *testing.T) {
	sm := newTestSessionManager(t)
	handler := sm.LoadSession(sm.RequireAdmin(protected()))

	req := httptest.NewRequest("GET", "/admin/settings.json", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_ThenRequireAdminPasses(t *testing.T) {
	sm := newTestSessionManager(t)

	loginRec := httptest.NewRecorder()
	if err := sm.Login(loginRec, httptest.NewRequest("POST", "/admin/login", nil), "admin"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var seen string
	handler := sm.LoadSession(sm.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, _ := auth.CurrentAdmin(r)
		seen = a.Name
	})))

	req := httptest.NewRequest("GET", "/admin/settings", nil)
	for _, c := range loginRec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != "admin" {
		t.Errorf("admin name: got %q", seen)
	}
}

func TestLogout_ExpiresCookie(t *testing.T) {
	sm := newTestSessionManager(t)
	rec := httptest.NewRecorder()
	if err := sm.Logout(rec, httptest.NewRequest("POST", "/admin/logout", nil)); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test-session" {
			found = true
			if c.MaxAge >= 0 {
				t.Errorf("cookie MaxAge: got %d, want negative", c.MaxAge)
			}
		}
	}
	if !found {
		t.Error("expected session cookie to be set for deletion")
	}
}

func TestLoadSession_TamperedCookieIgnored(t *testing.T) {
	sm := newTestSessionManager(t)
	handler := sm.LoadSession(sm.RequireAdmin(protected()))

	req := httptest.NewRequest("GET", "/admin/settings", nil)
	req.AddCookie(&http.Cookie{Name: "test-session", Value: "forged"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for forged cookie, got %d", rec.Code)
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if !auth.VerifyPassword(string(hash), "correct horse") {
		t.Error("expected correct password to verify")
	}
	if auth.VerifyPassword(string(hash), "wrong") {
		t.Error("expected wrong password to fail")
	}
	if auth.VerifyPassword("", "correct horse") {
		t.Error("expected empty hash to fail")
	}
	if err := auth.CheckPasswordHash(string(hash)); err != nil {
		t.Errorf("CheckPasswordHash: %v", err)
	}
	if err := auth.CheckPasswordHash("plaintext"); err == nil {
		t.Error("expected error for non-bcrypt hash")
	}
}

func TestSafeReturn(t *testing.T) {
	cases := map[string]string{
		"":                     "/admin/settings",
		"/admin/events":        "/admin/events",
		"//evil.example":       "/admin/settings",
		"https://evil.example": "/admin/settings",
		`/\evil.example`:       "/admin/settings",
	}
	for in, want := range cases {
		if got := auth.SafeReturn(in, "/admin/settings"); got != want {
			t.Errorf("SafeReturn(%q): got %q, want %q", in, got, want)
		}
	}
}
