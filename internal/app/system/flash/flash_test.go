package flash_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/formguard/internal/app/system/flash"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestSetThenPop(t *testing.T) {
	s, err := flash.New(testKey, "", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := s.Set(rec, "Captcha verification failed. Please try again."); err != nil {
		t.Fatalf("Set: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/contact?turnstile-failure=1", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	rec2 := httptest.NewRecorder()
	got := s.Pop(rec2, req)
	if got != "Captcha verification failed. Please try again." {
		t.Errorf("Pop: got %q", got)
	}

	cleared := false
	for _, c := range rec2.Result().Cookies() {
		if c.Name == flash.DefaultCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected Pop to expire the cookie")
	}
}

func TestPop_TamperedCookie(t *testing.T) {
	s, _ := flash.New(testKey, "f", false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "f", Value: "not-a-signed-value"})

	if got := s.Pop(httptest.NewRecorder(), req); got != "" {
		t.Errorf("expected empty message for tampered cookie, got %q", got)
	}
}

func TestPop_NoCookie(t *testing.T) {
	s, _ := flash.New(testKey, "", false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := s.Pop(httptest.NewRecorder(), req); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestSet_TruncatesLongMessage(t *testing.T) {
	s, _ := flash.New(testKey, "", false)
	rec := httptest.NewRecorder()
	if err := s.Set(rec, strings.Repeat("x", 2000)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	if got := s.Pop(httptest.NewRecorder(), req); len(got) != 512 {
		t.Errorf("len: got %d, want 512", len(got))
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := flash.New(nil, "", false); err == nil {
		t.Error("expected error for empty key")
	}
}
