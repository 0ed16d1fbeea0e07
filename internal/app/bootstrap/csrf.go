// internal/app/bootstrap/csrf.go
package bootstrap

import (
	"crypto/sha256"
	"io"
	"net/http"

	"github.com/dalemusser/formguard/internal/app/system/viewdata"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

const csrfCookieName = "formguard_csrf"

// csrfKey derives the 32-byte CSRF cookie key from the session key so
// the two cookies never share key material.
func csrfKey(sessionKey string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(sessionKey), nil, []byte("formguard csrf"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// csrfProtect requires a valid token on every unsafe admin request.
// Outside production the requests are marked plaintext so the Referer
// check does not insist on https.
func (s *server) csrfProtect() func(http.Handler) http.Handler {
	protect := csrf.Protect(s.csrfKey,
		csrf.Secure(s.secure),
		csrf.Path("/admin"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.CookieName(csrfCookieName),
		csrf.FieldName(viewdata.CSRFField),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailure)),
	)
	return func(next http.Handler) http.Handler {
		h := protect(next)
		if s.secure {
			return h
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

func (s *server) csrfFailure(w http.ResponseWriter, r *http.Request) {
	s.log.Warn("admin request failed CSRF check",
		zap.String("path", r.URL.Path),
		zap.String("ip", s.ip.IP(r)),
		zap.Error(csrf.FailureReason(r)))
	http.Error(w, "Forbidden - the form expired, reload the page and try again", http.StatusForbidden)
}
