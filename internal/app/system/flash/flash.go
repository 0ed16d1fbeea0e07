// Package flash carries a one-shot message across a redirect in a signed
// cookie. The form guard uses it to show the verification failure on the
// page the browser lands on.
package flash

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// DefaultCookieName is used when New is given an empty name.
const DefaultCookieName = "formguard_flash"

// maxMessageLen bounds what is written into the cookie.
const maxMessageLen = 512

// Store reads and writes flash messages.
type Store struct {
	sc     *securecookie.SecureCookie
	name   string
	secure bool
}

// New returns a Store signing cookies with hashKey. hashKey should be at
// least 32 bytes; the session key is a good source.
func New(hashKey []byte, name string, secure bool) (*Store, error) {
	if len(hashKey) == 0 {
		return nil, errors.New("flash: empty hash key")
	}
	if name == "" {
		name = DefaultCookieName
	}
	sc := securecookie.New(hashKey, nil)
	sc.MaxAge(int((5 * time.Minute).Seconds()))
	return &Store{sc: sc, name: name, secure: secure}, nil
}

// Set stores msg for the next request.
func (s *Store) Set(w http.ResponseWriter, msg string) error {
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}
	encoded, err := s.sc.Encode(s.name, msg)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Pop returns the pending message and clears the cookie. A missing or
// tampered cookie yields "".
func (s *Store) Pop(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(s.name)
	if err != nil {
		return ""
	}
	s.clear(w)

	var msg string
	if err := s.sc.Decode(s.name, c.Value, &msg); err != nil {
		return ""
	}
	return msg
}

func (s *Store) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
