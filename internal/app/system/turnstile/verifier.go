// Package turnstile talks to the Cloudflare Turnstile siteverify endpoint.
package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultEndpoint is the Cloudflare siteverify URL.
const DefaultEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// DefaultTimeout bounds a single verification call.
const DefaultTimeout = 10 * time.Second

var (
	// ErrMissingToken is returned when the client submitted no token.
	ErrMissingToken = errors.New("turnstile token missing")
	// ErrMissingSecret is returned when no secret key is configured.
	ErrMissingSecret = errors.New("turnstile secret key not configured")
	// ErrUnavailable wraps transport, status and decode failures.
	ErrUnavailable = errors.New("turnstile verification unavailable")
	// ErrRejected is returned when the endpoint answered success=false.
	ErrRejected = errors.New("turnstile verification rejected")
)

// Verifier verifies a Turnstile token on behalf of a site.
type Verifier interface {
	// Verify checks token with the verification endpoint using secret.
	// remoteIP may be empty. A token the endpoint refused comes back as
	// ErrRejected together with the decoded Result, so its error codes
	// stay available.
	Verify(ctx context.Context, secret, token, remoteIP string) (Result, error)
}

// Result is the decoded siteverify response.
type Result struct {
	Success     bool      `json:"success"`
	ErrorCodes  []string  `json:"error-codes"`
	ChallengeTS time.Time `json:"challenge_ts"` // zero on failure
	Hostname    string    `json:"hostname"`
	Action      string    `json:"action"`
	CData       string    `json:"cdata"`
}

// UnmarshalJSON decodes a siteverify body. A missing or malformed
// challenge_ts leaves ChallengeTS zero instead of failing the decode.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	var raw struct {
		plain
		ChallengeTS string `json:"challenge_ts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result(raw.plain)
	if ts, err := time.Parse(time.RFC3339Nano, raw.ChallengeTS); err == nil {
		r.ChallengeTS = ts
	}
	return nil
}

// Valid reports whether the token was accepted.
func (r Result) Valid() bool {
	return r.Success
}
