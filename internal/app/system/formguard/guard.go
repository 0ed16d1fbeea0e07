// Package formguard refuses form submissions that do not carry a valid
// Cloudflare Turnstile token.
//
// The guard inspects every POST. A request counts as a submission when it
// posts a field starting with the submit prefix, or when it posts every
// login field. Submissions are verified against the siteverify endpoint;
// any failure (missing token, network error, rejection) refuses the
// submission and strips its sensitive fields before anything else sees it.
package formguard

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/formguard/internal/app/store/audit"
	"github.com/dalemusser/formguard/internal/app/system/auditlog"
	"github.com/dalemusser/formguard/internal/app/system/clientip"
	"github.com/dalemusser/formguard/internal/app/system/flash"
	"github.com/dalemusser/formguard/internal/app/system/ratelimit"
	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"github.com/dalemusser/formguard/internal/app/system/turnstile"
	"github.com/dalemusser/formguard/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FailureMode selects what happens to a refused non-AJAX submission.
type FailureMode string

const (
	// ModeRedirect sends the browser back to the page with the failure
	// marker and a flash message. The submission never reaches downstream.
	ModeRedirect FailureMode = "redirect"
	// ModeStrip forwards the stripped request and attaches the failure to
	// its context.
	ModeStrip FailureMode = "strip"
)

// DefaultFailureMessage is shown to users when verification fails.
const DefaultFailureMessage = "Captcha verification failed. Please try again."

// Config controls detection and failure handling.
type Config struct {
	TokenField       string
	SubmitPrefix     string
	LoginFields      []string
	LoginSubmitField string
	FailureMode      FailureMode
	FailureMarker    string
	FailureMessage   string
	MaxFormBytes     int64
}

// DefaultConfig matches the field names the storefront forms use.
func DefaultConfig() Config {
	return Config{
		TokenField:       "cf-turnstile-response",
		SubmitPrefix:     "submit",
		LoginFields:      []string{"email", "passwd"},
		LoginSubmitField: "submitLogin",
		FailureMode:      ModeRedirect,
		FailureMarker:    "turnstile-failure",
		FailureMessage:   DefaultFailureMessage,
		MaxFormBytes:     10 << 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TokenField == "" {
		c.TokenField = d.TokenField
	}
	if c.SubmitPrefix == "" {
		c.SubmitPrefix = d.SubmitPrefix
	}
	if c.LoginFields == nil {
		c.LoginFields = d.LoginFields
	}
	if c.LoginSubmitField == "" {
		c.LoginSubmitField = d.LoginSubmitField
	}
	if c.FailureMode == "" {
		c.FailureMode = d.FailureMode
	}
	if c.FailureMarker == "" {
		c.FailureMarker = d.FailureMarker
	}
	if c.FailureMessage == "" {
		c.FailureMessage = d.FailureMessage
	}
	if c.MaxFormBytes <= 0 {
		c.MaxFormBytes = d.MaxFormBytes
	}
	return c
}

// SettingsProvider returns the current Turnstile settings.
type SettingsProvider interface {
	Get(ctx context.Context) (models.TurnstileSettings, error)
}

// Guard verifies form submissions. Limiter, IP, Audit and Flash are
// optional; a nil Limiter disables per-IP limiting and a nil IP resolver
// uses the peer address.
type Guard struct {
	Settings SettingsProvider
	Verifier turnstile.Verifier
	Limiter  ratelimit.Checker
	IP       *clientip.Resolver
	Audit    *auditlog.Logger
	Flash    *flash.Store
	Log      *zap.Logger

	cfg Config
}

// New creates a Guard. Empty Config fields take their defaults.
func New(cfg Config, settings SettingsProvider, verifier turnstile.Verifier, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		Settings: settings,
		Verifier: verifier,
		Log:      logger,
		IP:       clientip.New(nil),
		cfg:      cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (g *Guard) Config() Config { return g.cfg }

// decision carries everything the middleware learned about one request.
type decision struct {
	outcome Outcome
	sub     Submission
	form    *postedForm
	ip      string
	id      string
	event   string
	reason  string
	codes   []string
}

// Check runs the verification decision for r and returns its outcome.
// A body that cannot be read is refused as FailedRejected.
func (g *Guard) Check(ctx context.Context, r *http.Request) Outcome {
	d, err := g.evaluate(ctx, r)
	if err != nil {
		return FailedRejected
	}
	return d.outcome
}

func (g *Guard) evaluate(ctx context.Context, r *http.Request) (decision, error) {
	if r.Method != http.MethodPost {
		return decision{outcome: Skipped}, nil
	}

	form, err := readForm(r, g.cfg.MaxFormBytes)
	if err != nil {
		return decision{}, err
	}
	d := decision{form: form, sub: g.cfg.Detect(form.values)}
	if !d.sub.IsSubmission() {
		d.outcome = Skipped
		return d, nil
	}

	sctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	settings, err := g.Settings.Get(sctx)
	cancel()
	if err != nil {
		g.Log.Error("turnstile settings unreadable; refusing submission", zap.Error(err))
		d.outcome = FailedMisconfigured
		d.event = audit.EventTurnstileSettingsUnreadable
		d.reason = "settings unreadable"
		return d, nil
	}
	if !settings.Enabled {
		d.outcome = Skipped
		return d, nil
	}

	d.ip = g.IP.IP(r)
	d.id = uuid.NewString()

	token := strings.TrimSpace(form.lookup(r, g.cfg.TokenField))
	if token == "" {
		d.outcome = FailedMissingToken
		d.reason = "missing token"
		return d, nil
	}

	if g.Limiter != nil && d.ip != "" {
		ok, err := g.Limiter.Allow(ctx, "turnstile:"+d.ip)
		if err != nil {
			g.Log.Warn("turnstile rate limiter error; continuing", zap.Error(err))
		} else if !ok {
			d.outcome = FailedRateLimited
			d.reason = "rate limit exceeded"
			return d, nil
		}
	}

	if !settings.Ready() {
		d.outcome = FailedMisconfigured
		d.reason = "site key or secret key not configured"
		return d, nil
	}

	vctx, vcancel := timeouts.WithTimeout(ctx, timeouts.Verify(), g.Log, "turnstile verify")
	res, err := g.Verifier.Verify(vctx, settings.SecretKey, token, d.ip)
	vcancel()
	switch {
	case errors.Is(err, turnstile.ErrMissingSecret):
		d.outcome = FailedMisconfigured
		d.reason = "no secret key configured"
	case errors.Is(err, turnstile.ErrRejected), err == nil && !res.Valid():
		d.outcome = FailedRejected
		d.codes = res.ErrorCodes
		d.reason = strings.Join(res.ErrorCodes, ",")
		if d.reason == "" {
			d.reason = "rejected"
		}
	case err != nil:
		d.outcome = FailedUnavailable
		d.reason = err.Error()
	default:
		d.outcome = Passed
	}
	return d, nil
}

// Middleware verifies submissions before they reach next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := g.evaluate(r.Context(), r)
		if err != nil {
			g.refuseUnreadable(w, r, err)
			return
		}

		switch {
		case d.outcome.Failed():
			g.fail(w, r, next, d)
		case d.outcome == Passed:
			g.record(r, d)
			next.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// Strip removes sensitive fields from r according to sub. Login
// submissions (and any form carrying every login field) lose the login
// fields and the login submit field; all other submissions lose every
// field.
func (g *Guard) Strip(r *http.Request, sub Submission) error {
	form, err := readForm(r, g.cfg.MaxFormBytes)
	if err != nil {
		return err
	}
	return g.strip(r, form, sub)
}

func (g *Guard) strip(r *http.Request, form *postedForm, sub Submission) error {
	if form == nil {
		return nil
	}
	login := sub.Kind == LoginSubmission ||
		(len(g.cfg.LoginFields) > 0 && hasAll(form.values, g.cfg.LoginFields))
	if !login {
		return form.rewrite(r, nil, true)
	}

	drop := make(map[string]bool, len(g.cfg.LoginFields)+1)
	for _, f := range g.cfg.LoginFields {
		drop[f] = true
	}
	drop[g.cfg.LoginSubmitField] = true
	return form.rewrite(r, drop, false)
}

func (g *Guard) record(r *http.Request, d decision) {
	event := d.event
	if event == "" {
		event = d.outcome.auditEvent()
	}
	details := map[string]string{
		"submission": d.sub.Kind.String(),
	}
	if d.id != "" {
		details["verification_id"] = d.id
	}
	if len(d.sub.Triggers) > 0 {
		details["trigger"] = strings.Join(d.sub.Triggers, ",")
	}
	ip := d.ip
	if ip == "" {
		ip = g.IP.IP(r)
	}
	g.Audit.Verification(r.Context(), r, ip, event, d.outcome == Passed, d.reason, details)
}
