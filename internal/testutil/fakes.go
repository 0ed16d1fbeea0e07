package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dalemusser/formguard/internal/app/system/turnstile"
	"github.com/dalemusser/formguard/internal/domain/models"
)

// FakeVerifier is a test-only implementation of turnstile.Verifier.
type FakeVerifier struct {
	// ShouldSucceed controls the verification outcome.
	ShouldSucceed bool
	// Err, when set, is returned instead of a result.
	Err error
	// ErrorCodes are reported on a rejection.
	ErrorCodes []string
	// ExpectedToken can be used to assert that a specific token was passed.
	ExpectedToken string

	mu    sync.Mutex
	calls []VerifyCall
}

// VerifyCall records the arguments of one Verify call.
type VerifyCall struct {
	Secret   string
	Token    string
	RemoteIP string
}

// Verify implements turnstile.Verifier for tests.
func (f *FakeVerifier) Verify(ctx context.Context, secret, token, remoteIP string) (turnstile.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, VerifyCall{Secret: secret, Token: token, RemoteIP: remoteIP})
	f.mu.Unlock()

	if f.ExpectedToken != "" && f.ExpectedToken != token {
		return turnstile.Result{}, fmt.Errorf("received unexpected turnstile token. Got '%s', want '%s'", token, f.ExpectedToken)
	}
	if f.Err != nil {
		return turnstile.Result{}, f.Err
	}
	if f.ShouldSucceed {
		return turnstile.Result{Success: true}, nil
	}
	res := turnstile.Result{Success: false, ErrorCodes: f.ErrorCodes}
	return res, fmt.Errorf("%w: %v", turnstile.ErrRejected, f.ErrorCodes)
}

// Calls returns the recorded Verify calls.
func (f *FakeVerifier) Calls() []VerifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]VerifyCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// StaticSettings is a settings provider returning fixed values.
type StaticSettings struct {
	Settings models.TurnstileSettings
	Err      error
}

// Get returns the fixed settings or error.
func (s *StaticSettings) Get(ctx context.Context) (models.TurnstileSettings, error) {
	return s.Settings, s.Err
}

// Save replaces the fixed settings.
func (s *StaticSettings) Save(ctx context.Context, settings models.TurnstileSettings) error {
	if s.Err != nil {
		return s.Err
	}
	s.Settings = settings
	return nil
}

// EnabledSettings returns ready-to-use settings with test keys.
func EnabledSettings() models.TurnstileSettings {
	return models.TurnstileSettings{
		ID:        models.TurnstileSettingsID,
		Enabled:   true,
		SiteKey:   "1x00000000000000000000AA",
		SecretKey: "1x0000000000000000000000000000000AA",
	}
}
