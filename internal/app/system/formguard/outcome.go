package formguard

import "github.com/dalemusser/formguard/internal/app/store/audit"

// Outcome is the result of checking one request.
type Outcome int

const (
	// Skipped means no verification was required.
	Skipped Outcome = iota
	// Passed means the token was verified.
	Passed
	FailedMissingToken
	FailedUnavailable
	FailedRejected
	FailedRateLimited
	FailedMisconfigured
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Passed:
		return "passed"
	case FailedMissingToken:
		return "missing_token"
	case FailedUnavailable:
		return "unavailable"
	case FailedRejected:
		return "rejected"
	case FailedRateLimited:
		return "rate_limited"
	case FailedMisconfigured:
		return "misconfigured"
	default:
		return "unknown"
	}
}

// Failed reports whether the submission must be refused.
func (o Outcome) Failed() bool {
	return o != Skipped && o != Passed
}

func (o Outcome) auditEvent() string {
	switch o {
	case Passed:
		return audit.EventTurnstilePassed
	case FailedMissingToken:
		return audit.EventTurnstileMissingToken
	case FailedUnavailable:
		return audit.EventTurnstileUnavailable
	case FailedRateLimited:
		return audit.EventTurnstileRateLimited
	case FailedMisconfigured:
		return audit.EventTurnstileMisconfigured
	default:
		return audit.EventTurnstileRejected
	}
}
