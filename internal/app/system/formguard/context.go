package formguard

import "context"

// Failure describes a refused submission that was passed downstream in
// strip mode.
type Failure struct {
	Outcome Outcome
	Message string
}

type ctxKey struct{}

func withFailure(ctx context.Context, f Failure) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

// FailureFromContext returns the failure attached by the guard, if any.
// Handlers behind a strip-mode guard use it to render the error instead of
// processing the (now empty) form.
func FailureFromContext(ctx context.Context) (Failure, bool) {
	f, ok := ctx.Value(ctxKey{}).(Failure)
	return f, ok
}
