package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"go.uber.org/zap"
)

func TestConfigure_IgnoresZeroValues(t *testing.T) {
	t.Cleanup(timeouts.Reset)

	timeouts.Configure(timeouts.Config{Verify: 3 * time.Second})

	if got := timeouts.Verify(); got != 3*time.Second {
		t.Errorf("Verify: got %v, want 3s", got)
	}
	if got := timeouts.Short(); got != timeouts.DefaultShort {
		t.Errorf("Short: got %v, want default %v", got, timeouts.DefaultShort)
	}
	if got := timeouts.Ping(); got != timeouts.DefaultPing {
		t.Errorf("Ping: got %v, want default %v", got, timeouts.DefaultPing)
	}
}

func TestReset(t *testing.T) {
	timeouts.Configure(timeouts.Config{Ping: time.Second, Short: time.Second, Verify: time.Second})
	timeouts.Reset()

	cur := timeouts.Current()
	if cur.Ping != timeouts.DefaultPing || cur.Short != timeouts.DefaultShort || cur.Verify != timeouts.DefaultVerify {
		t.Errorf("Reset did not restore defaults: %+v", cur)
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), 5*time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not expire")
	}
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("err: got %v, want DeadlineExceeded", ctx.Err())
	}
}
