package formguard

import (
	"context"
	"net/http"

	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"github.com/dalemusser/formguard/internal/app/system/widget"
	"go.uber.org/zap"
)

// Injector returns the widget configuration for pages this service renders
// itself. The site key is empty (no widget) while the guard is disabled.
func (g *Guard) Injector(ctx context.Context) widget.Injector {
	in := widget.Injector{FailureMessage: g.cfg.FailureMessage}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	s, err := g.Settings.Get(ctx)
	if err != nil {
		g.Log.Warn("turnstile settings unreadable; rendering without widget", zap.Error(err))
		return in
	}
	if s.Enabled {
		in.SiteKey = s.SiteKey
	}
	return in
}

// PendingFailure returns the message to show after a redirect carrying the
// failure marker, or "" when the page was not reached that way.
func (g *Guard) PendingFailure(w http.ResponseWriter, r *http.Request) string {
	if r.URL.Query().Get(g.cfg.FailureMarker) != "1" {
		return ""
	}
	if g.Flash != nil {
		if msg := g.Flash.Pop(w, r); msg != "" {
			return msg
		}
	}
	return g.cfg.FailureMessage
}
