package formguard

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// failurePayload is the JSON body returned to AJAX callers. Storefront
// scripts look for hasError/errors and nw_error.
type failurePayload struct {
	HasError bool     `json:"hasError"`
	Errors   []string `json:"errors"`
	NWError  bool     `json:"nw_error"`
	Msg      string   `json:"msg"`
}

func (g *Guard) fail(w http.ResponseWriter, r *http.Request, next http.Handler, d decision) {
	if err := g.strip(r, d.form, d.sub); err != nil {
		// The stripped body could not be rebuilt; never forward the original.
		g.Log.Error("strip refused submission", zap.Error(err))
		r.Body = http.NoBody
		r.ContentLength = 0
		r.Header.Del("Content-Length")
		r.Form, r.PostForm, r.MultipartForm = nil, nil, nil
	}

	g.Log.Warn("form submission refused",
		zap.String("outcome", d.outcome.String()),
		zap.String("submission", d.sub.Kind.String()),
		zap.String("path", r.URL.Path),
		zap.String("ip", d.ip),
		zap.String("verification_id", d.id),
		zap.Strings("error_codes", d.codes),
	)
	g.record(r, d)

	msg := g.cfg.FailureMessage

	if isAJAX(r) {
		writeFailureJSON(w, msg)
		return
	}

	if g.cfg.FailureMode == ModeStrip {
		ctx := withFailure(r.Context(), Failure{Outcome: d.outcome, Message: msg})
		next.ServeHTTP(w, r.WithContext(ctx))
		return
	}

	if g.Flash != nil {
		if err := g.Flash.Set(w, msg); err != nil {
			g.Log.Warn("failed to set flash message", zap.Error(err))
		}
	}
	http.Redirect(w, r, g.failureURL(r), http.StatusFound)
}

// failureURL is the current page with the failure marker added. Only the
// path and query are used so the redirect always stays on this host.
func (g *Guard) failureURL(r *http.Request) string {
	u := *r.URL
	q := u.Query()
	q.Set(g.cfg.FailureMarker, "1")
	u.RawQuery = q.Encode()
	return u.RequestURI()
}

func (g *Guard) refuseUnreadable(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	g.Log.Warn("unreadable form body refused",
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
	)
	http.Error(w, http.StatusText(status), status)
}

func writeFailureJSON(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(failurePayload{
		HasError: true,
		Errors:   []string{msg},
		NWError:  true,
		Msg:      msg,
	})
}
