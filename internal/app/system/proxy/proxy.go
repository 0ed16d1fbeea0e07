// Package proxy fronts the protected site. Requests are forwarded to the
// upstream; HTML responses come back through the widget injector so every
// form the site renders carries the Turnstile challenge.
package proxy

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/dalemusser/formguard/internal/app/system/flash"
	"github.com/dalemusser/formguard/internal/app/system/formguard"
	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"github.com/dalemusser/formguard/internal/app/system/widget"
	"go.uber.org/zap"
)

// Config controls how pages are rewritten.
type Config struct {
	// FailureMarker is the query parameter the guard adds after a refusal.
	FailureMarker string
	// FailureMessage is the banner text when no flash message is pending.
	FailureMessage string
	Theme          string
	ScriptURL      string
	// PreserveHost forwards the client's Host header instead of the
	// upstream's.
	PreserveHost bool
}

// Proxy is an http.Handler forwarding to one upstream.
type Proxy struct {
	Settings formguard.SettingsProvider
	Flash    *flash.Store
	Log      *zap.Logger

	cfg      Config
	upstream *url.URL
	rp       *httputil.ReverseProxy
}

type pageKey struct{}

// page is what ModifyResponse needs to rewrite one response.
type page struct {
	injector    widget.Injector
	showFailure bool
}

// New builds a Proxy for upstream.
func New(upstream *url.URL, settings formguard.SettingsProvider, cfg Config, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureMarker == "" {
		cfg.FailureMarker = formguard.DefaultConfig().FailureMarker
	}
	if cfg.FailureMessage == "" {
		cfg.FailureMessage = formguard.DefaultFailureMessage
	}
	p := &Proxy{
		Settings: settings,
		Log:      logger,
		cfg:      cfg,
		upstream: upstream,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewriteRequest,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
	}
	return p
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pg := page{}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	settings, err := p.Settings.Get(ctx)
	cancel()
	if err != nil {
		// Pages are still served; submissions fail closed in the guard.
		p.Log.Warn("turnstile settings unreadable; serving pages without widget", zap.Error(err))
	} else if settings.Enabled && settings.SiteKey != "" {
		pg.injector = widget.Injector{
			SiteKey:   settings.SiteKey,
			Theme:     p.cfg.Theme,
			ScriptURL: p.cfg.ScriptURL,
		}
	}

	if r.URL.Query().Get(p.cfg.FailureMarker) == "1" {
		pg.showFailure = true
		msg := ""
		if p.Flash != nil {
			msg = p.Flash.Pop(w, r)
		}
		if msg == "" {
			msg = p.cfg.FailureMessage
		}
		pg.injector.FailureMessage = msg
	}

	p.rp.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), pageKey{}, pg)))
}

func (p *Proxy) rewriteRequest(pr *httputil.ProxyRequest) {
	pr.SetURL(p.upstream)
	pr.SetXForwarded()
	if p.cfg.PreserveHost {
		pr.Out.Host = pr.In.Host
	}
	// Let the transport negotiate gzip so bodies arrive decompressed.
	pr.Out.Header.Del("Accept-Encoding")
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	pg, _ := resp.Request.Context().Value(pageKey{}).(page)
	if pg.injector.SiteKey == "" || !rewritable(resp) {
		return nil
	}

	src := resp.Body
	pr, pw := io.Pipe()
	go func() {
		err := pg.injector.Rewrite(pw, src, pg.showFailure)
		_ = src.Close()
		_ = pw.CloseWithError(err)
	}()

	resp.Body = pr
	resp.ContentLength = -1
	resp.Header.Del("Content-Length")
	resp.Header.Del("Content-MD5")
	resp.Header.Del("ETag")
	return nil
}

func rewritable(resp *http.Response) bool {
	if resp.Request.Method == http.MethodHead {
		return false
	}
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotModified:
		return false
	}
	if ce := resp.Header.Get("Content-Encoding"); ce != "" && ce != "identity" {
		return false
	}
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	p.Log.Error("upstream request failed",
		zap.Error(err),
		zap.String("upstream", p.upstream.Host),
		zap.String("path", r.URL.Path),
	)
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}
