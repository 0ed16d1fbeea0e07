// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"sync"
	"time"

	auditlogfeature "github.com/dalemusser/formguard/internal/app/features/auditlog"
	contactfeature "github.com/dalemusser/formguard/internal/app/features/contact"
	errorsfeature "github.com/dalemusser/formguard/internal/app/features/errors"
	healthfeature "github.com/dalemusser/formguard/internal/app/features/health"
	loginfeature "github.com/dalemusser/formguard/internal/app/features/login"
	logoutfeature "github.com/dalemusser/formguard/internal/app/features/logout"
	settingsfeature "github.com/dalemusser/formguard/internal/app/features/settings"
	"github.com/dalemusser/formguard/internal/app/store/audit"
	settingsstore "github.com/dalemusser/formguard/internal/app/store/settings"
	"github.com/dalemusser/formguard/internal/app/system/auditlog"
	"github.com/dalemusser/formguard/internal/app/system/auth"
	"github.com/dalemusser/formguard/internal/app/system/clientip"
	"github.com/dalemusser/formguard/internal/app/system/flash"
	"github.com/dalemusser/formguard/internal/app/system/formguard"
	"github.com/dalemusser/formguard/internal/app/system/proxy"
	"github.com/dalemusser/formguard/internal/app/system/ratelimit"
	"github.com/dalemusser/formguard/internal/app/system/turnstile"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// server is the assembled request-handling graph.
type server struct {
	sessionMgr *auth.SessionManager
	guard      *formguard.Guard
	settings   settingsfeature.Store
	events     *audit.Store
	audit      *auditlog.Logger
	ip         *clientip.Resolver
	login      *ratelimit.LoginLimiter
	errLog     *errorsfeature.ErrorLogger
	health     *healthfeature.Handler
	proxy      *proxy.Proxy // nil serves the built-in contact page
	admin      loginfeature.Credentials
	csrfKey    []byte
	secure     bool
	log        *zap.Logger
}

// Admin login limits: attempts per IP and per name.
const (
	loginIPWindow   = time.Minute
	loginNameWindow = 5 * time.Minute
)

// in-process limiters own cleanup goroutines; Shutdown stops them.
var (
	limitersMu sync.Mutex
	limiters   []*ratelimit.Limiter
)

func trackLimiter(l *ratelimit.Limiter) *ratelimit.Limiter {
	limitersMu.Lock()
	limiters = append(limiters, l)
	limitersMu.Unlock()
	return l
}

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// Every request passes through the session loader. Submissions to the
// protected site then pass the form guard, so they are verified before
// the contact handler or the upstream sees them. Admin pages are covered
// by CSRF protection instead.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	flashStore, err := flash.New([]byte(appCfg.SessionKey), flash.DefaultCookieName, secure)
	if err != nil {
		logger.Error("flash store init failed", zap.Error(err))
		return nil, err
	}

	csrfSecret, err := csrfKey(appCfg.SessionKey)
	if err != nil {
		logger.Error("csrf key derivation failed", zap.Error(err))
		return nil, err
	}

	// Initialize and boot the template engine once at startup.
	// Dev mode enables template reloading for faster iteration.
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	trusted, err := clientip.ParsePrefixes(appCfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	ip := clientip.New(trusted)

	events := audit.New(deps.MongoDatabase)
	auditLog := auditlog.New(events, logger, auditlog.Config{
		Security: appCfg.AuditLogSecurity,
		Auth:     appCfg.AuditLogAuth,
		Admin:    appCfg.AuditLogAdmin,
	})

	settings := settingsstore.NewCached(settingsstore.New(deps.MongoDatabase), appCfg.SettingsCacheTTL)

	verifier := turnstile.NewClient(
		turnstile.WithEndpoint(appCfg.VerifyURL),
		turnstile.WithTimeout(appCfg.VerifyTimeout),
		turnstile.WithLogger(logger),
	)

	guard := formguard.New(guardConfig(appCfg), settings, verifier, logger)
	guard.IP = ip
	guard.Audit = auditLog
	guard.Flash = flashStore
	if appCfg.RateLimitAttempts > 0 {
		if deps.Redis != nil {
			guard.Limiter = ratelimit.NewRedis(deps.Redis, "formguard:", appCfg.RateLimitAttempts, appCfg.RateLimitWindow)
		} else {
			guard.Limiter = trackLimiter(ratelimit.New(appCfg.RateLimitAttempts, appCfg.RateLimitWindow))
		}
	}

	s := &server{
		sessionMgr: sessionMgr,
		guard:      guard,
		settings:   settings,
		events:     events,
		audit:      auditLog,
		ip:         ip,
		login:      loginLimiter(deps),
		errLog:     errorsfeature.NewErrorLogger(logger),
		health:     healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger),
		admin:      loginfeature.Credentials{Name: appCfg.AdminName, PasswordHash: appCfg.AdminPasswordHash},
		csrfKey:    csrfSecret,
		secure:     secure,
		log:        logger,
	}

	if appCfg.UpstreamURL != "" {
		upstream, err := parseUpstream(appCfg.UpstreamURL)
		if err != nil {
			return nil, err
		}
		s.proxy = proxy.New(upstream, settings, proxy.Config{
			FailureMarker:  guard.Config().FailureMarker,
			FailureMessage: guard.Config().FailureMessage,
			Theme:          appCfg.WidgetTheme,
			PreserveHost:   appCfg.PreserveHost,
		}, logger)
		s.proxy.Flash = flashStore
		logger.Info("protecting upstream", zap.String("upstream", upstream.Host))
	}

	return s.routes(), nil
}

func guardConfig(appCfg AppConfig) formguard.Config {
	return formguard.Config{
		TokenField:     appCfg.TokenField,
		FailureMode:    formguard.FailureMode(appCfg.FailureMode),
		FailureMessage: appCfg.FailureMessage,
		MaxFormBytes:   appCfg.MaxFormBytes,
	}
}

func loginLimiter(deps DBDeps) *ratelimit.LoginLimiter {
	if deps.Redis != nil {
		return ratelimit.NewLoginLimiterWith(
			ratelimit.NewRedis(deps.Redis, "formguard:", 10, loginIPWindow),
			ratelimit.NewRedis(deps.Redis, "formguard:", 5, loginNameWindow),
		)
	}
	return ratelimit.NewLoginLimiterWith(
		trackLimiter(ratelimit.New(10, loginIPWindow)),
		trackLimiter(ratelimit.New(5, loginNameWindow)),
	)
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()

	// Global auth middleware: loads the admin into context if logged in.
	r.Use(s.sessionMgr.LoadSession)

	// Health check endpoint for load balancers and orchestrators
	if s.health != nil {
		r.Mount("/health", healthfeature.Routes(s.health))
	}

	// Admin pages sit outside the form guard so bad Turnstile keys can
	// always be corrected from the settings page.
	r.Group(func(ar chi.Router) {
		ar.Use(s.csrfProtect())
		s.adminRoutes(ar)
	})

	// Every POST to the protected site is inspected; refused submissions
	// stop here.
	r.Group(func(gr chi.Router) {
		gr.Use(s.guard.Middleware)
		s.siteRoutes(gr)
	})

	return r
}

func (s *server) adminRoutes(r chi.Router) {
	// Admin sign in and out
	loginHandler := loginfeature.NewHandler(s.sessionMgr, s.login, s.audit, s.ip, s.admin, s.log)
	r.Mount(auth.LoginPath, loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(s.sessionMgr, s.audit, s.ip, s.log)
	r.Mount("/admin/logout", logoutfeature.Routes(logoutHandler, s.sessionMgr))

	// Turnstile settings and audit events
	settingsHandler := settingsfeature.NewHandler(s.settings, s.events, s.audit, s.ip, s.errLog, s.log)
	auditHandler := auditlogfeature.NewHandler(s.events, s.errLog, s.log)
	r.Group(func(ar chi.Router) {
		ar.Use(s.sessionMgr.RequireAdmin)
		settingsHandler.MountRoutes(ar)
		auditHandler.MountRoutes(ar)
	})
}

func (s *server) siteRoutes(r chi.Router) {
	if s.proxy != nil {
		// Everything else belongs to the protected site.
		r.Handle("/", s.proxy)
		r.Handle("/*", s.proxy)
		return
	}

	contactHandler := contactfeature.NewHandler(s.guard, s.log)
	r.Mount("/contact", contactfeature.Routes(contactHandler))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/contact", http.StatusSeeOther)
	})
}
