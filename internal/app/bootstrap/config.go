// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/formguard/internal/app/system/auth"
	"github.com/dalemusser/formguard/internal/app/system/clientip"
	"github.com/dalemusser/formguard/internal/app/system/formguard"
	"github.com/dalemusser/formguard/internal/app/system/turnstile"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const devSessionKey = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for formguard.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, upstream_url, etc.
//   - Environment variables: FORMGUARD_MONGO_URI, FORMGUARD_UPSTREAM_URL, etc.
//   - Command-line flags: --mongo_uri, --upstream_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "formguard", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 50, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 2, Desc: "MongoDB min connection pool size"},

	{Name: "session_key", Default: devSessionKey, Desc: "Session and flash cookie signing key (must be strong in production)"},
	{Name: "session_name", Default: "formguard-session", Desc: "Admin session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "12h", Desc: "Admin session lifetime"},

	{Name: "admin_name", Default: "admin", Desc: "Admin login name"},
	{Name: "admin_password_hash", Default: "", Desc: "bcrypt hash of the admin password (blank disables admin login)"},

	// Protected site
	{Name: "upstream_url", Default: "", Desc: "Site to protect (blank serves the built-in contact page)"},
	{Name: "preserve_host", Default: false, Desc: "Forward the client Host header to the upstream"},

	// Initial Turnstile settings
	{Name: "turnstile_enabled", Default: false, Desc: "Seed: enable Turnstile when no settings are stored"},
	{Name: "turnstile_site_key", Default: "", Desc: "Seed: Turnstile site key"},
	{Name: "turnstile_secret_key", Default: "", Desc: "Seed: Turnstile secret key"},

	// Verification
	{Name: "verify_url", Default: "", Desc: "siteverify endpoint override (blank uses Cloudflare)"},
	{Name: "verify_timeout", Default: "10s", Desc: "Timeout for one verification call"},

	// Guard behavior
	{Name: "failure_mode", Default: string(formguard.ModeRedirect), Desc: "On refusal: 'redirect' back to the form or 'strip' and forward"},
	{Name: "failure_message", Default: formguard.DefaultFailureMessage, Desc: "Message shown after a refused submission"},
	{Name: "token_field", Default: "cf-turnstile-response", Desc: "Form field carrying the Turnstile token"},
	{Name: "max_form_bytes", Default: 10 << 20, Desc: "Largest form body the guard will buffer"},
	{Name: "widget_theme", Default: "light", Desc: "Turnstile widget theme: light, dark or auto"},

	// Rate limiting
	{Name: "ratelimit_attempts", Default: 30, Desc: "Verification attempts per client IP per window (0 disables)"},
	{Name: "ratelimit_window", Default: "1m", Desc: "Rate limit window"},
	{Name: "redis_url", Default: "", Desc: "Redis URL for shared rate-limit counters (blank: in-process)"},

	{Name: "trusted_proxies", Default: "", Desc: "Comma-separated CIDRs whose X-Forwarded-For is trusted"},

	// Audit logging settings
	{Name: "audit_log_security", Default: "all", Desc: "Verification event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_retention", Default: "2160h", Desc: "Delete audit events older than this (0 keeps them forever)"},
	{Name: "audit_cleanup_interval", Default: "1h", Desc: "How often expired audit events are deleted"},

	{Name: "settings_cache_ttl", Default: "5s", Desc: "How long Turnstile settings are cached in memory"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, FORMGUARD_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "FORMGUARD", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 12*time.Hour),

		AdminName:         strings.TrimSpace(appValues.String("admin_name")),
		AdminPasswordHash: strings.TrimSpace(appValues.String("admin_password_hash")),

		UpstreamURL:  strings.TrimSpace(appValues.String("upstream_url")),
		PreserveHost: appValues.Bool("preserve_host"),

		TurnstileEnabled:   appValues.Bool("turnstile_enabled"),
		TurnstileSiteKey:   strings.TrimSpace(appValues.String("turnstile_site_key")),
		TurnstileSecretKey: strings.TrimSpace(appValues.String("turnstile_secret_key")),

		VerifyURL:     strings.TrimSpace(appValues.String("verify_url")),
		VerifyTimeout: appValues.Duration("verify_timeout", turnstile.DefaultTimeout),

		FailureMode:    strings.ToLower(strings.TrimSpace(appValues.String("failure_mode"))),
		FailureMessage: appValues.String("failure_message"),
		TokenField:     strings.TrimSpace(appValues.String("token_field")),
		MaxFormBytes:   int64(appValues.Int("max_form_bytes")),
		WidgetTheme:    appValues.String("widget_theme"),

		RateLimitAttempts: appValues.Int("ratelimit_attempts"),
		RateLimitWindow:   appValues.Duration("ratelimit_window", time.Minute),
		RedisURL:          strings.TrimSpace(appValues.String("redis_url")),

		TrustedProxies: appValues.String("trusted_proxies"),

		AuditLogSecurity: appValues.String("audit_log_security"),
		AuditLogAuth:     appValues.String("audit_log_auth"),
		AuditLogAdmin:    appValues.String("audit_log_admin"),
		AuditRetention:   appValues.Duration("audit_retention", 90*24*time.Hour),
		AuditCleanup:     appValues.Duration("audit_cleanup_interval", time.Hour),

		SettingsCacheTTL: appValues.Duration("settings_cache_ttl", 5*time.Second),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Everything that can be checked without a network round trip is checked
// here so a bad deployment fails before it serves a single form.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return errors.New("mongo_database is required")
	}

	if coreCfg.Env == "prod" {
		if appCfg.SessionKey == devSessionKey || len(appCfg.SessionKey) < 32 {
			return errors.New("session_key must be set to 32+ random characters in production")
		}
	}

	if appCfg.AdminPasswordHash == "" {
		logger.Warn("admin_password_hash is not set; the admin pages cannot be signed into")
	} else if err := auth.CheckPasswordHash(appCfg.AdminPasswordHash); err != nil {
		return fmt.Errorf("admin_password_hash: %w", err)
	}
	if appCfg.AdminName == "" {
		return errors.New("admin_name is required")
	}

	if appCfg.UpstreamURL != "" {
		if _, err := parseUpstream(appCfg.UpstreamURL); err != nil {
			return err
		}
	}
	if appCfg.VerifyURL != "" {
		u, err := url.Parse(appCfg.VerifyURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("verify_url %q is not an absolute http(s) URL", appCfg.VerifyURL)
		}
	}
	if appCfg.VerifyTimeout <= 0 {
		return errors.New("verify_timeout must be positive")
	}

	switch formguard.FailureMode(appCfg.FailureMode) {
	case formguard.ModeRedirect, formguard.ModeStrip:
	default:
		return fmt.Errorf("failure_mode must be %q or %q, got %q", formguard.ModeRedirect, formguard.ModeStrip, appCfg.FailureMode)
	}
	if appCfg.TokenField == "" {
		return errors.New("token_field is required")
	}

	if appCfg.TurnstileEnabled && (appCfg.TurnstileSiteKey == "" || appCfg.TurnstileSecretKey == "") {
		return errors.New("turnstile_enabled requires turnstile_site_key and turnstile_secret_key")
	}

	if appCfg.RateLimitAttempts < 0 {
		return errors.New("ratelimit_attempts must not be negative")
	}
	if appCfg.RateLimitAttempts > 0 && appCfg.RateLimitWindow <= 0 {
		return errors.New("ratelimit_window must be positive")
	}
	if appCfg.RedisURL != "" {
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	}
	if _, err := clientip.ParsePrefixes(appCfg.TrustedProxies); err != nil {
		return err
	}

	for name, v := range map[string]string{
		"audit_log_security": appCfg.AuditLogSecurity,
		"audit_log_auth":     appCfg.AuditLogAuth,
		"audit_log_admin":    appCfg.AuditLogAdmin,
	} {
		switch v {
		case "", "all", "db", "log", "off":
		default:
			return fmt.Errorf("%s must be all, db, log or off, got %q", name, v)
		}
	}
	if appCfg.AuditRetention < 0 {
		return errors.New("audit_retention must not be negative")
	}
	if appCfg.AuditRetention > 0 && appCfg.AuditCleanup <= 0 {
		return errors.New("audit_cleanup_interval must be positive")
	}

	return nil
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("upstream_url %q is not an absolute http(s) URL", raw)
	}
	return u, nil
}
