// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers
// ports, TLS, log level and the dev/prod switch; everything formguard
// needs beyond that lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string // Secret key for signing session and flash cookies
	SessionName   string // Cookie name for the admin session (default: formguard-session)
	SessionDomain string // Cookie domain (blank means current host)
	SessionMaxAge time.Duration

	// Admin identity
	AdminName         string
	AdminPasswordHash string // bcrypt; blank disables admin login

	// Protected site. Blank serves the built-in contact page instead.
	UpstreamURL  string
	PreserveHost bool

	// Initial Turnstile settings, written to MongoDB when no settings
	// document exists yet. Later changes go through the admin page.
	TurnstileEnabled   bool
	TurnstileSiteKey   string
	TurnstileSecretKey string

	// Verification
	VerifyURL     string        // siteverify endpoint (blank: Cloudflare)
	VerifyTimeout time.Duration // per-call timeout, no retries

	// Guard behavior
	FailureMode    string // "redirect" or "strip"
	FailureMessage string
	TokenField     string
	MaxFormBytes   int64
	WidgetTheme    string

	// Rate limiting of verification attempts per client IP
	RateLimitAttempts int           // 0 disables
	RateLimitWindow   time.Duration
	RedisURL          string // blank keeps counters in-process

	// Comma-separated proxy CIDRs whose forwarding headers are trusted
	TrustedProxies string

	// Audit logging: "all", "db", "log" or "off"
	AuditLogSecurity string
	AuditLogAuth     string
	AuditLogAdmin    string

	// Audit events older than AuditRetention are deleted every AuditCleanup.
	// Zero retention disables the cleanup worker.
	AuditRetention time.Duration
	AuditCleanup   time.Duration

	// How long settings are served from memory before re-reading MongoDB
	SettingsCacheTTL time.Duration
}
