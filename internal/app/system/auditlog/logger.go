// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/formguard/internal/app/store/audit"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
type Config struct {
	// Security controls logging for form verification outcomes.
	Security string
	// Auth controls logging for admin login/logout.
	Auth string
	// Admin controls logging for settings changes.
	Admin string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil, in which case "db"
// destinations are skipped.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.Actor != "" {
		fields = append(fields, zap.String("actor", event.Actor))
	}
	if event.Path != "" {
		fields = append(fields, zap.String("path", event.Path))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategorySecurity:
		setting = l.config.Security
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	}
	if setting == "" {
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Security Events ---

// Verification logs the outcome of a guarded form submission.
func (l *Logger) Verification(ctx context.Context, r *http.Request, ip, eventType string, success bool, reason string, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySecurity,
		EventType:     eventType,
		IP:            ip,
		UserAgent:     r.UserAgent(),
		Path:          r.URL.Path,
		Success:       success,
		FailureReason: reason,
		Details:       details,
	})
}

// --- Authentication Events ---

// LoginSuccess logs a successful admin login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, ip, name string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		Actor:     name,
		IP:        ip,
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// LoginFailedWrongPassword logs a failed admin login.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, r *http.Request, ip, name string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		Actor:         name,
		IP:            ip,
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "invalid credentials",
	})
}

// LoginFailedRateLimit logs a login attempt rejected by the limiter.
func (l *Logger) LoginFailedRateLimit(ctx context.Context, r *http.Request, ip, name string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedRateLimit,
		Actor:         name,
		IP:            ip,
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "rate limit exceeded",
	})
}

// Logout logs an admin logout.
func (l *Logger) Logout(ctx context.Context, r *http.Request, ip, name string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		Actor:     name,
		IP:        ip,
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// --- Admin Events ---

// SettingsUpdated logs a change to the Turnstile settings. Only the
// names of changed fields are recorded, never their values.
func (l *Logger) SettingsUpdated(ctx context.Context, r *http.Request, ip, actor, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventSettingsUpdated,
		Actor:     actor,
		IP:        ip,
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"fields_changed": fieldsChanged,
		},
	})
}
