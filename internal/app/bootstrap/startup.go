// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"sync"

	auditlogfeature "github.com/dalemusser/formguard/internal/app/features/auditlog"
	contactfeature "github.com/dalemusser/formguard/internal/app/features/contact"
	errorsfeature "github.com/dalemusser/formguard/internal/app/features/errors"
	loginfeature "github.com/dalemusser/formguard/internal/app/features/login"
	settingsfeature "github.com/dalemusser/formguard/internal/app/features/settings"
	"github.com/dalemusser/formguard/internal/app/resources"
	"github.com/dalemusser/formguard/internal/app/store/audit"
	settingsstore "github.com/dalemusser/formguard/internal/app/store/settings"
	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"github.com/dalemusser/formguard/internal/app/system/workers"
	"github.com/dalemusser/formguard/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// retention deletes expired audit events; Shutdown stops it.
var (
	retentionMu sync.Mutex
	retention   *workers.AuditRetention
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It
// applies timeouts, seeds the Turnstile settings on first run, registers
// every template set and starts the audit retention worker.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Verify: appCfg.VerifyTimeout})

	if err := seedSettings(ctx, settingsstore.New(deps.MongoDatabase), appCfg, logger); err != nil {
		return err
	}

	registerTemplates()

	if appCfg.AuditRetention > 0 {
		w := workers.NewAuditRetention(audit.New(deps.MongoDatabase), logger, appCfg.AuditCleanup, appCfg.AuditRetention)
		w.Start()
		retentionMu.Lock()
		retention = w
		retentionMu.Unlock()
	}
	return nil
}

func registerTemplates() {
	resources.LoadSharedTemplates()
	errorsfeature.RegisterTemplates()
	settingsfeature.RegisterTemplates()
	loginfeature.RegisterTemplates()
	contactfeature.RegisterTemplates()
	auditlogfeature.RegisterTemplates()
}

// seedStore is the part of the settings store seeding needs.
type seedStore interface {
	Exists(ctx context.Context) (bool, error)
	Save(ctx context.Context, settings models.TurnstileSettings) error
}

// seedSettings writes the configured keys when no settings document exists.
// A stored document always wins so admin edits survive restarts.
func seedSettings(ctx context.Context, store seedStore, appCfg AppConfig, logger *zap.Logger) error {
	if appCfg.TurnstileSiteKey == "" && appCfg.TurnstileSecretKey == "" && !appCfg.TurnstileEnabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	exists, err := store.Exists(ctx)
	if err != nil {
		logger.Error("check turnstile settings failed", zap.Error(err))
		return err
	}
	if exists {
		logger.Info("turnstile settings already stored; ignoring configured seed")
		return nil
	}

	seed := models.TurnstileSettings{
		ID:            models.TurnstileSettingsID,
		Enabled:       appCfg.TurnstileEnabled,
		SiteKey:       appCfg.TurnstileSiteKey,
		SecretKey:     appCfg.TurnstileSecretKey,
		UpdatedByName: "config",
	}
	if err := store.Save(ctx, seed); err != nil {
		logger.Error("seed turnstile settings failed", zap.Error(err))
		return err
	}
	logger.Info("seeded turnstile settings from config",
		zap.Bool("enabled", seed.Enabled),
		zap.Bool("has_site_key", seed.SiteKey != ""),
		zap.Bool("has_secret", seed.HasSecret()),
	)
	return nil
}
