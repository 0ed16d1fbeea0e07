// internal/app/features/settings/handler.go
package settings

import (
	"context"

	uierrors "github.com/dalemusser/formguard/internal/app/features/errors"
	"github.com/dalemusser/formguard/internal/app/store/audit"
	"github.com/dalemusser/formguard/internal/app/system/auditlog"
	"github.com/dalemusser/formguard/internal/app/system/clientip"
	"github.com/dalemusser/formguard/internal/domain/models"
	"go.uber.org/zap"
)

// Store is the settings persistence the handlers read and write.
// settingsstore.Cached satisfies it.
type Store interface {
	Get(ctx context.Context) (models.TurnstileSettings, error)
	Save(ctx context.Context, settings models.TurnstileSettings) error
}

// Handler owns all admin-facing Settings handlers.
type Handler struct {
	Settings Store
	Events   *audit.Store // nil disables /admin/events results
	Audit    *auditlog.Logger
	IP       *clientip.Resolver
	Log      *zap.Logger
	ErrLog   *uierrors.ErrorLogger
}

// NewHandler constructs a Handler bound to the settings store and logger.
func NewHandler(settings Store, events *audit.Store, auditLog *auditlog.Logger, ip *clientip.Resolver, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	if ip == nil {
		ip = clientip.New(nil)
	}
	return &Handler{
		Settings: settings,
		Events:   events,
		Audit:    auditLog,
		IP:       ip,
		Log:      logger,
		ErrLog:   errLog,
	}
}
