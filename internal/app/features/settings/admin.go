// internal/app/features/settings/admin.go
package settings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/formguard/internal/app/system/auth"
	"github.com/dalemusser/formguard/internal/app/system/htmlsanitize"
	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"github.com/dalemusser/formguard/internal/app/system/viewdata"
	"github.com/dalemusser/formguard/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

// SuccessMessage is shown after a successful save.
const SuccessMessage = "Settings updated successfully."

// maxSettingsForm bounds the settings form body.
const maxSettingsForm = 64 << 10

var (
	errKeysRequired = errors.New("Site key and secret key are required to enable Turnstile.")
	errKeyMarkup    = errors.New("Keys may not contain HTML or whitespace.")
)

type settingsVM struct {
	viewdata.BaseVM
	Enabled   bool
	SiteKey   string
	HasSecret bool
	UpdatedAt *time.Time
	UpdatedBy string
	Error     string
	Success   string
}

// ServeSettings displays the settings form. The secret key is never
// rendered; the form only shows whether one is stored.
func (h *Handler) ServeSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	s, err := h.Settings.Get(ctx)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "load settings failed", err, "Failed to load settings.", "/admin")
		return
	}

	vm := h.newVM(r, s)
	if r.URL.Query().Get("saved") == "1" {
		vm.Success = SuccessMessage
	}
	templates.Render(w, r, "admin_settings", vm)
}

// HandleSettings processes the settings form submission.
//
// A blank secret keeps the stored secret; clear_secret removes it.
// Enabling requires both keys.
func (h *Handler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSettingsForm)
	if err := r.ParseForm(); err != nil {
		h.ErrLog.LogBadRequest(w, r, "parse settings form failed", err, "Invalid form data.", "/admin/settings")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	current, err := h.Settings.Get(ctx)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "load settings failed", err, "Failed to load settings.", "/admin")
		return
	}

	rawSite := strings.TrimSpace(r.PostFormValue("site_key"))
	rawSecret := strings.TrimSpace(r.PostFormValue("secret_key"))
	enabled := formBool(r.PostFormValue("enabled"))
	clearSecret := formBool(r.PostFormValue("clear_secret"))

	next := current
	next.ID = models.TurnstileSettingsID
	next.Enabled = enabled
	next.SiteKey = htmlsanitize.StripTags(rawSite)

	switch {
	case rawSecret != "":
		next.SecretKey = rawSecret
	case clearSecret:
		next.SecretKey = ""
	}

	if err := validateKeys(rawSite, rawSecret, next); err != nil {
		vm := h.newVM(r, next)
		vm.Enabled = enabled
		vm.Error = err.Error()
		w.WriteHeader(http.StatusUnprocessableEntity)
		templates.Render(w, r, "admin_settings", vm)
		return
	}

	actor := ""
	if a, ok := auth.CurrentAdmin(r); ok {
		actor = a.Name
	}
	now := time.Now().UTC()
	next.UpdatedAt = &now
	next.UpdatedByName = actor

	if err := h.Settings.Save(ctx, next); err != nil {
		h.ErrLog.LogServerError(w, r, "save settings failed", err, "Failed to save settings.", "/admin/settings")
		return
	}

	changed := changedFields(current, next)
	h.Log.Info("turnstile settings updated",
		zap.String("actor", actor),
		zap.Bool("enabled", next.Enabled),
		zap.Strings("fields_changed", changed),
	)
	h.Audit.SettingsUpdated(r.Context(), r, h.IP.IP(r), actor, strings.Join(changed, ","))

	http.Redirect(w, r, "/admin/settings?saved=1", http.StatusSeeOther)
}

func (h *Handler) newVM(r *http.Request, s models.TurnstileSettings) settingsVM {
	return settingsVM{
		BaseVM:    viewdata.NewBaseVM(r, "Turnstile settings", "/admin"),
		Enabled:   s.Enabled,
		SiteKey:   s.SiteKey,
		HasSecret: s.HasSecret(),
		UpdatedAt: s.UpdatedAt,
		UpdatedBy: s.UpdatedByName,
	}
}

func validateKeys(rawSite, rawSecret string, next models.TurnstileSettings) error {
	if !plainKey(rawSite) || !plainKey(rawSecret) {
		return errKeyMarkup
	}
	if next.Enabled && (next.SiteKey == "" || next.SecretKey == "") {
		return errKeysRequired
	}
	return nil
}

// plainKey reports whether s could be a Turnstile key.
func plainKey(s string) bool {
	return htmlsanitize.IsPlainText(s) && !strings.ContainsAny(s, " \t\r\n\"'")
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

// changedFields names the settings fields that differ. Values are never
// included.
func changedFields(before, after models.TurnstileSettings) []string {
	var out []string
	if before.Enabled != after.Enabled {
		out = append(out, "enabled")
	}
	if before.SiteKey != after.SiteKey {
		out = append(out, "site_key")
	}
	if before.SecretKey != after.SecretKey {
		out = append(out, "secret_key")
	}
	return out
}
