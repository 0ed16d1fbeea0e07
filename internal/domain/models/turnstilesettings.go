// internal/domain/models/turnstilesettings.go
package models

import (
	"time"
)

// TurnstileSettingsID is the _id of the single settings document.
const TurnstileSettingsID = "turnstile"

// TurnstileSettings holds the Turnstile configuration edited by the admin.
// There is exactly one document; it is created on first save.
type TurnstileSettings struct {
	ID string `bson:"_id,omitempty" json:"-"`

	Enabled bool   `bson:"enabled" json:"enabled"`
	SiteKey string `bson:"site_key" json:"site_key"` // public, rendered into pages

	// SecretKey is sent to the verification endpoint only. It must never be
	// rendered, logged or serialized to a client.
	SecretKey string `bson:"secret_key" json:"-"`

	// Audit fields
	UpdatedAt     *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	UpdatedByName string     `bson:"updated_by_name,omitempty" json:"updated_by_name,omitempty"`
}

// HasSecret reports whether a secret key has been stored.
func (s *TurnstileSettings) HasSecret() bool {
	return s.SecretKey != ""
}

// Ready reports whether verification can run: enabled with both keys set.
func (s *TurnstileSettings) Ready() bool {
	return s.Enabled && s.SiteKey != "" && s.SecretKey != ""
}

// PublicTurnstileSettings is the client-safe view of TurnstileSettings.
type PublicTurnstileSettings struct {
	Enabled   bool       `json:"enabled"`
	SiteKey   string     `json:"site_key"`
	HasSecret bool       `json:"has_secret"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	UpdatedBy string     `json:"updated_by,omitempty"`
}

// Public returns the view of the settings that may leave the server.
func (s TurnstileSettings) Public() PublicTurnstileSettings {
	return PublicTurnstileSettings{
		Enabled:   s.Enabled,
		SiteKey:   s.SiteKey,
		HasSecret: s.HasSecret(),
		UpdatedAt: s.UpdatedAt,
		UpdatedBy: s.UpdatedByName,
	}
}
