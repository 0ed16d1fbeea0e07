// internal/app/store/settings/settingsstore.go
package settingsstore

import (
	"context"
	"time"

	"github.com/dalemusser/formguard/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the turnstile_settings collection.
// The collection holds a single document keyed by models.TurnstileSettingsID.
type Store struct {
	c *mongo.Collection
}

// New creates a new settings store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("turnstile_settings")}
}

// Get returns the Turnstile settings.
// If nothing has been saved yet, returns disabled settings with empty keys.
func (s *Store) Get(ctx context.Context) (models.TurnstileSettings, error) {
	var settings models.TurnstileSettings
	err := s.c.FindOne(ctx, bson.M{"_id": models.TurnstileSettingsID}).Decode(&settings)
	if err == mongo.ErrNoDocuments {
		return models.TurnstileSettings{ID: models.TurnstileSettingsID}, nil
	}
	if err != nil {
		return models.TurnstileSettings{}, err
	}
	return settings, nil
}

// Save writes the Turnstile settings.
// Uses upsert so it works whether settings exist or not.
func (s *Store) Save(ctx context.Context, settings models.TurnstileSettings) error {
	now := time.Now().UTC()
	settings.UpdatedAt = &now

	update := bson.M{
		"$set": bson.M{
			"enabled":         settings.Enabled,
			"site_key":        settings.SiteKey,
			"secret_key":      settings.SecretKey,
			"updated_at":      settings.UpdatedAt,
			"updated_by_name": settings.UpdatedByName,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": models.TurnstileSettingsID}, update, opts)
	return err
}

// Exists checks if settings have been saved.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{"_id": models.TurnstileSettingsID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete removes the settings document, returning the guard to its defaults.
func (s *Store) Delete(ctx context.Context) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": models.TurnstileSettingsID})
	return err
}
