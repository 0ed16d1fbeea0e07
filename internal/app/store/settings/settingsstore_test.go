package settingsstore_test

import (
	"testing"

	settingsstore "github.com/dalemusser/formguard/internal/app/store/settings"
	"github.com/dalemusser/formguard/internal/domain/models"
	"github.com/dalemusser/formguard/internal/testutil"
)

func TestStore_Get_NoSettings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := settingsstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	settings, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Should return disabled defaults
	if settings.Enabled {
		t.Error("expected Enabled to default to false")
	}
	if settings.SiteKey != "" || settings.SecretKey != "" {
		t.Errorf("expected empty keys, got site=%q secret set=%v", settings.SiteKey, settings.HasSecret())
	}
}

func TestStore_Save_NewSettings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := settingsstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := store.Save(ctx, models.TurnstileSettings{
		Enabled:       true,
		SiteKey:       "0x4AAAAAAA-site",
		SecretKey:     "0x4AAAAAAA-secret",
		UpdatedByName: "admin",
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	saved, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !saved.Enabled {
		t.Error("Enabled: got false, want true")
	}
	if saved.SiteKey != "0x4AAAAAAA-site" {
		t.Errorf("SiteKey: got %q, want %q", saved.SiteKey, "0x4AAAAAAA-site")
	}
	if saved.SecretKey != "0x4AAAAAAA-secret" {
		t.Error("SecretKey was not persisted")
	}
	if saved.UpdatedAt == nil {
		t.Error("expected UpdatedAt to be set")
	}
	if saved.UpdatedByName != "admin" {
		t.Errorf("UpdatedByName: got %q, want %q", saved.UpdatedByName, "admin")
	}
}

func TestStore_Save_UpdateSettings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := settingsstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	settings := models.TurnstileSettings{Enabled: true, SiteKey: "site-1", SecretKey: "secret-1"}
	if err := store.Save(ctx, settings); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	settings.Enabled = false
	settings.SiteKey = "site-2"
	if err := store.Save(ctx, settings); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}

	saved, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if saved.Enabled {
		t.Error("Enabled: got true, want false")
	}
	if saved.SiteKey != "site-2" {
		t.Errorf("SiteKey: got %q, want %q", saved.SiteKey, "site-2")
	}

	count, err := db.Collection("turnstile_settings").CountDocuments(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected a single settings document, got %d", count)
	}
}

func TestStore_Exists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := settingsstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	exists, err := store.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected Exists to return false before save")
	}

	if err := store.Save(ctx, models.TurnstileSettings{SiteKey: "site"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	exists, err = store.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected Exists to return true after save")
	}
}

func TestStore_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := settingsstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Delete with nothing saved should not error
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete non-existent should not error: %v", err)
	}

	if err := store.Save(ctx, models.TurnstileSettings{Enabled: true, SiteKey: "s", SecretKey: "k"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, _ := store.Exists(ctx)
	if exists {
		t.Error("expected settings to not exist after delete")
	}
}
