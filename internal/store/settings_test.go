package store

import (
	"testing"

	"github.com/mvaldes/chorebank/internal/database"
)

func setupSettingsTestDB(t *testing.T) *SettingsStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsStore(db)
}

func TestSettingsUpsert(t *testing.T) {
	ss := setupSettingsTestDB(t)

	if err := ss.Set("language", "en"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := ss.Get("language"); err != nil || got != "en" {
		t.Errorf("Get = %q, %v", got, err)
	}

	if err := ss.Set("language", "de"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ := ss.Get("language"); got != "de" {
		t.Errorf("Get after overwrite = %q, want de", got)
	}

	if _, err := ss.Get("never_set"); err == nil {
		t.Error("Get of unknown key should fail")
	}
}

func TestSetAllWritesEveryKey(t *testing.T) {
	ss := setupSettingsTestDB(t)

	if err := ss.Set("language", "en"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := ss.SetAll(map[string]string{
		"language":  "de",
		"dark_mode": "true",
	})
	if err != nil {
		t.Fatalf("set all: %v", err)
	}

	if got, _ := ss.Get("language"); got != "de" {
		t.Errorf("language = %q, want de", got)
	}
	if got, _ := ss.Get("dark_mode"); got != "true" {
		t.Errorf("dark_mode = %q, want true", got)
	}
}

func TestSettingsGroups(t *testing.T) {
	ss := setupSettingsTestDB(t)

	for k, v := range map[string]string{
		"language":         "en",
		"dark_mode":        "true",
		"snapshot_enabled": "true",
		"s3_bucket":        "household-backups",
	} {
		if err := ss.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	app, err := ss.GetAppSettings()
	if err != nil {
		t.Fatalf("app settings: %v", err)
	}
	if app["language"] != "en" || app["dark_mode"] != "true" {
		t.Errorf("app settings = %v", app)
	}
	if _, ok := app["s3_bucket"]; ok {
		t.Error("app settings should not leak s3 keys")
	}

	snap, err := ss.GetSnapshotSettings()
	if err != nil {
		t.Fatalf("snapshot settings: %v", err)
	}
	if snap["snapshot_enabled"] != "true" {
		t.Errorf("snapshot settings = %v", snap)
	}

	s3, err := ss.GetS3Settings()
	if err != nil {
		t.Fatalf("s3 settings: %v", err)
	}
	if s3["s3_bucket"] != "household-backups" {
		t.Errorf("s3 settings = %v", s3)
	}
}
