package main

import (
	"path/filepath"
	"testing"

	"github.com/sidereal-data/drift.report/internal/obsdb"
)

func TestRunMigrateAction(t *testing.T) {
	database, err := obsdb.OpenRaw(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrateAction(database, "up", nil); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty || version == 0 {
		t.Errorf("version = %d dirty = %v after up", version, dirty)
	}

	if err := runMigrateAction(database, "down", nil); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	downVersion, _, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if downVersion != version-1 {
		t.Errorf("version after down = %d, want %d", downVersion, version-1)
	}

	if err := runMigrateAction(database, "version", nil); err != nil {
		t.Errorf("migrate version failed: %v", err)
	}

	if err := runMigrateAction(database, "sideways", nil); err == nil {
		t.Error("expected error for unknown action")
	}

	if err := runMigrateAction(database, "force", nil); err == nil {
		t.Error("expected error for force without version")
	}
	if err := runMigrateAction(database, "force", []string{"two"}); err == nil {
		t.Error("expected error for non-numeric force version")
	}
}
