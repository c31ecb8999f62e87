package db

import (
	"path/filepath"
	"testing"
)

func TestNewAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")

	database, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Migrations are idempotent.
	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	tables := []string{"users", "sessions", "recipients", "messages", "mailings", "mailing_recipients", "mailing_attempts", "audit_log"}
	for _, table := range tables {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var enabled int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("PRAGMA foreign_keys error = %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", enabled)
	}
}

func TestStatusConstraint(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := database.Exec("INSERT INTO users (id, email) VALUES ('u1', 'u1@example.com')"); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := database.Exec("INSERT INTO messages (subject, owner_id) VALUES ('s', 'u1')"); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	_, err = database.Exec(`INSERT INTO mailings (start_time, end_time, status, message_id, owner_id)
		VALUES (datetime('now'), datetime('now'), 'paused', 1, 'u1')`)
	if err == nil {
		t.Error("insert with unknown status should fail")
	}
}
