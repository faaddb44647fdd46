package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the users table applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// A file rather than :memory: so WAL mode works.
	dbPath := filepath.Join(t.TempDir(), "auth-test.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id            TEXT    PRIMARY KEY,
			username      TEXT    NOT NULL UNIQUE,
			display_name  TEXT    NOT NULL DEFAULT '',
			password_hash TEXT    NOT NULL,
			role          TEXT    NOT NULL CHECK (role IN ('admin', 'reseller', 'support')),
			area_id       INTEGER,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT    NOT NULL,
			updated_at    TEXT    NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("applying users schema: %v", err)
	}

	return db
}

// seedTestUser inserts an active user with password "test-password".
func seedTestUser(t *testing.T, db *sql.DB, username string, role Role, areaID *int64) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
		Role:         role,
		AreaID:       areaID,
		IsActive:     true,
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}
