package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_120000_create_sites.up.sql": {
			Data: []byte("CREATE TABLE test_sites (id INTEGER PRIMARY KEY, name TEXT NOT NULL);"),
		},
		"20260301_120000_create_sites.down.sql": {
			Data: []byte("DROP TABLE test_sites;"),
		},
		"20260302_090000_add_links.up.sql": {
			Data: []byte(`CREATE TABLE test_links (
				id INTEGER PRIMARY KEY,
				site_id INTEGER NOT NULL REFERENCES test_sites(id) ON DELETE CASCADE
			);
			CREATE INDEX idx_test_links_site ON test_links(site_id);`),
		},
		"20260302_090000_add_links.down.sql": {
			Data: []byte("DROP TABLE test_links;"),
		},
		"README.md": {Data: []byte("ignored")},
	}
}

// useMigrations swaps the package migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = fsys
	MigrationsDir = "."
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_sites", "test_links"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	status, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(status.Applied))
	}
	if len(status.Pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(status.Pending))
	}
	if status.Current() != "20260302_090000" {
		t.Errorf("Current() = %q, want 20260302_090000", status.Current())
	}

	// Idempotent.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_links") {
		t.Error("table test_links should have been dropped")
	}
	if !tableExists(t, db, "test_sites") {
		t.Error("only the latest migration should be rolled back")
	}

	status, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 1 || len(status.Pending) != 1 {
		t.Errorf("status = %d applied / %d pending, want 1 / 1", len(status.Applied), len(status.Pending))
	}
}

func TestMigrateDown_MissingDownSQL(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260301_120000_one_way.up.sql": {Data: []byte("CREATE TABLE one_way (id INTEGER);")},
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() should fail without down SQL")
	}
}

func TestMigrate_FailureRollsBackOnlyFailingMigration(t *testing.T) {
	fsys := testMigrations()
	fsys["20260303_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE oops (")}
	useMigrations(t, fsys)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on broken SQL")
	}

	status, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 2 {
		t.Errorf("expected earlier migrations to stay applied, got %d", len(status.Applied))
	}
	if len(status.Pending) != 1 {
		t.Errorf("expected broken migration to remain pending, got %d", len(status.Pending))
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestGetMigrationStatus_Fresh(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)

	status, err := db.GetMigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 0 {
		t.Errorf("expected 0 applied, got %d", len(status.Applied))
	}
	if len(status.Pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(status.Pending))
	}
	if status.Current() != "" {
		t.Errorf("Current() = %q, want empty", status.Current())
	}
}

func TestParseMigrationFile(t *testing.T) {
	tests := []struct {
		filename string
		want     migrationFile
		wantOk   bool
	}{
		{"20260301_120000_initial_schema.up.sql", migrationFile{"20260301_120000", "initial_schema", true}, true},
		{"20260301_120000_initial_schema.down.sql", migrationFile{"20260301_120000", "initial_schema", false}, true},
		{"20260310_080000_add_area_to_audit_logs.up.sql", migrationFile{"20260310_080000", "add_area_to_audit_logs", true}, true},
		{"readme.txt", migrationFile{}, false},
		{"20260301_120000_initial_schema.sql", migrationFile{}, false},
		{"invalid.up.sql", migrationFile{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := parseMigrationFile(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && got != tt.want {
				t.Errorf("parseMigrationFile(%q) = %+v, want %+v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestLoadMigrations_IgnoresOrphanDownFile(t *testing.T) {
	fsys := testMigrations()
	fsys["20260304_000000_gone.down.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	useMigrations(t, fsys)

	got, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Name != "create_sites" || got[0].DownSQL == "" {
		t.Errorf("first migration = %+v", got[0])
	}
}
