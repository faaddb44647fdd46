package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS holds the migration files. The migrations package registers
// its embedded files here at init; tests may substitute an fstest.MapFS.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "migrations"

// Migration is one versioned schema change, read from the pair
// {version}_{name}.up.sql and {version}_{name}.down.sql.
// Version has the form YYYYMMDD_HHMMSS.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// MigrationStatus splits the known migrations into applied and pending,
// both in version order.
type MigrationStatus struct {
	Applied []MigrationRecord
	Pending []Migration
}

// Current returns the most recently applied version, or "" on a fresh database.
func (s MigrationStatus) Current() string {
	if len(s.Applied) == 0 {
		return ""
	}
	return s.Applied[len(s.Applied)-1].Version
}

// Migrate applies every pending migration in version order, each in its own
// transaction. A failure leaves earlier migrations committed, so running
// Migrate again resumes at the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	status, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		err := db.applyScript(ctx, m.UpSQL,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			m.Version, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration. It is a no-op
// on a fresh database.
func (db *DB) MigrateDown(ctx context.Context) error {
	status, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}
	current := status.Current()
	if current == "" {
		return nil
	}

	known, err := loadMigrations()
	if err != nil {
		return err
	}
	i := sort.Search(len(known), func(i int) bool { return known[i].Version >= current })
	if i == len(known) || known[i].Version != current {
		return fmt.Errorf("migration %s not found in filesystem", current)
	}
	m := known[i]
	if m.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", current)
	}

	if err := db.applyScript(ctx, m.DownSQL, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
		return fmt.Errorf("rolling back migration %s: %w", m.Version, err)
	}
	return nil
}

// GetMigrationStatus reports applied and pending migrations, creating the
// schema_migrations table when it is missing.
func (db *DB) GetMigrationStatus(ctx context.Context) (MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return MigrationStatus{}, fmt.Errorf("creating migrations table: %w", err)
	}

	var status MigrationStatus
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return status, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var r MigrationRecord
		var at string
		if err := rows.Scan(&r.Version, &at); err != nil {
			return status, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		status.Applied = append(status.Applied, r)
		applied[r.Version] = true
	}
	if err := rows.Err(); err != nil {
		return status, fmt.Errorf("iterating migrations: %w", err)
	}

	known, err := loadMigrations()
	if err != nil {
		return status, err
	}
	for _, m := range known {
		if !applied[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// applyScript runs script and the schema_migrations bookkeeping statement
// in one transaction.
func (db *DB) applyScript(ctx context.Context, script, bookkeeping string, args ...any) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
		if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
			return fmt.Errorf("updating schema_migrations: %w", err)
		}
		return nil
	})
}

// loadMigrations reads MigrationsFS and returns the migrations that have an
// up file, oldest first. A missing directory means no migrations.
func loadMigrations() ([]Migration, error) {
	if MigrationsFS == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil //nolint:nilerr // no migrations directory
	}

	byVersion := map[string]*Migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := parseMigrationFile(e.Name())
		if !ok {
			continue
		}
		data, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		m := byVersion[f.version]
		if m == nil {
			m = &Migration{Version: f.version}
			byVersion[f.version] = m
		}
		if f.up {
			m.Name, m.UpSQL = f.name, string(data)
		} else {
			m.DownSQL = string(data)
		}
	}

	var out []Migration
	for _, m := range byVersion {
		if m.UpSQL != "" {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

type migrationFile struct {
	version string
	name    string
	up      bool
}

// parseMigrationFile splits "20260301_120000_initial_schema.up.sql" into
// its version, name and direction.
func parseMigrationFile(filename string) (migrationFile, bool) {
	var f migrationFile
	base, ok := strings.CutSuffix(filename, ".sql")
	if !ok {
		return f, false
	}
	if b, up := strings.CutSuffix(base, ".up"); up {
		base, f.up = b, true
	} else if b, down := strings.CutSuffix(base, ".down"); down {
		base = b
	} else {
		return f, false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return f, false
	}
	f.version = parts[0] + "_" + parts[1]
	if len(parts) == 3 {
		f.name = parts[2]
	}
	return f, true
}
