// Package database provides SQLite connectivity for netdiag.
//
// This package manages:
//   - The connection (WAL mode, busy timeout, foreign keys on)
//   - Schema migrations loaded from an fs.FS
//   - Transaction and constraint-error helpers used by the stores
//
// The pool holds one connection. Code that opens a transaction must issue
// every statement on that *sql.Tx until it commits or rolls back.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql.
// New columns must be nullable or carry a default.
package database
