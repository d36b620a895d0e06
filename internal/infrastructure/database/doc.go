// Package database provides the SQLite connection used by the journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Versioned schema migrations read from any fs.FS
//   - Health checks and lifecycle
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Journal.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive and forward-only: new columns are NULLABLE or have
// defaults, and there is no rollback.
package database
