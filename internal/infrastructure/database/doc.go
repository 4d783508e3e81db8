// Package database provides SQLite connectivity for AdvisorPro.
//
// This package manages:
//   - Database connection with WAL mode and foreign keys
//   - Forward-only schema migrations from an fs.FS
//   - Connection pool limits matching SQLite's single writer
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600
//   - Passwords and refresh secrets are stored only as Argon2id digests
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
