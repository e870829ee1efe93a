// Package migrate runs the version store's embedded SQL migrations.
// Structure is adapted directly from the teacher's internal/migrate
// package: core migrations apply to both dialects, followed by a small
// set of driver-specific enhancement files (jsonb GIN and partial
// indexes on postgres, PRAGMAs on sqlite).
package migrate

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql migrations/db-specific/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending core migrations, then the
// driver-specific enhancements, for the given database driver.
func RunMigrations(db *sql.DB, driver string) error {
	if driver != "postgres" && driver != "sqlite" {
		return fmt.Errorf("migrate: unsupported database driver: %s (supported: postgres, sqlite)", driver)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate: loading migration source: %w", err)
	}

	var databaseDriver database.Driver
	switch driver {
	case "postgres":
		databaseDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		databaseDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("migrate: creating %s driver: %w", driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, databaseDriver)
	if err != nil {
		return fmt.Errorf("migrate: creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate: core migration failed: %w", err)
	}

	if err := applyDatabaseSpecificMigrations(db, driver); err != nil {
		return fmt.Errorf("migrate: database-specific migrations failed: %w", err)
	}

	return nil
}

// applyDatabaseSpecificMigrations applies the one-shot, non-versioned
// enhancement files for the active driver. These are plain SQL scripts
// rather than golang-migrate steps because they're additive
// (CREATE INDEX IF NOT EXISTS, PRAGMA) and safe to re-run.
func applyDatabaseSpecificMigrations(db *sql.DB, driver string) error {
	var files []string
	switch driver {
	case "postgres":
		files = []string{"db-specific/000002_postgres_extras.up.sql"}
	case "sqlite":
		files = []string{"db-specific/000002_sqlite_extras.up.sql"}
	}

	for _, f := range files {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			continue
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("applying %s: %w", f, err)
		}
	}

	return nil
}

// Version returns the current migration version for the given driver.
func Version(db *sql.DB, driver string) (version uint, dirty bool, err error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("migrate: loading migration source: %w", err)
	}

	var databaseDriver database.Driver
	switch driver {
	case "postgres":
		databaseDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		databaseDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return 0, false, fmt.Errorf("migrate: unsupported database driver: %s", driver)
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrate: creating %s driver: %w", driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, databaseDriver)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: creating migration instance: %w", err)
	}

	return m.Version()
}
