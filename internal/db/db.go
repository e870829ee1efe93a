// Package db bootstraps the GORM connection the store, repository, and
// outbox packages share. It mirrors the teacher's dual postgres/sqlite
// dialector selection (internal/db/db.go) but drives it from this
// service's own config.Store instead of a hermes-specific Postgres
// config, and runs the version-store's own embedded SQL migrations
// instead of the document-indexing schema.
package db

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/foundry/oms/internal/config"
	"github.com/foundry/oms/internal/migrate"
	"github.com/foundry/oms/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens a GORM connection per cfg.Store, runs the core SQL
// migrations, then AutoMigrates the bookkeeping tables listed in
// models.ModelsToAutoMigrate (which the core migration also creates).
func New(cfg config.Store) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		host, port, err := splitEndpoint(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("db: parsing STORE_ENDPOINT: %w", err)
		}
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, cfg.User, cfg.Key, cfg.DB)
		dialector = postgres.Open(dsn)

	case "sqlite":
		if cfg.Endpoint != "" && cfg.Endpoint != ":memory:" {
			if dir := filepath.Dir(cfg.Endpoint); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("db: creating sqlite directory: %w", err)
				}
			}
		}
		dialector = sqlite.Open(cfg.Endpoint)

	default:
		return nil, fmt.Errorf("db: unsupported driver %q (supported: postgres, sqlite)", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connecting: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: getting sql.DB: %w", err)
	}

	if err := migrate.RunMigrations(sqlDB, cfg.Driver); err != nil {
		return nil, fmt.Errorf("db: running migrations: %w", err)
	}

	if err := gdb.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return nil, fmt.Errorf("db: auto-migrating bookkeeping tables: %w", err)
	}

	return gdb, nil
}

// splitEndpoint parses STORE_ENDPOINT as host:port, defaulting to 5432
// when no port is given.
func splitEndpoint(endpoint string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, "5432", nil
	}
	return host, port, nil
}
