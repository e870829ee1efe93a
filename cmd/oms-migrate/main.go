package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/foundry/oms/internal/config"
	"github.com/foundry/oms/internal/migrate"
)

func main() {
	cfg, cfgErr := config.Load()

	driver := flag.String("driver", driverDefault(cfg), "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string (overrides STORE_* env vars)")
	help := flag.Bool("help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ontology store database migration tool.\n\n")
		fmt.Fprintf(os.Stderr, "Reads STORE_DRIVER/STORE_ENDPOINT/STORE_USER/STORE_KEY/STORE_DB from the\n")
		fmt.Fprintf(os.Stderr, "environment by default; -driver/-dsn override them.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  PostgreSQL:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=postgres -dsn=\"host=localhost user=oms password=oms dbname=oms port=5432 sslmode=disable\"\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  SQLite:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=sqlite -dsn=\"oms.db\"\n\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	if *dsn == "" {
		if cfgErr != nil {
			log.Fatalf("Error: -dsn not given and environment config is invalid: %v\n", cfgErr)
		}
		*dsn = dsnFromConfig(cfg)
	}

	if *driver != "postgres" && *driver != "sqlite" {
		log.Fatalf("Error: unsupported driver %q (must be 'postgres' or 'sqlite')\n", *driver)
	}

	log.Printf("Connecting to %s database...\n", *driver)
	sqlDB, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v\n", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v\n", err)
	}
	log.Printf("Connected to database\n")

	log.Printf("Running migrations...\n")
	if err := migrate.RunMigrations(sqlDB, *driver); err != nil {
		log.Fatalf("Migration failed: %v\n", err)
	}

	log.Printf("All migrations completed successfully\n")
}

func driverDefault(cfg *config.Config) string {
	if cfg == nil {
		return "postgres"
	}
	return cfg.Store.Driver
}

// dsnFromConfig builds a driver-appropriate DSN from the loaded
// environment config, mirroring internal/db.New's dialector setup so
// this standalone tool connects the same way the server does.
func dsnFromConfig(cfg *config.Config) string {
	if cfg.Store.Driver == "sqlite" {
		return cfg.Store.Endpoint
	}
	host, port, err := net.SplitHostPort(cfg.Store.Endpoint)
	if err != nil {
		host, port = cfg.Store.Endpoint, "5432"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, cfg.Store.User, cfg.Store.Key, cfg.Store.DB)
}
