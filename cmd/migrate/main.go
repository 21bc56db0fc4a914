package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/halderavik/cbc-design-MCP/internal/config"
	"github.com/halderavik/cbc-design-MCP/internal/logger"
)

// migrationLogger forwards golang-migrate output to slog
type migrationLogger struct {
	log     *slog.Logger
	verbose bool
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...))
}

func (l migrationLogger) Verbose() bool {
	return l.verbose
}

func run(log *slog.Logger, m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		log.Info("Running migrations up...")
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("Migrations completed successfully")

	case "down":
		log.Info("Rolling back one migration...")
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		log.Info("Rollback completed successfully")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		log.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force command requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[0], err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		log.Info("Forced version", "version", version)

	default:
		return fmt.Errorf("unknown command: %s (use: up, down, version, force)", command)
	}
	return nil
}

func main() {
	var databaseURL, migrationsPath, command, configPath string
	var verbose bool

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to the configured database.url / DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.StringVar(&configPath, "config", "", "Config file (defaults to $CBC_CONFIG or cbc.yaml)")
	flag.BoolVar(&verbose, "verbose", false, "Log every migration step")
	flag.Parse()

	opts := logger.OptionsFromEnv()
	opts.ServiceName = "cbc-migrate"
	log := logger.Setup(opts)

	if databaseURL == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			logger.Fatal(log, "Failed to load configuration", "error", err)
		}
		databaseURL = cfg.Database.URL
	}
	if databaseURL == "" {
		logger.Fatal(log, "Database URL is required. Use -database flag or DATABASE_URL environment variable")
	}

	log.Info("Connecting to database...", "migrations", migrationsPath)
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		logger.Fatal(log, "Failed to create migration instance", "error", err)
	}
	m.Log = migrationLogger{log: log, verbose: verbose}

	err = run(log, m, command, flag.Args())
	srcErr, dbErr := m.Close()
	if err != nil {
		logger.Fatal(log, "Migration failed", "command", command, "error", err)
	}
	if srcErr != nil || dbErr != nil {
		log.Warn("Failed to close migration instance", "source_error", srcErr, "database_error", dbErr)
	}
}
