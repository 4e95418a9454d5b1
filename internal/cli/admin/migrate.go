package admin

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloo-solutions/medicalchat/internal/config"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		Long: `Apply all pending migrations, or roll back with --down.

Examples:
  medchatd migrate
  medchatd migrate --down 1`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Int("down", 0, "Roll back this many migrations instead of applying")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	down, _ := cmd.Flags().GetInt("down")
	if down > 0 {
		return rollbackMigrations(cfg.DatabaseURL, cfg.MigrationsURL, down, log)
	}
	return runMigrations(cfg.DatabaseURL, cfg.MigrationsURL, log)
}

func newMigrator(databaseURL, sourceURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, func() { _ = db.Close() }, nil
}

func runMigrations(databaseURL, sourceURL string, log *logger.Logger) error {
	m, closeDB, err := newMigrator(databaseURL, sourceURL)
	if err != nil {
		return err
	}
	defer closeDB()

	applyErr := m.Up()
	if applyErr != nil && !errors.Is(applyErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", applyErr)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info("migrations: no migrations applied")
	case err != nil:
		return fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	case errors.Is(applyErr, migrate.ErrNoChange):
		log.Info("migrations: database is up to date", "version", version)
	default:
		log.Info("migrations: applied successfully", "version", version)
	}

	return nil
}

func rollbackMigrations(databaseURL, sourceURL string, steps int, log *logger.Logger) error {
	m, closeDB, err := newMigrator(databaseURL, sourceURL)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	log.Info("migrations: rolled back", "steps", steps)
	return nil
}
