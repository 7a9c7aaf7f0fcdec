package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations brings the engine schema up to date from the .sql files in
// migrationsPath. Safe to run on every startup: a database that is already
// current is a no-op, a dirty version from an interrupted run is reported as
// an error before anything is applied.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("closing migrator",
				zap.NamedError("source", srcErr),
				zap.NamedError("database", dbErr))
		}
	}()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty, manual intervention required", from)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("engine schema up to date", zap.Uint("version", from))
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	to, _, _ := m.Version()
	logger.Info("engine schema migrated",
		zap.Uint("from", from),
		zap.Uint("to", to))
	return nil
}
