package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ignite/engagement-engine/internal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies pending migrations. It is idempotent.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	// m.Close is not called: the postgres driver closes the shared *sql.DB.
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply", "component", "migrate")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations applied", "component", "migrate", "version", version, "dirty", dirty)
	return nil
}
