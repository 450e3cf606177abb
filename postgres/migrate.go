package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	outbox "github.com/velmie/txoutbox"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded migrations that create the outbox_message table.
func Migrate(db *sql.DB, logger outbox.Logger) error {
	if logger == nil {
		logger = outbox.NopLogger{}
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("outbox postgres: migration source failed: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "outbox_schema_migrations"})
	if err != nil {
		return fmt.Errorf("outbox postgres: migration driver failed: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("outbox postgres: migration instance failed: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("outbox postgres: no new migrations")
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("outbox postgres: dirty database version %d", dirtyErr.Version)
		}

		return fmt.Errorf("outbox postgres: migration failed: %w", err)
	}
	logger.Info("outbox postgres: migrations applied")

	return nil
}

// MigrateDSN opens a lib/pq connection to dsn and applies the embedded migrations.
func MigrateDSN(dsn string, logger outbox.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("outbox postgres: open failed: %w", err)
	}
	defer db.Close()

	return Migrate(db, logger)
}
