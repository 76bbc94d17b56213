package db

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies every pending up migration found in migratePath.
// Running it against an up-to-date schema is a no-op.
func Migration(dbDSN, migratePath string) error {
	if dbDSN == "" {
		return errors.New("migration: empty database DSN")
	}
	if migratePath == "" {
		return errors.New("migration: empty migrations path")
	}
	if _, err := os.Stat(migratePath); err != nil {
		return fmt.Errorf("migration: %w", err)
	}

	m, err := migrate.New("file://"+migratePath, dbDSN)
	if err != nil {
		return fmt.Errorf("migration: init: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}
