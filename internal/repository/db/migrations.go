package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func MigrateUp(migrationsURL, conn string) error {
	m, err := migrate.New(migrationsURL, conn)
	if err != nil {
		return fmt.Errorf("db.MigrateUp: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db.MigrateUp: %w", err)
	}
	return nil
}

func MigrateDown(migrationsURL, conn string) error {
	m, err := migrate.New(migrationsURL, conn)
	if err != nil {
		return fmt.Errorf("db.MigrateDown: %w", err)
	}
	defer m.Close()

	err = m.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("db.MigrateDown: %w", err)
	}
	return nil
}
