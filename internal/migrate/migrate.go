// Package migrate applies the schema bootstrap DDL under sql/ with
// golang-migrate on process startup. This is distinct from the online
// embedding-dimension migration the migration worker performs against live
// data: this package is a one-way, idempotent, operator-triggered schema
// change; the migration worker is a background loop keyed off row counts.
// Conflating the two would be a correctness bug, so they share only a
// driver, not a code path.
package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
)

type Manager struct {
	db        *sqlx.DB
	sourceURL string
	timeout   time.Duration
	migrator  *migrate.Migrate
}

func NewManager(db *sqlx.DB, sourceURL string) *Manager {
	return &Manager{db: db, sourceURL: sourceURL, timeout: time.Minute}
}

func (m *Manager) init() error {
	driver, err := postgres.WithInstance(m.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	migrator, err := migrate.NewWithDatabaseInstance(m.sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	m.migrator = migrator
	return nil
}

// Up applies every pending migration, bounded by the manager's timeout.
// migrate.ErrNoChange is treated as success.
func (m *Manager) Up(ctx context.Context) error {
	if m.migrator == nil {
		if err := m.init(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.migrator.Up() }()

	select {
	case err := <-done:
		if err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("migration timed out after %s", m.timeout)
	}
}

func (m *Manager) Close() error {
	if m.migrator == nil {
		return nil
	}
	_, dbErr := m.migrator.Close()
	return dbErr
}
