package core

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// newMigrator opens the embedded migrations against databaseURL.
func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("open migrator: %w", err)
	}
	return m, nil
}

// migrationURL rewrites a postgres URL to the pgx5 scheme the migrate
// driver registers. Other strings are returned unchanged.
func migrationURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// Migrate applies every pending migration.
func (s *Service) Migrate(ctx context.Context) error {
	return s.runMigration(ctx, "up", (*migrate.Migrate).Up)
}

// MigrateDown reverts every applied migration.
func (s *Service) MigrateDown(ctx context.Context) error {
	return s.runMigration(ctx, "down", (*migrate.Migrate).Down)
}

func (s *Service) runMigration(ctx context.Context, direction string, run func(*migrate.Migrate) error) error {
	m, err := newMigrator(s.cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("closing migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := run(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("schema migrated", "direction", direction, "version", "none")
	case err != nil:
		slog.Warn("unable to read schema version", "error", err)
	case dirty:
		return fmt.Errorf("migrate %s: database is dirty at version %d", direction, version)
	default:
		slog.Info("schema migrated", "direction", direction, "version", version)
	}
	return nil
}
