package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds every schema change, registered from this package's init functions.
var Migrations = migrate.NewMigrations()

// BringUpToDate creates the bookkeeping tables when missing and applies everything pending. The
// returned group is zero when there was nothing to do.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to create migration tables")
	}

	if err := m.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to lock migrations")
	}
	defer m.Unlock(ctx) //nolint:errcheck

	group, err := m.Migrate(ctx)
	return group, errors.Wrap(err, "failed to migrate")
}
