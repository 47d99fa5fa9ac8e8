package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"uah-rates-bot/internal/config"
	"uah-rates-bot/migrations"
)

// Migrate runs a schema migration command against the configured backend
// without building a Store and returns the resulting schema version.
func Migrate(ctx context.Context, cfg config.StorageConfig, cmd string, logger zerolog.Logger) (int64, error) {
	db, dialect, closeFn, err := openMigrationDB(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	if err := migrations.Command(db, dialect, cmd, logger); err != nil {
		return 0, err
	}
	return migrations.Version(db, dialect)
}

func openMigrationDB(ctx context.Context, cfg config.StorageConfig) (*sql.DB, string, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := openSQLiteDB(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, "", nil, err
		}
		return db, migrations.DialectSQLite, func() { _ = db.Close() }, nil
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, "", nil, err
		}
		db := stdlib.OpenDBFromPool(pool)
		return db, migrations.DialectPostgres, func() {
			_ = db.Close()
			pool.Close()
		}, nil
	}
	return nil, "", nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}
