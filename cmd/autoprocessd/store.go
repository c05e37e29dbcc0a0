package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/timgluz/autoprocess/config"
	"github.com/timgluz/autoprocess/timeseries"
	"github.com/timgluz/autoprocess/timeseries/postgres"
)

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (timeseries.Store, error) {
	logger = logger.With("store", cfg.Driver)

	switch cfg.Driver {
	case config.StoreMemory:
		logger.Warn("Using in-memory time series store, data is lost on restart")
		return timeseries.NewMemoryRepository(logger), nil
	case config.StoreSQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)

		repo, err := timeseries.NewSQLRepository(db, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewRepository(pool, logger), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
