// Package spinsql opens a timeseries.SQLRepository on a Spin SQLite database.
package spinsql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spinframework/spin-go-sdk/v2/sqlite"

	"github.com/timgluz/autoprocess/timeseries"
)

// NewRepository opens the named Spin SQLite database and makes sure the
// schema exists.
func NewRepository(ctx context.Context, dbName string, logger *slog.Logger) (*timeseries.SQLRepository, error) {
	db := sqlite.Open(dbName)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping Spin SQLite DB %s: %w", dbName, err)
	}

	repo, err := timeseries.NewSQLRepository(db, logger)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}
