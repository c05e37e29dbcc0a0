package timeseries

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLRepository is a Store backed by a SQLite-compatible database/sql handle.
// The driver is chosen by the caller: modernc.org/sqlite for the daemon,
// the spin sqlite driver inside the wasm component.
type SQLRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLRepository)(nil)

func NewSQLRepository(db *sql.DB, logger *slog.Logger) (*SQLRepository, error) {
	if db == nil {
		logger.Error("SQL DB is not initialized")
		return nil, ErrDBNotAvailable
	}

	return &SQLRepository{
		db:     db,
		logger: logger,
	}, nil
}

// Migrate creates the tables if they do not exist yet.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	// one statement per Exec, not every driver accepts batches
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			r.logger.Error("Failed to apply schema", "error", err)
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *SQLRepository) IsReady() bool {
	if r.db == nil {
		r.logger.Error("SQL DB is not initialized")
		return false
	}

	if err := r.db.Ping(); err != nil {
		r.logger.Error("SQL DB is not reachable", "error", err)
		return false
	}
	return true
}

func (r *SQLRepository) Close() error {
	if r.db == nil {
		return ErrDBNotAvailable
	}

	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close SQL DB", "error", err)
		return err
	}

	r.logger.Info("SQL DB closed successfully")
	return nil
}

func (r *SQLRepository) GetTimeseries(ctx context.Context, id string) (*Timeseries, error) {
	query := `SELECT id, name, station_id, time_step, unit, description FROM timeseries WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	var ts Timeseries
	err := row.Scan(&ts.ID, &ts.Name, &ts.StationID, &ts.TimeStep, &ts.Unit, &ts.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to scan timeseries", "timeseries_id", id, "error", err)
		return nil, err
	}
	return &ts, nil
}

func (r *SQLRepository) AddTimeseries(ctx context.Context, timeseries *Timeseries) error {
	if timeseries == nil || timeseries.ID == "" {
		return fmt.Errorf("timeseries must have an ID")
	}

	if _, err := r.GetTimeseries(ctx, timeseries.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, timeseries.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	query := `INSERT INTO timeseries (id, name, station_id, time_step, unit, description) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, timeseries.ID, timeseries.Name, timeseries.StationID,
		timeseries.TimeStep, timeseries.Unit, timeseries.Description)
	if err != nil {
		r.logger.Error("Failed to insert timeseries", "timeseries_id", timeseries.ID, "error", err)
		return err
	}

	r.logger.Info("Timeseries added to database", "timeseries_id", timeseries.ID)
	return nil
}

func (r *SQLRepository) ListTimeseries(ctx context.Context) ([]Timeseries, error) {
	query := `SELECT id, name, station_id, time_step, unit, description FROM timeseries ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query timeseries", "error", err)
		return nil, err
	}
	defer rows.Close()

	var items []Timeseries
	for rows.Next() {
		var ts Timeseries
		if err := rows.Scan(&ts.ID, &ts.Name, &ts.StationID, &ts.TimeStep, &ts.Unit, &ts.Description); err != nil {
			r.logger.Error("Failed to scan timeseries", "error", err)
			return nil, err
		}
		items = append(items, ts)
	}
	return items, rows.Err()
}

func (r *SQLRepository) GetData(ctx context.Context, id string, start time.Time) (*Frame, error) {
	if _, err := r.GetTimeseries(ctx, id); err != nil {
		return nil, err
	}

	query := `SELECT timestamp, value, flags FROM timeseries_records
		WHERE timeseries_id = ? AND timestamp >= ? ORDER BY timestamp`
	from := int64(math.MinInt64)
	if !start.IsZero() {
		from = start.Unix()
	}

	rows, err := r.db.QueryContext(ctx, query, id, from)
	if err != nil {
		r.logger.Error("Failed to query records", "timeseries_id", id, "error", err)
		return nil, err
	}
	defer rows.Close()

	frame := NewFrame()
	for rows.Next() {
		var (
			epoch int64
			value sql.NullFloat64
			flags string
		)
		if err := rows.Scan(&epoch, &value, &flags); err != nil {
			r.logger.Error("Failed to scan record", "timeseries_id", id, "error", err)
			return nil, err
		}

		record := Record{Timestamp: time.Unix(epoch, 0).UTC(), Value: math.NaN(), Flags: flags}
		if value.Valid {
			record.Value = value.Float64
		}
		frame.Records = append(frame.Records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("Records retrieved", "timeseries_id", id, "count", frame.Len())
	return frame, nil
}

func (r *SQLRepository) AppendData(ctx context.Context, id string, frame *Frame) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM timeseries WHERE id = ?`, id)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	end, err := endDate(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := CheckAppend(end, frame); err != nil {
		r.logger.Error("Rejected append", "timeseries_id", id, "error", err)
		return err
	}
	if frame.IsEmpty() {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO timeseries_records (timeseries_id, timestamp, value, flags) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range frame.Records {
		var value sql.NullFloat64
		if !record.IsNull() {
			value = sql.NullFloat64{Float64: record.Value, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, record.Timestamp.Unix(), value, record.Flags); err != nil {
			r.logger.Error("Failed to insert record", "timeseries_id", id, "timestamp", record.Timestamp, "error", err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit records", "timeseries_id", id, "error", err)
		return err
	}

	r.logger.Debug("Records appended", "timeseries_id", id, "count", frame.Len())
	return nil
}

func (r *SQLRepository) EndDate(ctx context.Context, id string) (time.Time, error) {
	if _, err := r.GetTimeseries(ctx, id); err != nil {
		return time.Time{}, err
	}
	return endDate(ctx, r.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func endDate(ctx context.Context, q queryRower, id string) (time.Time, error) {
	var epoch sql.NullInt64
	row := q.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM timeseries_records WHERE timeseries_id = ?`, id)
	if err := row.Scan(&epoch); err != nil {
		return time.Time{}, err
	}
	if !epoch.Valid {
		return time.Time{}, nil
	}
	return time.Unix(epoch.Int64, 0).UTC(), nil
}
