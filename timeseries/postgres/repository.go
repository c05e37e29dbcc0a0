package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/timgluz/autoprocess/timeseries"
)

// Repository implements timeseries.Store using PostgreSQL.
type Repository struct {
	pool   *Pool
	logger *slog.Logger
}

var _ timeseries.Store = (*Repository)(nil)

func NewRepository(pool *Pool, logger *slog.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

func (r *Repository) IsReady() bool {
	if r.pool == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		r.logger.Error("Postgres is not reachable", "error", err)
		return false
	}
	return true
}

func (r *Repository) Close() error {
	if r.pool == nil {
		return timeseries.ErrDBNotAvailable
	}
	r.pool.Close()
	return nil
}

func (r *Repository) GetTimeseries(ctx context.Context, id string) (*timeseries.Timeseries, error) {
	query := `SELECT id, name, station_id, time_step, unit, description FROM timeseries WHERE id = $1`

	var ts timeseries.Timeseries
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&ts.ID, &ts.Name, &ts.StationID, &ts.TimeStep, &ts.Unit, &ts.Description)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", timeseries.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get timeseries: %w", err)
	}
	return &ts, nil
}

func (r *Repository) AddTimeseries(ctx context.Context, ts *timeseries.Timeseries) error {
	if ts == nil || ts.ID == "" {
		return fmt.Errorf("timeseries must have an ID")
	}

	query := `
		INSERT INTO timeseries (id, name, station_id, time_step, unit, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, ts.ID, ts.Name, ts.StationID, ts.TimeStep, ts.Unit, ts.Description)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", timeseries.ErrAlreadyExists, ts.ID)
		}
		return fmt.Errorf("insert timeseries: %w", err)
	}

	r.logger.Info("Timeseries added to database", "timeseries_id", ts.ID)
	return nil
}

func (r *Repository) ListTimeseries(ctx context.Context) ([]timeseries.Timeseries, error) {
	query := `SELECT id, name, station_id, time_step, unit, description FROM timeseries ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query timeseries: %w", err)
	}
	defer rows.Close()

	var items []timeseries.Timeseries
	for rows.Next() {
		var ts timeseries.Timeseries
		if err := rows.Scan(&ts.ID, &ts.Name, &ts.StationID, &ts.TimeStep, &ts.Unit, &ts.Description); err != nil {
			return nil, fmt.Errorf("scan timeseries: %w", err)
		}
		items = append(items, ts)
	}
	return items, rows.Err()
}

func (r *Repository) GetData(ctx context.Context, id string, start time.Time) (*timeseries.Frame, error) {
	if _, err := r.GetTimeseries(ctx, id); err != nil {
		return nil, err
	}

	query := `SELECT timestamp, value, flags FROM timeseries_records WHERE timeseries_id = $1`
	args := []any{id}
	if !start.IsZero() {
		query += ` AND timestamp >= $2`
		args = append(args, start)
	}
	query += ` ORDER BY timestamp`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	frame := timeseries.NewFrame()
	for rows.Next() {
		var (
			ts    time.Time
			value *float64
			flags string
		)
		if err := rows.Scan(&ts, &value, &flags); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		record := timeseries.Record{Timestamp: ts.UTC(), Value: math.NaN(), Flags: flags}
		if value != nil {
			record.Value = *value
		}
		frame.Records = append(frame.Records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return frame, nil
}

// AppendData locks the timeseries row so concurrent appends to the same
// series are serialized; the end date check and the copy run in one transaction.
func (r *Repository) AppendData(ctx context.Context, id string, frame *timeseries.Frame) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM timeseries WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("%w: %s", timeseries.ErrNotFound, id)
		}
		return fmt.Errorf("lock timeseries: %w", err)
	}

	end, err := endDate(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := timeseries.CheckAppend(end, frame); err != nil {
		r.logger.Error("Rejected append", "timeseries_id", id, "error", err)
		return err
	}
	if frame.IsEmpty() {
		return nil
	}

	rows := make([][]any, 0, frame.Len())
	for _, record := range frame.Records {
		var value *float64
		if !record.IsNull() {
			v := record.Value
			value = &v
		}
		rows = append(rows, []any{id, record.Timestamp.UTC(), value, record.Flags})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"timeseries_records"},
		[]string{"timeseries_id", "timestamp", "value", "flags"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	r.logger.Debug("Records appended", "timeseries_id", id, "count", frame.Len())
	return nil
}

func (r *Repository) EndDate(ctx context.Context, id string) (time.Time, error) {
	if _, err := r.GetTimeseries(ctx, id); err != nil {
		return time.Time{}, err
	}
	return endDate(ctx, r.pool, id)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func endDate(ctx context.Context, q queryRower, id string) (time.Time, error) {
	var end *time.Time
	err := q.QueryRow(ctx, `SELECT MAX(timestamp) FROM timeseries_records WHERE timeseries_id = $1`, id).Scan(&end)
	if err != nil {
		return time.Time{}, fmt.Errorf("query end date: %w", err)
	}
	if end == nil {
		return time.Time{}, nil
	}
	return end.UTC(), nil
}
