package timeseries

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryRepository is an in-process Store.
type MemoryRepository struct {
	mu      sync.RWMutex
	series  map[string]Timeseries
	records map[string][]Record
	logger  *slog.Logger
}

var _ Store = (*MemoryRepository)(nil)

func NewMemoryRepository(logger *slog.Logger) *MemoryRepository {
	return &MemoryRepository{
		series:  make(map[string]Timeseries),
		records: make(map[string][]Record),
		logger:  logger,
	}
}

func (r *MemoryRepository) IsReady() bool {
	return r.series != nil && r.records != nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) GetTimeseries(ctx context.Context, id string) (*Timeseries, error) {
	defer ctx.Done()

	r.mu.RLock()
	defer r.mu.RUnlock()

	ts, ok := r.series[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &ts, nil
}

func (r *MemoryRepository) AddTimeseries(ctx context.Context, timeseries *Timeseries) error {
	defer ctx.Done()

	if timeseries == nil || timeseries.ID == "" {
		return fmt.Errorf("timeseries must have an ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.series[timeseries.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, timeseries.ID)
	}
	r.series[timeseries.ID] = *timeseries
	r.logger.Debug("Timeseries added", "timeseries_id", timeseries.ID)
	return nil
}

func (r *MemoryRepository) ListTimeseries(ctx context.Context) ([]Timeseries, error) {
	defer ctx.Done()

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Timeseries, 0, len(r.series))
	for _, ts := range r.series {
		items = append(items, ts)
	}
	slices.SortFunc(items, func(a, b Timeseries) int {
		return strings.Compare(a.ID, b.ID)
	})
	return items, nil
}

func (r *MemoryRepository) GetData(ctx context.Context, id string, start time.Time) (*Frame, error) {
	defer ctx.Done()

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.series[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return NewFrame(r.records[id]...).Since(start), nil
}

func (r *MemoryRepository) AppendData(ctx context.Context, id string, frame *Frame) error {
	defer ctx.Done()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.series[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	current := r.records[id]
	var end time.Time
	if len(current) > 0 {
		end = current[len(current)-1].Timestamp
	}
	if err := CheckAppend(end, frame); err != nil {
		r.logger.Error("Rejected append", "timeseries_id", id, "error", err)
		return err
	}
	if frame.IsEmpty() {
		return nil
	}

	r.records[id] = append(current, frame.Records...)
	r.logger.Debug("Records appended", "timeseries_id", id, "count", frame.Len())
	return nil
}

func (r *MemoryRepository) EndDate(ctx context.Context, id string) (time.Time, error) {
	defer ctx.Done()

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.series[id]; !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	records := r.records[id]
	if len(records) == 0 {
		return time.Time{}, nil
	}
	return records[len(records)-1].Timestamp, nil
}
