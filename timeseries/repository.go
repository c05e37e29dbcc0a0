package timeseries

import (
	"context"
	"fmt"
	"time"
)

var (
	ErrNotFound          = fmt.Errorf("timeseries not found")
	ErrAlreadyExists     = fmt.Errorf("timeseries already exists")
	ErrInvalidFrame      = fmt.Errorf("invalid frame")
	ErrAppendNotAfterEnd = fmt.Errorf("appended records must be after the end of the series")
	ErrDBNotAvailable    = fmt.Errorf("timeseries DB is not available")
)

// Store keeps time series metadata and their records.
type Store interface {
	GetTimeseries(ctx context.Context, id string) (*Timeseries, error)
	AddTimeseries(ctx context.Context, timeseries *Timeseries) error
	ListTimeseries(ctx context.Context) ([]Timeseries, error)

	// GetData returns the records with timestamp >= start; a zero start returns everything.
	GetData(ctx context.Context, id string, start time.Time) (*Frame, error)
	// AppendData stores records strictly after the current end of the series.
	// Either every record is stored or none is.
	AppendData(ctx context.Context, id string, frame *Frame) error
	// EndDate returns the last timestamp of the series, or the zero time if it has no records.
	EndDate(ctx context.Context, id string) (time.Time, error)

	// IsReady checks if the store is ready for operations.
	IsReady() bool
	Close() error
}

// CheckAppend validates a frame that is about to be appended after end.
func CheckAppend(end time.Time, frame *Frame) error {
	if frame == nil {
		return fmt.Errorf("%w: frame cannot be nil", ErrInvalidFrame)
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	if frame.IsEmpty() || end.IsZero() {
		return nil
	}

	if !frame.StartDate().After(end) {
		return fmt.Errorf("%w: %s <= %s", ErrAppendNotAfterEnd,
			frame.StartDate().Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}
