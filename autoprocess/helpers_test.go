package autoprocess

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timgluz/autoprocess/timeseries"
)

const testStation = "rhein-mannheim"

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func float(v float64) *float64 {
	return &v
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 1, hour, minute, 0, 0, time.UTC)
}

func records(start time.Time, step time.Duration, values ...float64) []timeseries.Record {
	out := make([]timeseries.Record, len(values))
	for i, v := range values {
		out[i] = timeseries.Record{Timestamp: start.Add(time.Duration(i) * step), Value: v}
	}
	return out
}

// newTestStore returns a store holding the series "raw", "checked",
// "rescaled" and "hourly" of the test station.
func newTestStore(t *testing.T) *timeseries.MemoryRepository {
	t.Helper()

	store := timeseries.NewMemoryRepository(testLogger())
	for _, ts := range []timeseries.Timeseries{
		{ID: "raw", Name: "W", StationID: testStation, TimeStep: "10min"},
		{ID: "checked", Name: "W checked", StationID: testStation, TimeStep: "10min"},
		{ID: "rescaled", Name: "Q", StationID: testStation, TimeStep: "10min"},
		{ID: "hourly", Name: "W hourly", StationID: testStation, TimeStep: "1H"},
		{ID: "elsewhere", Name: "W", StationID: "koeln"},
	} {
		require.NoError(t, store.AddTimeseries(context.Background(), &ts))
	}
	return store
}

func rangeCheckDefinition() Definition {
	return Definition{
		ID:        "raw-range",
		Name:      "Raw range",
		Kind:      KindRangeCheck,
		StationID: testStation,
		SourceID:  "raw",
		TargetID:  "checked",
		RangeCheck: &RangeCheckConfig{
			LowerBound: float(3),
			UpperBound: float(5),
		},
	}
}

func assertValues(t *testing.T, expected []float64, frame *timeseries.Frame) {
	t.Helper()

	actual := frame.Values()
	require.Len(t, actual, len(expected))
	for i := range expected {
		if math.IsNaN(expected[i]) {
			assert.True(t, math.IsNaN(actual[i]), "value %d: expected NaN, got %v", i, actual[i])
			continue
		}
		assert.InDelta(t, expected[i], actual[i], 1e-9, "value %d", i)
	}
}

func flags(frame *timeseries.Frame) []string {
	out := make([]string, frame.Len())
	for i, r := range frame.Records {
		out[i] = r.Flags
	}
	return out
}
