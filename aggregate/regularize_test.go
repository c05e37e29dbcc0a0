package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timgluz/autoprocess/timeseries"
)

func TestInferStep(t *testing.T) {
	testCases := []struct {
		name     string
		minutes  []int
		expected time.Duration
	}{
		{"regular", []int{0, 10, 20, 30}, 10 * time.Minute},
		{"one gap", []int{0, 10, 30, 40}, 10 * time.Minute},
		{"tie goes to smaller", []int{0, 10, 30}, 10 * time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame := timeseries.NewFrame()
			for _, m := range tc.minutes {
				frame.Records = append(frame.Records, timeseries.Record{Timestamp: at(10, m), Value: 1})
			}

			step, err := InferStep(frame)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, step)
		})
	}

	_, err := InferStep(timeseries.NewFrame(timeseries.Record{Timestamp: at(10, 0)}))
	assert.ErrorIs(t, err, ErrCannotInferStep)
}

func TestRegularize(t *testing.T) {
	frame := timeseries.NewFrame(
		timeseries.Record{Timestamp: at(10, 1), Value: 1, Flags: "A"},
		timeseries.Record{Timestamp: at(10, 4), Value: 2},
		timeseries.Record{Timestamp: at(10, 9), Value: 3},
		timeseries.Record{Timestamp: at(10, 31), Value: 4},
	)

	regular, err := Regularize(frame, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 4, regular.Len())

	assert.Equal(t, timeseries.Record{Timestamp: at(10, 0), Value: 1, Flags: "A"}, regular.Records[0])
	assert.Equal(t, timeseries.Record{Timestamp: at(10, 10), Value: 3}, regular.Records[1])
	assert.Equal(t, at(10, 20), regular.Records[2].Timestamp)
	assert.True(t, math.IsNaN(regular.Records[2].Value))
	assert.Equal(t, "DATEINSERT", regular.Records[2].Flags)
	assert.Equal(t, timeseries.Record{Timestamp: at(10, 30), Value: 4}, regular.Records[3])
}

func TestRegularizeEmpty(t *testing.T) {
	regular, err := Regularize(timeseries.NewFrame(), time.Minute)
	require.NoError(t, err)
	assert.True(t, regular.IsEmpty())

	_, err = Regularize(timeseries.NewFrame(), 0)
	assert.ErrorIs(t, err, ErrInvalidTimeStep)
}

func TestRegularizeRefusesHugeGrid(t *testing.T) {
	// one-minute spacing is the most frequent, but the window spans three years
	frame := timeseries.NewFrame(
		timeseries.Record{Timestamp: at(10, 0), Value: 1},
		timeseries.Record{Timestamp: at(10, 1), Value: 2},
		timeseries.Record{Timestamp: at(10, 2), Value: 3},
		timeseries.Record{Timestamp: at(10, 2).AddDate(3, 0, 0), Value: 4},
	)

	step, err := InferStep(frame)
	require.NoError(t, err)
	require.Equal(t, time.Minute, step)

	_, err = Regularize(frame, step)
	assert.ErrorIs(t, err, ErrWindowTooLarge)

	a, err := New("D", Mean, 0, "")
	require.NoError(t, err)
	_, err = a.Process(frame, 0)
	assert.ErrorIs(t, err, ErrWindowTooLarge)

	// the same window on a daily grid stays small
	regular, err := Regularize(frame, 24*time.Hour)
	require.NoError(t, err)
	assert.Less(t, regular.Len(), 1200)
}
