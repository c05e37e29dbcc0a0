package check

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timgluz/autoprocess/timeseries"
)

func TestParseDeltaT(t *testing.T) {
	testCases := []struct {
		input    string
		expected time.Duration
		valid    bool
	}{
		{"10min", 10 * time.Minute, true},
		{"1H", time.Hour, true},
		{"2D", 48 * time.Hour, true},
		{"min", 0, false},
		{"H", 0, false},
		{"0min", 0, false},
		{"-10min", 0, false},
		{"10M", 0, false},
		{"10 min", 0, false},
		{"", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			d, err := ParseDeltaT(tc.input)
			assert.Equal(t, tc.valid, IsDeltaTValid(tc.input))
			if !tc.valid {
				assert.ErrorIs(t, err, ErrInvalidDeltaT)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, d)
		})
	}
}

func TestParseThresholds(t *testing.T) {
	thresholds, err := ParseThresholds("10min\t7.5\n1H 25\n  2D   40.0 \n")
	require.NoError(t, err)
	assert.Equal(t, []Threshold{
		{DeltaT: "10min", AllowedDiff: 7.5},
		{DeltaT: "1H", AllowedDiff: 25},
		{DeltaT: "2D", AllowedDiff: 40},
	}, thresholds)

	empty, err := ParseThresholds("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseThresholdsErrors(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		message string
	}{
		{"garbage", "garbage", `Error in line 1: "garbage" is not a valid (delta_t, allowed_diff) pair`},
		{"bad unit", "10min 5\n10M 3", `Error in line 2: "10M 3" is not a valid (delta_t, allowed_diff) pair`},
		{"bad number", "10min five", `Error in line 1: "10min five" is not a valid (delta_t, allowed_diff) pair`},
		{"too many fields", "10min 5 6", `Error in line 1: "10min 5 6" is not a valid (delta_t, allowed_diff) pair`},
		{"negative", "10min -5", `Error in line 1: "10min -5" is not a valid (delta_t, allowed_diff) pair`},
		{"duplicate", "60min 5\n1H 3", `Error in line 2: "1H 3" repeats the delta_t of a previous line`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseThresholds(tc.text)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.message, err.Error())
		})
	}
}

func TestThresholdsTextRoundTrip(t *testing.T) {
	c, err := NewRateOfChangeCheck(true)
	require.NoError(t, err)
	require.NoError(t, c.SetThresholdsText("1H\t25\n10min\t7.5"))

	assert.Equal(t, "10min\t7.5\n1H\t25.0", c.ThresholdsText())
	assert.Equal(t, "10min", c.Thresholds()[0].DeltaT)
}

func TestNewRateOfChangeCheckErrors(t *testing.T) {
	_, err := NewRateOfChangeCheck(true, Threshold{DeltaT: "10", AllowedDiff: 1})
	assert.ErrorIs(t, err, ErrInvalidDeltaT)

	_, err = NewRateOfChangeCheck(true, Threshold{DeltaT: "1D", AllowedDiff: 1}, Threshold{DeltaT: "24H", AllowedDiff: 2})
	assert.ErrorIs(t, err, ErrDuplicateDeltaT)

	_, err = NewRateOfChangeCheck(true, Threshold{DeltaT: "1D", AllowedDiff: -1})
	assert.ErrorIs(t, err, ErrNegativeAllowed)
}

func TestRateOfChangeCheck(t *testing.T) {
	// records are 10 minutes apart
	values := []float64{10, 30, 25, nan, 24, 12, 14}
	flags := []string{"", "", "X", "", "", "", ""}

	testCases := []struct {
		name           string
		symmetric      bool
		thresholds     []Threshold
		expectedValues []float64
		expectedFlags  []string
	}{
		{
			name:           "symmetric",
			symmetric:      true,
			thresholds:     []Threshold{{DeltaT: "10min", AllowedDiff: 10}},
			expectedValues: []float64{10, nan, 25, nan, 24, nan, 14},
			expectedFlags:  []string{"", "TEMPORAL", "X", "", "", "TEMPORAL", ""},
		},
		{
			name:           "upward only",
			symmetric:      false,
			thresholds:     []Threshold{{DeltaT: "10min", AllowedDiff: 10}},
			expectedValues: []float64{10, nan, 25, nan, 24, 12, 14},
			expectedFlags:  []string{"", "TEMPORAL", "X", "", "", "", ""},
		},
		{
			name:      "several thresholds flag once",
			symmetric: true,
			thresholds: []Threshold{
				{DeltaT: "20min", AllowedDiff: 10},
				{DeltaT: "10min", AllowedDiff: 10},
			},
			expectedValues: []float64{10, nan, nan, nan, 24, nan, 14},
			expectedFlags:  []string{"", "TEMPORAL", "X TEMPORAL", "", "", "TEMPORAL", ""},
		},
		{
			name:           "no comparison point",
			symmetric:      true,
			thresholds:     []Threshold{{DeltaT: "15min", AllowedDiff: 0}},
			expectedValues: values,
			expectedFlags:  flags,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewRateOfChangeCheck(tc.symmetric, tc.thresholds...)
			require.NoError(t, err)

			frame := frameOf(values, flags)
			c.Process(frame)

			assertValues(t, tc.expectedValues, frame)
			assert.Equal(t, tc.expectedFlags, flagsOf(frame))
		})
	}
}

func TestRateOfChangeCheckEmptyFrame(t *testing.T) {
	c, err := NewRateOfChangeCheck(true, Threshold{DeltaT: "10min", AllowedDiff: 1})
	require.NoError(t, err)

	frame := timeseries.NewFrame()
	c.Process(frame)
	assert.True(t, frame.IsEmpty())
}
