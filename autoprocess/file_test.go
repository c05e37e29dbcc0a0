package autoprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFile = `
timeseries:
  - name: W
    station_id: rhein-mannheim
    time_step: 10min
    unit: cm
  - id: w-checked
    name: W checked
    station_id: rhein-mannheim
    time_step: 10min

definitions:
  - name: W checks
    kind: checks
    station_id: rhein-mannheim
    source_timeseries: rhein-mannheim-w
    target_timeseries: w-checked
    range_check:
      lower_bound: 0
      upper_bound: 1200
      soft_lower_bound: 50
      soft_upper_bound: 900
    rate_of_change_check:
      symmetric: true
      thresholds: |
        10min 25
        1H 60
  - id: w-hourly
    name: W hourly
    kind: aggregation
    station_id: rhein-mannheim
    source_timeseries: w-checked
    target_timeseries: w-hourly
    aggregation:
      target_time_step: 1H
      method: mean
      max_missing: 2
      resulting_timestamp_offset: 1min
`

func TestParseFile(t *testing.T) {
	file, err := ParseFile([]byte(testFile))
	require.NoError(t, err)

	require.Len(t, file.Timeseries, 2)
	assert.Equal(t, "rhein-mannheim-w", file.Timeseries[0].ID)
	assert.Equal(t, "cm", file.Timeseries[0].Unit)
	assert.Equal(t, "w-checked", file.Timeseries[1].ID)

	require.Len(t, file.Definitions, 2)
	checks := file.Definitions[0]
	assert.Equal(t, "w-checks", checks.ID)
	assert.Equal(t, KindChecks, checks.Kind)
	require.NotNil(t, checks.RangeCheck)
	assert.Equal(t, 900.0, *checks.RangeCheck.SoftUpperBound)
	require.NotNil(t, checks.RateOfChangeCheck)
	assert.True(t, checks.RateOfChangeCheck.Symmetric)

	hourly := file.Definitions[1]
	assert.Equal(t, "w-hourly", hourly.ID)
	require.NotNil(t, hourly.Aggregation)
	assert.Equal(t, 2, hourly.Aggregation.MaxMissing)
}

func TestParseFileErrors(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"unknown field", "definitions:\n  - name: x\n    colour: red\n"},
		{"invalid definition", "definitions:\n  - name: x\n    kind: range_check\n"},
		{"duplicate ids", `
definitions:
  - name: x
    kind: range_check
    station_id: s
    source_timeseries: a
    target_timeseries: b
    range_check: {lower_bound: 0, upper_bound: 1}
  - id: x
    name: other
    kind: range_check
    station_id: s
    source_timeseries: a
    target_timeseries: c
    range_check: {lower_bound: 0, upper_bound: 1}
`},
		{"malformed yaml", "definitions: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestParseFileEmpty(t *testing.T) {
	file, err := ParseFile(nil)
	require.NoError(t, err)
	assert.Empty(t, file.Definitions)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoprocess.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFile), 0o600))

	file, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, file.Definitions, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
