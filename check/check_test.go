package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain(t *testing.T) {
	rangeCheck, err := NewRangeCheck(&Bounds{Lower: 0, Upper: 50}, nil)
	require.NoError(t, err)
	rocCheck, err := NewRateOfChangeCheck(true, Threshold{DeltaT: "10min", AllowedDiff: 10})
	require.NoError(t, err)

	chain := &Chain{Range: rangeCheck, RateOfChange: rocCheck}
	assert.Len(t, chain.Checks(), 2)

	// 99 is nulled by the range check, so neither it nor its neighbours are TEMPORAL
	frame := frameOf([]float64{10, 99, 12, 40}, []string{"", "", "", ""})
	chain.Process(frame)

	assertValues(t, []float64{10, nan, 12, nan}, frame)
	assert.Equal(t, []string{"", "RANGE", "", "TEMPORAL"}, flagsOf(frame))
}

func TestChainPartial(t *testing.T) {
	rocCheck, err := NewRateOfChangeCheck(false, Threshold{DeltaT: "10min", AllowedDiff: 1})
	require.NoError(t, err)

	chain := &Chain{RateOfChange: rocCheck}
	require.Len(t, chain.Checks(), 1)

	frame := frameOf([]float64{1, 5}, []string{"", ""})
	chain.Process(frame)
	assertValues(t, []float64{1, nan}, frame)

	empty := &Chain{}
	assert.Empty(t, empty.Checks())
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Line: 3, Text: "1H", Reason: reasonNotAThreshold}
	assert.Equal(t, `Error in line 3: "1H" is not a valid (delta_t, allowed_diff) pair`, err.Error())
}
