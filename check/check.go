// Package check validates time series values. Failing values are nulled
// and flagged; suspect values are only flagged.
package check

import (
	"fmt"

	"github.com/timgluz/autoprocess/timeseries"
)

const (
	FlagRange    = "RANGE"
	FlagSuspect  = "SUSPECT"
	FlagTemporal = "TEMPORAL"
)

// Check mutates the values and flags of a frame in place.
type Check interface {
	Process(frame *timeseries.Frame)
}

// Chain runs the configured checks in a fixed order: range check first,
// then rate of change. Later checks see the values nulled by earlier ones.
type Chain struct {
	Range        *RangeCheck
	RateOfChange *RateOfChangeCheck
}

var _ Check = (*Chain)(nil)

func (c *Chain) Checks() []Check {
	var checks []Check
	if c.Range != nil {
		checks = append(checks, c.Range)
	}
	if c.RateOfChange != nil {
		checks = append(checks, c.RateOfChange)
	}
	return checks
}

func (c *Chain) Process(frame *timeseries.Frame) {
	for _, check := range c.Checks() {
		check.Process(frame)
	}
}

// ValidationError reports a line of thresholds text that could not be parsed.
type ValidationError struct {
	Line   int // 1-based
	Text   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Error in line %d: \"%s\" %s", e.Line, e.Text, e.Reason)
}
