package check

import (
	"fmt"
	"math"

	"github.com/timgluz/autoprocess/timeseries"
)

var (
	ErrInvalidBounds   = fmt.Errorf("lower bound is greater than upper bound")
	ErrSoftWithoutHard = fmt.Errorf("soft bounds require hard bounds")
)

// Bounds is an inclusive value interval.
type Bounds struct {
	Lower float64
	Upper float64
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// RangeCheck nulls values outside the hard bounds and marks values outside
// the soft bounds as suspect.
type RangeCheck struct {
	Hard *Bounds
	Soft *Bounds
}

var _ Check = (*RangeCheck)(nil)

func NewRangeCheck(hard, soft *Bounds) (*RangeCheck, error) {
	if hard == nil && soft != nil {
		return nil, ErrSoftWithoutHard
	}
	for _, b := range []*Bounds{hard, soft} {
		if b != nil && b.Lower > b.Upper {
			return nil, fmt.Errorf("%w: [%v, %v]", ErrInvalidBounds, b.Lower, b.Upper)
		}
	}
	return &RangeCheck{Hard: hard, Soft: soft}, nil
}

func (c *RangeCheck) Process(frame *timeseries.Frame) {
	if c.Hard == nil {
		return
	}

	for i := range frame.Records {
		record := &frame.Records[i]
		if !record.IsNull() && !c.Hard.Contains(record.Value) {
			record.Value = math.NaN()
			record.Flags = timeseries.AppendFlag(record.Flags, FlagRange)
		}
	}

	if c.Soft == nil {
		return
	}

	// runs on the updated values, so hard failures are not also suspect
	for i := range frame.Records {
		record := &frame.Records[i]
		if !record.IsNull() && !c.Soft.Contains(record.Value) {
			record.Flags = timeseries.AppendFlag(record.Flags, FlagSuspect)
		}
	}
}
