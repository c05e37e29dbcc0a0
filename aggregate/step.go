package aggregate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

var (
	ErrInvalidTimeStep = fmt.Errorf("invalid time step")
	ErrInvalidOffset   = fmt.Errorf("invalid resulting timestamp offset")
	ErrVariableStep    = fmt.Errorf("time step has no fixed duration")
)

var (
	timeStepPattern = regexp.MustCompile(`^(\d*)(min|H|D|M|Y)$`)
	offsetPattern   = regexp.MustCompile(`^(-?\d+|\d*)min$`)
)

type Unit string

const (
	Minute Unit = "min"
	Hour   Unit = "H"
	Day    Unit = "D"
	Month  Unit = "M"
	Year   Unit = "Y"
)

var fixedUnits = map[Unit]time.Duration{
	Minute: time.Minute,
	Hour:   time.Hour,
	Day:    24 * time.Hour,
}

// TimeStep is a multiple of a unit, e.g. "10min", "H" (one hour) or "M"
// (one calendar month).
type TimeStep struct {
	Multiplier int
	Unit       Unit
}

// ParseTimeStep accepts "<n><min|H|D|M|Y>" where a missing n means 1, and
// ISO 8601 durations such as "PT10M" or "P1M".
func ParseTimeStep(s string) (TimeStep, error) {
	if strings.HasPrefix(s, "P") {
		return parseISO8601(s)
	}

	m := timeStepPattern.FindStringSubmatch(s)
	if m == nil {
		return TimeStep{}, fmt.Errorf("%w: %q", ErrInvalidTimeStep, s)
	}

	n := 1
	if m[1] != "" {
		var err error
		if n, err = strconv.Atoi(m[1]); err != nil || n <= 0 {
			return TimeStep{}, fmt.Errorf("%w: %q", ErrInvalidTimeStep, s)
		}
	}
	return TimeStep{Multiplier: n, Unit: Unit(m[2])}, nil
}

func parseISO8601(s string) (TimeStep, error) {
	d, err := duration.Parse(s)
	if err != nil || d.Negative {
		return TimeStep{}, fmt.Errorf("%w: %q", ErrInvalidTimeStep, s)
	}

	calendar := d.Years != 0 || d.Months != 0
	fixed := d.Weeks != 0 || d.Days != 0 || d.Hours != 0 || d.Minutes != 0 || d.Seconds != 0
	switch {
	case calendar && fixed, d.Years != 0 && d.Months != 0:
		return TimeStep{}, fmt.Errorf("%w: %q mixes calendar and fixed units", ErrInvalidTimeStep, s)
	case d.Years != 0:
		return calendarStep(d.Years, Year, s)
	case d.Months != 0:
		return calendarStep(d.Months, Month, s)
	}
	return FixedTimeStep(d.ToTimeDuration())
}

func calendarStep(n float64, unit Unit, raw string) (TimeStep, error) {
	if n <= 0 || n != math.Trunc(n) {
		return TimeStep{}, fmt.Errorf("%w: %q", ErrInvalidTimeStep, raw)
	}
	return TimeStep{Multiplier: int(n), Unit: unit}, nil
}

// FixedTimeStep expresses d in the largest unit that divides it.
func FixedTimeStep(d time.Duration) (TimeStep, error) {
	if d <= 0 || d%time.Minute != 0 {
		return TimeStep{}, fmt.Errorf("%w: %s is not a positive number of minutes", ErrInvalidTimeStep, d)
	}

	for _, unit := range []Unit{Day, Hour, Minute} {
		if d%fixedUnits[unit] == 0 {
			return TimeStep{Multiplier: int(d / fixedUnits[unit]), Unit: unit}, nil
		}
	}
	return TimeStep{}, fmt.Errorf("%w: %s", ErrInvalidTimeStep, d)
}

func (s TimeStep) String() string {
	return strconv.Itoa(s.Multiplier) + string(s.Unit)
}

// ISO8601 renders the step as an ISO 8601 duration, e.g. "PT10M".
func (s TimeStep) ISO8601() string {
	switch s.Unit {
	case Month:
		return (&duration.Duration{Months: float64(s.Multiplier)}).String()
	case Year:
		return (&duration.Duration{Years: float64(s.Multiplier)}).String()
	}
	return duration.FromTimeDuration(s.Duration()).String()
}

// IsFixed reports whether every interval of the step has the same length.
func (s TimeStep) IsFixed() bool {
	_, ok := fixedUnits[s.Unit]
	return ok
}

// Duration is the length of a fixed step, or 0 for months and years.
func (s TimeStep) Duration() time.Duration {
	return time.Duration(s.Multiplier) * fixedUnits[s.Unit]
}

// BucketEnd returns the first step boundary at or after t. Fixed steps are
// aligned to the Unix epoch, months and years to the calendar.
func (s TimeStep) BucketEnd(t time.Time) time.Time {
	t = t.UTC()
	switch s.Unit {
	case Month:
		index := t.Year()*12 + int(t.Month()) - 1
		if !isMonthStart(t) {
			index++
		}
		index = ceilMultiple(index, s.Multiplier)
		return time.Date(index/12, time.Month(index%12+1), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		year := t.Year()
		if !isMonthStart(t) || t.Month() != time.January {
			year++
		}
		year = ceilMultiple(year, s.Multiplier)
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	step := int64(s.Duration())
	ns := t.UnixNano()
	q := ns / step
	if ns%step != 0 && ns > 0 {
		q++
	}
	return time.Unix(0, q*step).UTC()
}

// BucketStart returns the boundary one step before end.
func (s TimeStep) BucketStart(end time.Time) time.Time {
	switch s.Unit {
	case Month:
		return end.AddDate(0, -s.Multiplier, 0)
	case Year:
		return end.AddDate(-s.Multiplier, 0, 0)
	}
	return end.Add(-s.Duration())
}

func isMonthStart(t time.Time) bool {
	return t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func ceilMultiple(v, n int) int {
	if r := v % n; r != 0 {
		return v + n - r
	}
	return v
}

// ParseOffset parses a resulting timestamp offset such as "-5min", "30min"
// or "min" (one minute). An empty string means no offset.
func ParseOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	if m[1] == "" {
		return time.Minute, nil
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	return time.Duration(n) * time.Minute, nil
}
