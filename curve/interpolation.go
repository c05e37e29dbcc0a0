package curve

import (
	"fmt"
	"slices"
	"time"

	"github.com/timgluz/autoprocess/timeseries"
)

const DateLayout = "2006-01-02"

// Period applies a curve to the records between two dates, both inclusive.
type Period struct {
	StartDate time.Time
	EndDate   time.Time
	Curve     *Curve
}

func NewPeriod(startDate, endDate string, text string) (*Period, error) {
	start, err := time.Parse(DateLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse(DateLayout, endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}

	period := &Period{StartDate: start, EndDate: end}
	if err := period.SetCurveText(text); err != nil {
		return nil, err
	}
	return period, nil
}

// SetCurveText replaces the points of the period with the ones read from text.
func (p *Period) SetCurveText(text string) error {
	c, err := Parse(text)
	if err != nil {
		return err
	}
	p.Curve = c
	return nil
}

func (p *Period) CurveText() string {
	return p.Curve.String()
}

// Contains reports whether t falls on a date within the period.
func (p *Period) Contains(t time.Time) bool {
	start := dateOf(p.StartDate)
	end := dateOf(p.EndDate).AddDate(0, 0, 1)
	return !t.Before(start) && t.Before(end)
}

func (p *Period) String() string {
	return p.StartDate.Format(DateLayout) + " - " + p.EndDate.Format(DateLayout)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Interpolation re-maps values period by period. Records outside every
// period pass through untouched.
type Interpolation struct {
	Name    string
	periods []*Period
}

func NewInterpolation(name string, periods ...*Period) *Interpolation {
	sorted := slices.Clone(periods)
	slices.SortStableFunc(sorted, func(a, b *Period) int {
		return a.StartDate.Compare(b.StartDate)
	})
	return &Interpolation{Name: name, periods: sorted}
}

func (ip *Interpolation) Periods() []*Period {
	return slices.Clone(ip.periods)
}

// Process interpolates the covered records in place. Their flags are cleared.
func (ip *Interpolation) Process(frame *timeseries.Frame) {
	for _, period := range ip.periods {
		for i := range frame.Records {
			record := &frame.Records[i]
			if !period.Contains(record.Timestamp) {
				continue
			}
			record.Value = period.Curve.Interpolate(record.Value)
			record.Flags = ""
		}
	}
}
