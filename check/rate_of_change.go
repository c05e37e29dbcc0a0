package check

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/timgluz/autoprocess/timeseries"
)

var (
	ErrInvalidDeltaT   = fmt.Errorf("invalid delta_t")
	ErrDuplicateDeltaT = fmt.Errorf("duplicate delta_t")
	ErrNegativeAllowed = fmt.Errorf("allowed_diff must not be negative")
)

var deltaTPattern = regexp.MustCompile(`^(\d+)(min|H|D)$`)

var deltaTUnits = map[string]time.Duration{
	"min": time.Minute,
	"H":   time.Hour,
	"D":   24 * time.Hour,
}

const (
	reasonNotAThreshold   = "is not a valid (delta_t, allowed_diff) pair"
	reasonDuplicateDeltaT = "repeats the delta_t of a previous line"
)

// ParseDeltaT parses "<positive integer><min|H|D>", e.g. "10min" or "1D".
// Unlike aggregation time steps, the number is mandatory.
func ParseDeltaT(s string) (time.Duration, error) {
	m := deltaTPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDeltaT, s)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDeltaT, s)
	}
	return time.Duration(n) * deltaTUnits[m[2]], nil
}

func IsDeltaTValid(s string) bool {
	_, err := ParseDeltaT(s)
	return err == nil
}

type Threshold struct {
	DeltaT      string  `json:"delta_t" yaml:"delta_t"`
	AllowedDiff float64 `json:"allowed_diff" yaml:"allowed_diff"`
}

func (t Threshold) Duration() time.Duration {
	d, _ := ParseDeltaT(t.DeltaT)
	return d
}

func (t Threshold) String() string {
	return t.DeltaT + "\t" + timeseries.FormatValue(t.AllowedDiff)
}

// RateOfChangeCheck nulls values that differ too much from the value
// delta_t earlier. Without Symmetric only rises are checked.
type RateOfChangeCheck struct {
	Symmetric  bool
	thresholds []Threshold
}

var _ Check = (*RateOfChangeCheck)(nil)

func NewRateOfChangeCheck(symmetric bool, thresholds ...Threshold) (*RateOfChangeCheck, error) {
	c := &RateOfChangeCheck{Symmetric: symmetric}
	if err := c.SetThresholds(thresholds); err != nil {
		return nil, err
	}
	return c, nil
}

// SetThresholds replaces the thresholds; they are kept sorted by delta_t.
func (c *RateOfChangeCheck) SetThresholds(thresholds []Threshold) error {
	seen := make(map[time.Duration]string)
	for _, t := range thresholds {
		d, err := ParseDeltaT(t.DeltaT)
		if err != nil {
			return err
		}
		if prev, ok := seen[d]; ok {
			return fmt.Errorf("%w: %q and %q", ErrDuplicateDeltaT, prev, t.DeltaT)
		}
		if t.AllowedDiff < 0 || math.IsNaN(t.AllowedDiff) {
			return fmt.Errorf("%w: %v", ErrNegativeAllowed, t.AllowedDiff)
		}
		seen[d] = t.DeltaT
	}

	sorted := slices.Clone(thresholds)
	slices.SortStableFunc(sorted, func(a, b Threshold) int {
		return cmp.Compare(a.Duration(), b.Duration())
	})
	c.thresholds = sorted
	return nil
}

func (c *RateOfChangeCheck) Thresholds() []Threshold {
	return slices.Clone(c.thresholds)
}

// SetThresholdsText reads one "delta_t allowed_diff" pair per line,
// separated by spaces or tabs.
func (c *RateOfChangeCheck) SetThresholdsText(text string) error {
	thresholds, err := ParseThresholds(text)
	if err != nil {
		return err
	}
	return c.SetThresholds(thresholds)
}

func (c *RateOfChangeCheck) ThresholdsText() string {
	lines := make([]string, 0, len(c.thresholds))
	for _, t := range c.thresholds {
		lines = append(lines, t.String())
	}
	return strings.Join(lines, "\n")
}

func ParseThresholds(text string) ([]Threshold, error) {
	text = strings.TrimRight(text, " \t\r\n")
	if text == "" {
		return nil, nil
	}

	var thresholds []Threshold
	seen := make(map[time.Duration]bool)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &ValidationError{Line: i + 1, Text: line, Reason: reasonNotAThreshold}
		}
		d, err := ParseDeltaT(fields[0])
		if err != nil {
			return nil, &ValidationError{Line: i + 1, Text: line, Reason: reasonNotAThreshold}
		}
		allowed, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || allowed < 0 || math.IsNaN(allowed) {
			return nil, &ValidationError{Line: i + 1, Text: line, Reason: reasonNotAThreshold}
		}
		if seen[d] {
			return nil, &ValidationError{Line: i + 1, Text: line, Reason: reasonDuplicateDeltaT}
		}
		seen[d] = true

		thresholds = append(thresholds, Threshold{DeltaT: fields[0], AllowedDiff: allowed})
	}
	return thresholds, nil
}

// Process compares every value with the value exactly delta_t earlier, for
// each threshold. Rows without a comparison value are skipped. Every
// threshold is evaluated against the values as they were on entry, and a
// row failing one or more thresholds is flagged once.
func (c *RateOfChangeCheck) Process(frame *timeseries.Frame) {
	if frame.IsEmpty() || len(c.thresholds) == 0 {
		return
	}

	values := make(map[int64]float64, frame.Len())
	for _, record := range frame.Records {
		values[record.Timestamp.UnixNano()] = record.Value
	}

	failed := make([]bool, frame.Len())
	for _, threshold := range c.thresholds {
		lag := threshold.Duration()
		for i, record := range frame.Records {
			if record.IsNull() {
				continue
			}
			previous, ok := values[record.Timestamp.Add(-lag).UnixNano()]
			if !ok || math.IsNaN(previous) {
				continue
			}
			if c.exceeds(record.Value-previous, threshold.AllowedDiff) {
				failed[i] = true
			}
		}
	}

	for i := range frame.Records {
		if !failed[i] {
			continue
		}
		record := &frame.Records[i]
		record.Value = math.NaN()
		record.Flags = timeseries.AppendFlag(record.Flags, FlagTemporal)
	}
}

func (c *RateOfChangeCheck) exceeds(diff, allowed float64) bool {
	if c.Symmetric {
		return math.Abs(diff) > allowed
	}
	return diff > allowed
}
