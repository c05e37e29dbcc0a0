// Package autoprocess runs configured transformations from a source time
// series to a target time series, one incremental window at a time.
package autoprocess

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"

	"github.com/timgluz/autoprocess/aggregate"
)

type Kind string

const (
	KindRangeCheck         Kind = "range_check"
	KindRateOfChangeCheck  Kind = "rate_of_change_check"
	KindChecks             Kind = "checks"
	KindCurveInterpolation Kind = "curve_interpolation"
	KindAggregation        Kind = "aggregation"
)

// Definition is one auto-process: exactly one variant payload, chosen by Kind.
// The "checks" kind may carry a range check, a rate-of-change check or both.
type Definition struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name" validate:"required"`
	Kind      Kind   `json:"kind" yaml:"kind" validate:"required,oneof=range_check rate_of_change_check checks curve_interpolation aggregation"`
	StationID string `json:"station_id" yaml:"station_id" validate:"required"`
	SourceID  string `json:"source_timeseries" yaml:"source_timeseries" validate:"required"`
	TargetID  string `json:"target_timeseries" yaml:"target_timeseries" validate:"required,nefield=SourceID"`

	RangeCheck         *RangeCheckConfig         `json:"range_check,omitempty" yaml:"range_check,omitempty"`
	RateOfChangeCheck  *RateOfChangeCheckConfig  `json:"rate_of_change_check,omitempty" yaml:"rate_of_change_check,omitempty"`
	CurveInterpolation *CurveInterpolationConfig `json:"curve_interpolation,omitempty" yaml:"curve_interpolation,omitempty"`
	Aggregation        *AggregationConfig        `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
}

// RangeCheckConfig holds the hard bounds and the optional soft bounds.
type RangeCheckConfig struct {
	LowerBound     *float64 `json:"lower_bound" yaml:"lower_bound" validate:"required_with=UpperBound"`
	UpperBound     *float64 `json:"upper_bound" yaml:"upper_bound" validate:"required_with=LowerBound"`
	SoftLowerBound *float64 `json:"soft_lower_bound,omitempty" yaml:"soft_lower_bound,omitempty" validate:"required_with=SoftUpperBound"`
	SoftUpperBound *float64 `json:"soft_upper_bound,omitempty" yaml:"soft_upper_bound,omitempty" validate:"required_with=SoftLowerBound"`
}

type RateOfChangeCheckConfig struct {
	Symmetric bool `json:"symmetric" yaml:"symmetric"`
	// Thresholds is one "delta_t allowed_diff" pair per line, e.g. "10min 25".
	Thresholds string `json:"thresholds" yaml:"thresholds" validate:"required"`
}

type CurveInterpolationConfig struct {
	Periods []CurvePeriodConfig `json:"periods" yaml:"periods" validate:"dive"`
}

type CurvePeriodConfig struct {
	StartDate string `json:"start_date" yaml:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" yaml:"end_date" validate:"required,datetime=2006-01-02"`
	// Points is one "x,y" (or tab separated) pair per line.
	Points string `json:"points" yaml:"points" validate:"required"`
}

type AggregationConfig struct {
	TargetTimeStep           string `json:"target_time_step" yaml:"target_time_step" validate:"required"`
	Method                   string `json:"method" yaml:"method" validate:"required,oneof=sum mean max min"`
	MaxMissing               int    `json:"max_missing" yaml:"max_missing" validate:"min=0"`
	ResultingTimestampOffset string `json:"resulting_timestamp_offset,omitempty" yaml:"resulting_timestamp_offset,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func NewDefinitionID(name string) string {
	return slug.Make(name)
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s (%s: %s -> %s)", d.ID, d.Kind, d.SourceID, d.TargetID)
}

// Validate checks the definition structurally and parses every variant
// parameter. It does not look at the time series themselves.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return configError(d.ID, "id", "is required", nil)
	}

	if err := validate.Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return configError(d.ID, fe.Namespace(), "failed on "+fe.Tag(), nil)
		}
		return configError(d.ID, "", "invalid definition", err)
	}

	if err := d.checkPayload(); err != nil {
		return err
	}

	_, err := NewProcessor(d, nil)
	return err
}

// checkPayload enforces that only the payloads of the definition's kind are set.
func (d *Definition) checkPayload() error {
	present := map[Kind]bool{
		KindRangeCheck:         d.RangeCheck != nil,
		KindRateOfChangeCheck:  d.RateOfChangeCheck != nil,
		KindCurveInterpolation: d.CurveInterpolation != nil,
		KindAggregation:        d.Aggregation != nil,
	}

	allowed := map[Kind]bool{d.Kind: true}
	if d.Kind == KindChecks {
		allowed = map[Kind]bool{KindRangeCheck: true, KindRateOfChangeCheck: true}
		if !present[KindRangeCheck] && !present[KindRateOfChangeCheck] {
			return configError(d.ID, string(d.Kind), "needs a range check or a rate of change check", nil)
		}
	} else if !present[d.Kind] {
		return configError(d.ID, string(d.Kind), "configuration is missing", nil)
	}

	for kind, ok := range present {
		if ok && !allowed[kind] {
			return configError(d.ID, string(kind), "is not allowed for kind "+string(d.Kind), nil)
		}
	}
	return nil
}

// StartDate is the first source timestamp to read, given the end date of the
// target. A zero targetEnd gives a zero start: read everything.
func (d *Definition) StartDate(targetEnd time.Time) (time.Time, error) {
	if targetEnd.IsZero() {
		return time.Time{}, nil
	}

	start := targetEnd.Add(time.Minute)
	if d.Kind == KindAggregation && d.Aggregation != nil {
		offset, err := aggregate.ParseOffset(d.Aggregation.ResultingTimestampOffset)
		if err != nil {
			return time.Time{}, configError(d.ID, "resulting_timestamp_offset", "is invalid", err)
		}
		// the target holds bucket ends shifted by -offset
		start = start.Add(offset)
	}
	return start, nil
}
