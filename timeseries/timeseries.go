package timeseries

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Timeseries describes a stored time series. Records are kept separately
// and accessed through a Store.
type Timeseries struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	StationID   string `json:"station_id" yaml:"station_id"`
	TimeStep    string `json:"time_step,omitempty" yaml:"time_step,omitempty"` // e.g. "10min", empty when irregular or unknown
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func NewTimeseriesID(keys ...string) string {
	// same convention as station/variable names: "Rhein Mannheim", "W" -> "rhein-mannheim-w"
	return slug.Make(strings.Join(keys, "-"))
}

// Record is a single time-indexed value. A NaN Value means "no value".
type Record struct {
	Timestamp time.Time
	Value     float64
	Flags     string
}

func NullRecord(timestamp time.Time, flags string) Record {
	return Record{Timestamp: timestamp, Value: math.NaN(), Flags: flags}
}

func (r Record) IsNull() bool {
	return math.IsNaN(r.Value)
}

type recordJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Flags     string    `json:"flags"`
}

// MarshalJSON renders NaN values as null, which encoding/json cannot do on its own.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{Timestamp: r.Timestamp.UTC(), Flags: r.Flags}
	if !r.IsNull() {
		value := r.Value
		out.Value = &value
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	r.Timestamp = in.Timestamp.UTC()
	r.Flags = in.Flags
	r.Value = math.NaN()
	if in.Value != nil {
		r.Value = *in.Value
	}
	return nil
}

// AppendFlag adds flag to a space-separated flag string. Existing tokens are
// not deduplicated.
func AppendFlag(flags, flag string) string {
	if flags == "" {
		return flag
	}
	return flags + " " + flag
}

// FormatValue renders integral values with a trailing ".0" ("4.0"),
// everything else in the shortest exact form.
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

func HasFlag(flags, flag string) bool {
	return slices.Contains(strings.Fields(flags), flag)
}

// Frame is an ordered window of records with unique, ascending timestamps.
type Frame struct {
	Records []Record `json:"records"`
}

func NewFrame(records ...Record) *Frame {
	return &Frame{Records: records}
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Records)
}

func (f *Frame) IsEmpty() bool {
	return f.Len() == 0
}

// StartDate returns the first timestamp, or the zero time for an empty frame.
func (f *Frame) StartDate() time.Time {
	if f.IsEmpty() {
		return time.Time{}
	}
	return f.Records[0].Timestamp
}

// EndDate returns the last timestamp, or the zero time for an empty frame.
func (f *Frame) EndDate() time.Time {
	if f.IsEmpty() {
		return time.Time{}
	}
	return f.Records[len(f.Records)-1].Timestamp
}

func (f *Frame) Copy() *Frame {
	if f == nil {
		return NewFrame()
	}
	return &Frame{Records: slices.Clone(f.Records)}
}

// Since returns the records with a timestamp at or after start. A zero start
// returns every record.
func (f *Frame) Since(start time.Time) *Frame {
	if f.IsEmpty() {
		return NewFrame()
	}
	if start.IsZero() {
		return f.Copy()
	}

	i, _ := slices.BinarySearchFunc(f.Records, start, func(r Record, t time.Time) int {
		return r.Timestamp.Compare(t)
	})
	return &Frame{Records: slices.Clone(f.Records[i:])}
}

// Values returns the value column.
func (f *Frame) Values() []float64 {
	values := make([]float64, f.Len())
	for i := range values {
		values[i] = f.Records[i].Value
	}
	return values
}

// Validate checks that timestamps are whole seconds and strictly ascending.
// Stores keep second precision, so finer timestamps would collide there.
func (f *Frame) Validate() error {
	for i := 0; i < f.Len(); i++ {
		curr := f.Records[i].Timestamp
		if !curr.Equal(curr.Truncate(time.Second)) {
			return fmt.Errorf("%w: %s has a fraction of a second", ErrInvalidFrame,
				curr.Format(time.RFC3339Nano))
		}

		if i > 0 && !curr.After(f.Records[i-1].Timestamp) {
			return fmt.Errorf("%w: %s does not follow %s", ErrInvalidFrame,
				curr.Format(time.RFC3339), f.Records[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}
