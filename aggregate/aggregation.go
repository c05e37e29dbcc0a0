// Package aggregate resamples a time series to a longer time step.
package aggregate

import (
	"fmt"
	"math"
	"time"

	"github.com/timgluz/autoprocess/timeseries"
)

const FlagMiss = "MISS"

var (
	ErrInvalidMethod     = fmt.Errorf("invalid aggregation method")
	ErrInvalidMaxMissing = fmt.Errorf("max_missing must not be negative")
)

type Method string

const (
	Sum  Method = "sum"
	Mean Method = "mean"
	Max  Method = "max"
	Min  Method = "min"
)

func (m Method) IsValid() bool {
	switch m {
	case Sum, Mean, Max, Min:
		return true
	}
	return false
}

// Aggregation regularizes a source series and reduces it to TargetStep
// buckets. A bucket (end - step, end] is labelled with end - Offset.
type Aggregation struct {
	TargetStep TimeStep
	Method     Method
	MaxMissing int
	Offset     time.Duration
}

func New(targetStep string, method Method, maxMissing int, offset string) (*Aggregation, error) {
	step, err := ParseTimeStep(targetStep)
	if err != nil {
		return nil, err
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if maxMissing < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxMissing, maxMissing)
	}
	off, err := ParseOffset(offset)
	if err != nil {
		return nil, err
	}

	return &Aggregation{
		TargetStep: step,
		Method:     method,
		MaxMissing: maxMissing,
		Offset:     off,
	}, nil
}

// Process aggregates frame. A zero sourceStep is inferred from the frame;
// a frame too short to infer from gives an empty result.
func (a *Aggregation) Process(frame *timeseries.Frame, sourceStep time.Duration) (*timeseries.Frame, error) {
	if frame.IsEmpty() {
		return timeseries.NewFrame(), nil
	}

	if sourceStep == 0 {
		step, err := InferStep(frame)
		if err != nil {
			return timeseries.NewFrame(), nil
		}
		sourceStep = step
	}

	regular, err := Regularize(frame, sourceStep)
	if err != nil {
		return nil, err
	}

	result := timeseries.NewFrame()
	var lastBucketEnd time.Time
	for i := 0; i < regular.Len(); {
		end := a.TargetStep.BucketEnd(regular.Records[i].Timestamp)

		var values []float64
		for ; i < regular.Len() && !regular.Records[i].Timestamp.After(end); i++ {
			if !regular.Records[i].IsNull() {
				values = append(values, regular.Records[i].Value)
			}
		}

		expected := int(end.Sub(a.TargetStep.BucketStart(end)) / sourceStep)
		if len(values) < max(expected-a.MaxMissing, 1) {
			continue
		}

		record := timeseries.Record{Timestamp: end.Add(-a.Offset), Value: a.reduce(values)}
		if len(values) < expected {
			record.Flags = FlagMiss
		}
		result.Records = append(result.Records, record)
		lastBucketEnd = end
	}

	// an incomplete last bucket is recomputed on the next run; completeness is
	// judged on the bucket end before the offset is applied
	if n := result.Len(); n > 0 &&
		timeseries.HasFlag(result.Records[n-1].Flags, FlagMiss) &&
		frame.EndDate().Before(lastBucketEnd) {
		result.Records = result.Records[:n-1]
	}

	return result, nil
}

func (a *Aggregation) reduce(values []float64) float64 {
	switch a.Method {
	case Sum, Mean:
		var sum float64
		for _, v := range values {
			sum += v
		}
		if a.Method == Mean {
			return sum / float64(len(values))
		}
		return sum
	case Max:
		result := math.Inf(-1)
		for _, v := range values {
			result = math.Max(result, v)
		}
		return result
	case Min:
		result := math.Inf(1)
		for _, v := range values {
			result = math.Min(result, v)
		}
		return result
	}
	return math.NaN()
}
