package aggregate

import (
	"fmt"
	"slices"
	"time"

	"github.com/timgluz/autoprocess/timeseries"
)

const FlagDateInsert = "DATEINSERT"

// MaxRegularRecords bounds the grid built by Regularize: two years of
// one-minute slots.
const MaxRegularRecords = 1 << 20

var (
	ErrCannotInferStep = fmt.Errorf("cannot infer the time step of fewer than two records")
	ErrWindowTooLarge  = fmt.Errorf("window too large to regularize")
)

// InferStep returns the most frequent spacing between consecutive records.
// Ties go to the smaller spacing.
func InferStep(frame *timeseries.Frame) (time.Duration, error) {
	if frame.Len() < 2 {
		return 0, ErrCannotInferStep
	}

	counts := make(map[time.Duration]int)
	for i := 1; i < frame.Len(); i++ {
		counts[frame.Records[i].Timestamp.Sub(frame.Records[i-1].Timestamp)]++
	}

	var best time.Duration
	for step, count := range counts {
		if best == 0 || count > counts[best] || (count == counts[best] && step < best) {
			best = step
		}
	}
	return best, nil
}

// Regularize moves every record to the nearest multiple of step (counted from
// the Unix epoch) and fills the gaps with null records flagged DATEINSERT.
// When two records land on the same slot, the closer one wins; on a tie the
// earlier one. A grid of more than MaxRegularRecords slots is refused.
func Regularize(frame *timeseries.Frame, step time.Duration) (*timeseries.Frame, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeStep, step)
	}
	if frame.IsEmpty() {
		return timeseries.NewFrame(), nil
	}

	type slot struct {
		record   timeseries.Record
		distance time.Duration
	}
	slots := make(map[int64]slot, frame.Len())
	for _, record := range frame.Records {
		at := nearest(record.Timestamp, step)
		distance := record.Timestamp.Sub(at).Abs()
		if current, ok := slots[at.UnixNano()]; ok && current.distance <= distance {
			continue
		}
		record.Timestamp = at
		slots[at.UnixNano()] = slot{record: record, distance: distance}
	}

	keys := make([]int64, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	first := time.Unix(0, keys[0]).UTC()
	last := time.Unix(0, keys[len(keys)-1]).UTC()

	n := last.Sub(first)/step + 1
	if n > MaxRegularRecords {
		return nil, fmt.Errorf("%w: %d slots of %s between %s and %s", ErrWindowTooLarge,
			n, step, first.Format(time.RFC3339), last.Format(time.RFC3339))
	}

	regular := &timeseries.Frame{Records: make([]timeseries.Record, 0, n)}
	for t := first; !t.After(last); t = t.Add(step) {
		if s, ok := slots[t.UnixNano()]; ok {
			regular.Records = append(regular.Records, s.record)
			continue
		}
		regular.Records = append(regular.Records, timeseries.NullRecord(t, FlagDateInsert))
	}
	return regular, nil
}

func nearest(t time.Time, step time.Duration) time.Time {
	ns := t.UnixNano()
	s := int64(step)

	floor := ns / s * s
	if ns < 0 && ns%s != 0 {
		floor -= s
	}
	if ns-floor > s/2 {
		return time.Unix(0, floor+s).UTC()
	}
	return time.Unix(0, floor).UTC()
}
