package timeseries

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

var ErrInvalidStart = fmt.Errorf("invalid start")

// ParseStart reads a window start given either as an RFC 3339 timestamp or
// as an ISO 8601 look-back duration ("P3D" is three days before now).
// An empty value gives the zero time.
func ParseStart(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	if strings.HasPrefix(value, "P") || strings.HasPrefix(value, "-P") {
		lookBack, err := duration.Parse(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: %w", ErrInvalidStart, value, err)
		}
		if lookBack.Negative {
			return time.Time{}, fmt.Errorf("%w: look-back %q must not be negative", ErrInvalidStart, value)
		}
		return now.Add(-lookBack.ToTimeDuration()).UTC(), nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %w", ErrInvalidStart, value, err)
	}
	return t.UTC(), nil
}
