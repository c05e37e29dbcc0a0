package curve

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/timgluz/autoprocess/timeseries"
)

var ErrDuplicateX = fmt.Errorf("curve has duplicate x values")

// ValidationError reports a line of curve text that could not be parsed.
type ValidationError struct {
	Line   int // 1-based
	Text   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Error in line %d: \"%s\" %s", e.Line, e.Text, e.Reason)
}

const (
	reasonNotAPair   = "is not a valid pair of numbers"
	reasonDuplicateX = "repeats an x value of a previous line"
)

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Curve is a piecewise-linear mapping defined by points sorted by x.
type Curve struct {
	points []Point
}

// New builds a curve from points in any order; x values must be unique.
func New(points []Point) (*Curve, error) {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, func(a, b Point) int {
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		}
		return 0
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].X == sorted[i-1].X {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateX, sorted[i].X)
		}
	}
	return &Curve{points: sorted}, nil
}

// Parse reads one point per line, x and y separated by a comma or a tab.
// Columns after the second one are ignored.
func Parse(text string) (*Curve, error) {
	text = strings.TrimRight(text, " \r\n")
	if text == "" {
		return &Curve{}, nil
	}

	var points []Point
	seen := make(map[float64]bool)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		point, ok := parsePoint(line)
		if !ok {
			return nil, &ValidationError{Line: i + 1, Text: line, Reason: reasonNotAPair}
		}
		if seen[point.X] {
			return nil, &ValidationError{Line: i + 1, Text: line, Reason: reasonDuplicateX}
		}
		seen[point.X] = true
		points = append(points, point)
	}
	return New(points)
}

func parsePoint(line string) (Point, bool) {
	fields := strings.Split(strings.ReplaceAll(line, "\t", ","), ",")
	if len(fields) < 2 {
		return Point{}, false
	}

	x, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Point{}, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}

// String renders the curve in the text form accepted by Parse, one "x\ty" per line.
func (c *Curve) String() string {
	lines := make([]string, 0, c.Len())
	for _, p := range c.Points() {
		lines = append(lines, timeseries.FormatValue(p.X)+"\t"+timeseries.FormatValue(p.Y))
	}
	return strings.Join(lines, "\n")
}

func (c *Curve) Points() []Point {
	if c == nil {
		return nil
	}
	return slices.Clone(c.points)
}

func (c *Curve) Len() int {
	if c == nil {
		return 0
	}
	return len(c.points)
}

// Interpolate maps x through the curve. NaN input, an empty curve and any x
// outside [min x, max x] give NaN.
func (c *Curve) Interpolate(x float64) float64 {
	if math.IsNaN(x) || c.Len() == 0 {
		return math.NaN()
	}

	first, last := c.points[0], c.points[len(c.points)-1]
	if x < first.X || x > last.X {
		return math.NaN()
	}

	i, found := slices.BinarySearchFunc(c.points, x, func(p Point, x float64) int {
		switch {
		case p.X < x:
			return -1
		case p.X > x:
			return 1
		}
		return 0
	})
	if found {
		return c.points[i].Y
	}

	lo, hi := c.points[i-1], c.points[i]
	return lo.Y + (x-lo.X)*(hi.Y-lo.Y)/(hi.X-lo.X)
}
