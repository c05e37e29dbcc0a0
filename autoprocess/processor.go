package autoprocess

import (
	"context"
	"time"

	"github.com/timgluz/autoprocess/aggregate"
	"github.com/timgluz/autoprocess/check"
	"github.com/timgluz/autoprocess/curve"
	"github.com/timgluz/autoprocess/timeseries"
)

// Processor transforms the fetched window of a source series into the
// records to append to the target.
type Processor interface {
	Process(ctx context.Context, frame *timeseries.Frame) (*timeseries.Frame, error)
}

// NewProcessor builds the transformation of a definition. source carries the
// metadata of the source series; it may be nil, in which case an aggregation
// infers the source time step from the data.
func NewProcessor(d *Definition, source *timeseries.Timeseries) (Processor, error) {
	switch d.Kind {
	case KindRangeCheck:
		c, err := d.rangeCheck()
		if err != nil {
			return nil, err
		}
		return &checkProcessor{check: c}, nil
	case KindRateOfChangeCheck:
		c, err := d.rateOfChangeCheck()
		if err != nil {
			return nil, err
		}
		return &checkProcessor{check: c}, nil
	case KindChecks:
		chain := &check.Chain{}
		if d.RangeCheck != nil {
			c, err := d.rangeCheck()
			if err != nil {
				return nil, err
			}
			chain.Range = c
		}
		if d.RateOfChangeCheck != nil {
			c, err := d.rateOfChangeCheck()
			if err != nil {
				return nil, err
			}
			chain.RateOfChange = c
		}
		return &checkProcessor{check: chain}, nil
	case KindCurveInterpolation:
		return d.curveInterpolation()
	case KindAggregation:
		return d.aggregation(source)
	}
	return nil, configError(d.ID, "kind", "unknown kind "+string(d.Kind), nil)
}

func (d *Definition) rangeCheck() (*check.RangeCheck, error) {
	cfg := d.RangeCheck
	if cfg == nil {
		return nil, configError(d.ID, "range_check", "configuration is missing", nil)
	}

	hardSet := cfg.LowerBound != nil && cfg.UpperBound != nil
	softSet := cfg.SoftLowerBound != nil && cfg.SoftUpperBound != nil
	if (cfg.LowerBound == nil) != (cfg.UpperBound == nil) {
		return nil, configError(d.ID, "range_check", "lower_bound and upper_bound must be set together", nil)
	}
	if (cfg.SoftLowerBound == nil) != (cfg.SoftUpperBound == nil) {
		return nil, configError(d.ID, "range_check", "soft_lower_bound and soft_upper_bound must be set together", nil)
	}

	var hard, soft *check.Bounds
	if hardSet {
		hard = &check.Bounds{Lower: *cfg.LowerBound, Upper: *cfg.UpperBound}
	}
	if softSet {
		soft = &check.Bounds{Lower: *cfg.SoftLowerBound, Upper: *cfg.SoftUpperBound}
	}

	c, err := check.NewRangeCheck(hard, soft)
	if err != nil {
		return nil, configError(d.ID, "range_check", "invalid bounds", err)
	}
	return c, nil
}

func (d *Definition) rateOfChangeCheck() (*check.RateOfChangeCheck, error) {
	cfg := d.RateOfChangeCheck
	if cfg == nil {
		return nil, configError(d.ID, "rate_of_change_check", "configuration is missing", nil)
	}

	c, err := check.NewRateOfChangeCheck(cfg.Symmetric)
	if err != nil {
		return nil, configError(d.ID, "rate_of_change_check", "invalid thresholds", err)
	}
	if err := c.SetThresholdsText(cfg.Thresholds); err != nil {
		return nil, configError(d.ID, "rate_of_change_check.thresholds", "invalid thresholds", err)
	}
	return c, nil
}

func (d *Definition) curveInterpolation() (Processor, error) {
	cfg := d.CurveInterpolation
	if cfg == nil {
		return nil, configError(d.ID, "curve_interpolation", "configuration is missing", nil)
	}

	periods := make([]*curve.Period, 0, len(cfg.Periods))
	for _, p := range cfg.Periods {
		period, err := curve.NewPeriod(p.StartDate, p.EndDate, p.Points)
		if err != nil {
			return nil, configError(d.ID, "curve_interpolation.periods", "invalid period "+p.StartDate, err)
		}
		periods = append(periods, period)
	}
	return &curveProcessor{interpolation: curve.NewInterpolation(d.Name, periods...)}, nil
}

func (d *Definition) aggregation(source *timeseries.Timeseries) (Processor, error) {
	cfg := d.Aggregation
	if cfg == nil {
		return nil, configError(d.ID, "aggregation", "configuration is missing", nil)
	}

	a, err := aggregate.New(cfg.TargetTimeStep, aggregate.Method(cfg.Method), cfg.MaxMissing, cfg.ResultingTimestampOffset)
	if err != nil {
		return nil, configError(d.ID, "aggregation", "invalid parameters", err)
	}

	var sourceStep time.Duration
	if source != nil && source.TimeStep != "" {
		step, err := aggregate.ParseTimeStep(source.TimeStep)
		if err != nil || !step.IsFixed() {
			return nil, configError(d.ID, "source_timeseries", "has an unusable time step "+source.TimeStep, err)
		}
		sourceStep = step.Duration()
	}
	return &aggregationProcessor{aggregation: a, sourceStep: sourceStep}, nil
}

type checkProcessor struct {
	check check.Check
}

func (p *checkProcessor) Process(ctx context.Context, frame *timeseries.Frame) (*timeseries.Frame, error) {
	defer ctx.Done()

	result := frame.Copy()
	p.check.Process(result)
	return result, nil
}

type curveProcessor struct {
	interpolation *curve.Interpolation
}

func (p *curveProcessor) Process(ctx context.Context, frame *timeseries.Frame) (*timeseries.Frame, error) {
	defer ctx.Done()

	result := frame.Copy()
	p.interpolation.Process(result)
	return result, nil
}

type aggregationProcessor struct {
	aggregation *aggregate.Aggregation
	sourceStep  time.Duration
}

func (p *aggregationProcessor) Process(ctx context.Context, frame *timeseries.Frame) (*timeseries.Frame, error) {
	defer ctx.Done()

	return p.aggregation.Process(frame, p.sourceStep)
}
