package indicators

import (
	"context"
	"fmt"
	"math"

	"radiustrend/internal/candles"
	"radiustrend/internal/domain"
	"radiustrend/internal/ports"
)

const (
	// Default parameter values, matching the TradingView script this
	// indicator was ported from.
	DefaultStep       = 0.15
	DefaultMulti      = 2.0
	DefaultStepPeriod = 3

	// rangeSMAPeriod is the lookback of the high-low range average the
	// band geometry is derived from.
	rangeSMAPeriod = 100

	// warmupBars is the index of the first bar with initialized state.
	// The state machine needs a full range average plus the seed bar, so
	// histories of 101 bars or fewer produce no defined band values.
	warmupBars = 101

	seedBandFactor     = 0.8
	stepDistanceFactor = 0.2
	envelopeFactor     = 0.5
)

// RadiusTrendConfig holds configuration for the Radius Trend indicator.
// Zero values are replaced with the defaults; negative values are rejected.
type RadiusTrendConfig struct {
	Step       float64 // incremental band-steepening rate per step period
	Multi      float64 // band offset multiplier applied on trend reversals
	StepPeriod int     // bars between step adjustments, also the smoothing window
}

// RadiusTrendPoint is the indicator value for a single bar.
// Bands are NaN while the indicator is warming up.
type RadiusTrendPoint struct {
	Trend     bool
	MainBand  float64
	OuterBand float64
}

// RadiusTrendSeries holds the indicator values for every bar of the input,
// aligned with the kline history it was computed from.
type RadiusTrendSeries struct {
	Trend     []bool
	MainBand  []float64
	OuterBand []float64
}

// RadiusTrend implements the Radius Trend indicator: an adaptive band that
// follows price, a per-bar trend flag from price crossing that band, and a
// trend-dependent outer envelope. The band steepens away from price the
// longer a trend persists ("step angle"), and resets against price on each
// trend reversal.
type RadiusTrend struct {
	config RadiusTrendConfig
}

// NewRadiusTrend creates a new Radius Trend indicator instance.
func NewRadiusTrend(config RadiusTrendConfig) (*RadiusTrend, error) {
	if config.Step == 0 {
		config.Step = DefaultStep
	}
	if config.Multi == 0 {
		config.Multi = DefaultMulti
	}
	if config.StepPeriod == 0 {
		config.StepPeriod = DefaultStepPeriod
	}
	if config.Step < 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %v", ports.ErrInvalidInput, config.Step)
	}
	if config.Multi < 0 {
		return nil, fmt.Errorf("%w: multi must be positive, got %v", ports.ErrInvalidInput, config.Multi)
	}
	if config.StepPeriod < 1 {
		return nil, fmt.Errorf("%w: step period must be at least 1, got %d", ports.ErrInvalidInput, config.StepPeriod)
	}
	return &RadiusTrend{config: config}, nil
}

// Name returns the name of the indicator.
func (r *RadiusTrend) Name() string {
	return "RadiusTrend"
}

// RequiredDataPoints returns the minimum number of klines needed before any
// band value is defined.
func (r *RadiusTrend) RequiredDataPoints() int {
	return warmupBars + 1
}

// Calculate computes the indicator for the most recent bar only.
// The input is truncated to the warm-up window before computing, so deep
// history does not need to be reprocessed for a single value.
func (r *RadiusTrend) Calculate(ctx context.Context, klines []*domain.Kline) (RadiusTrendPoint, error) {
	if len(klines) == 0 {
		return RadiusTrendPoint{}, fmt.Errorf("%w: no klines supplied", ports.ErrInvalidInput)
	}
	series, err := r.CalculateSeries(ctx, candles.Slice(klines, false))
	if err != nil {
		return RadiusTrendPoint{}, err
	}
	last := len(series.Trend) - 1
	return RadiusTrendPoint{
		Trend:     series.Trend[last],
		MainBand:  series.MainBand[last],
		OuterBand: series.OuterBand[last],
	}, nil
}

// CalculateSeries computes the indicator for every bar of the input.
// The returned sequences have the same length as klines. Histories shorter
// than the warm-up period are not an error: the trend stays false and both
// bands stay NaN for every bar.
func (r *RadiusTrend) CalculateSeries(ctx context.Context, klines []*domain.Kline) (RadiusTrendSeries, error) {
	high := domain.HighPrices(klines)
	low := domain.LowPrices(klines)
	closes := domain.ClosePrices(klines)

	trend, mainBand, outerBand := r.compute(high, low, closes)
	return RadiusTrendSeries{Trend: trend, MainBand: mainBand, OuterBand: outerBand}, nil
}

// compute runs the full Radius Trend recurrence over aligned price columns.
// Each bar's state depends on the previous bar, so the main loop is a plain
// forward scan with the two step accumulators threaded through it.
func (r *RadiusTrend) compute(high, low, closes []float64) ([]bool, []float64, []float64) {
	size := len(closes)
	n := r.config.StepPeriod

	trend := make([]bool, size)
	band := nanSlice(size)
	mainBand := nanSlice(size)
	outerBand := nanSlice(size)

	// Rolling mean of the high-low range via a running sum. The range
	// itself is never NaN, so no definedness tracking is needed here.
	rangeSMA := nanSlice(size)
	rangeSum := 0.0
	for i := 0; i < size; i++ {
		rangeSum += math.Abs(high[i] - low[i])
		if i >= rangeSMAPeriod {
			rangeSum -= math.Abs(high[i-rangeSMAPeriod] - low[i-rangeSMAPeriod])
		}
		if i >= rangeSMAPeriod-1 {
			rangeSMA[i] = rangeSum / rangeSMAPeriod
		}
	}

	if size > warmupBars {
		// Seed the state machine at the first bar with a full range average
		// behind it. The band starts well below price so the seed trend is up.
		trend[warmupBars] = true
		band[warmupBars] = low[warmupBars] * seedBandFactor

		// multi1 steepens the band in a downtrend, multi2 in an uptrend.
		// Each is reset whenever the opposite trend is active.
		multi1 := 0.0
		multi2 := 0.0

		for i := warmupBars + 1; i < size; i++ {
			trend[i] = trend[i-1]
			band[i] = band[i-1]

			if math.IsNaN(rangeSMA[i]) {
				continue
			}

			distance := rangeSMA[i] * r.config.Multi
			distance1 := rangeSMA[i] * stepDistanceFactor

			// A close exactly on the band changes nothing.
			if closes[i] < band[i] {
				trend[i] = false
			}
			if closes[i] > band[i] {
				trend[i] = true
			}

			// On a reversal the band restarts on the far side of price.
			if !trend[i-1] && trend[i] {
				band[i] = low[i] - distance
			}
			if trend[i-1] && !trend[i] {
				band[i] = high[i] + distance
			}

			// Step-angle adjustment: every n-th bar the band is pushed
			// toward price by an amount that grows the longer the current
			// trend has been held.
			if i%n == 0 {
				if trend[i] {
					multi1 = 0
					multi2 += r.config.Step
					band[i] += distance1 * multi2
				} else {
					multi2 = 0
					multi1 += r.config.Step
					band[i] -= distance1 * multi1
				}
			}
		}
	}

	// Main band: n-bar mean of the raw band. A window containing any
	// undefined value stays undefined. n is small, so the window mean is
	// computed directly; this also keeps mainBand == band exact for n=1.
	for i := n - 1; i < size; i++ {
		if mean, ok := windowMean(band[i-n+1 : i+1]); ok {
			mainBand[i] = mean
		}
	}

	// Envelope: the same n-bar window shifted by half the range average,
	// upper and lower. The outer band picks the side matching the trend.
	for i := n - 1; i < size; i++ {
		if math.IsNaN(rangeSMA[i]) || math.IsNaN(band[i]) {
			continue
		}
		offset := rangeSMA[i] * envelopeFactor
		upper, upperOK := shiftedWindowMean(band[i-n+1:i+1], offset)
		lower, lowerOK := shiftedWindowMean(band[i-n+1:i+1], -offset)
		if upperOK && lowerOK {
			if trend[i] {
				outerBand[i] = upper
			} else {
				outerBand[i] = lower
			}
		}
	}

	return trend, mainBand, outerBand
}

// nanSlice returns a slice of the given length with every element NaN.
func nanSlice(size int) []float64 {
	s := make([]float64, size)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// windowMean returns the arithmetic mean of the window, or ok=false if any
// element is undefined.
func windowMean(window []float64) (float64, bool) {
	sum := 0.0
	for _, v := range window {
		if math.IsNaN(v) {
			return 0, false
		}
		sum += v
	}
	return sum / float64(len(window)), true
}

// shiftedWindowMean returns the mean of the window with the offset added to
// each element, or ok=false if any element is undefined.
func shiftedWindowMean(window []float64, offset float64) (float64, bool) {
	sum := 0.0
	for _, v := range window {
		if math.IsNaN(v) {
			return 0, false
		}
		sum += v + offset
	}
	return sum / float64(len(window)), true
}
