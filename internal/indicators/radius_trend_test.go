package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"radiustrend/internal/domain"
	"radiustrend/internal/ports"
)

const tolerance = 1e-9

// flatKlines builds a constant-price history: every bar has the given
// high/low/close. The high-low range average is then exact, which keeps
// expected band values easy to derive by hand.
func flatKlines(size int, high, low, closePrice float64) []*domain.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, size)
	for i := 0; i < size; i++ {
		klines[i] = &domain.Kline{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     closePrice,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   1,
			IsFinal:  true,
		}
	}
	return klines
}

// reversalKlines builds a three-regime history with a constant high-low
// range of 10 throughout: flat at 100 until bar 110, a drop to 60 until bar
// 120, then a jump to 200. With the default multi the band resets are exact.
func reversalKlines(size int) []*domain.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, size)
	for i := 0; i < size; i++ {
		price := 100.0
		if i >= 110 {
			price = 60.0
		}
		if i >= 120 {
			price = 200.0
		}
		klines[i] = &domain.Kline{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price + 5,
			Low:      price - 5,
			Close:    price,
			Volume:   1,
			IsFinal:  true,
		}
	}
	return klines
}

func mustNewRadiusTrend(t *testing.T, config RadiusTrendConfig) *RadiusTrend {
	t.Helper()
	rt, err := NewRadiusTrend(config)
	if err != nil {
		t.Fatalf("NewRadiusTrend(%+v) returned error: %v", config, err)
	}
	return rt
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestRadiusTrend_InsufficientHistory(t *testing.T) {
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{})

	for _, size := range []int{0, 1, 50, 101} {
		series, err := rt.CalculateSeries(context.Background(), flatKlines(size, 105, 95, 100))
		if err != nil {
			t.Fatalf("size %d: unexpected error: %v", size, err)
		}
		if len(series.Trend) != size || len(series.MainBand) != size || len(series.OuterBand) != size {
			t.Fatalf("size %d: output lengths %d/%d/%d, want %d", size, len(series.Trend), len(series.MainBand), len(series.OuterBand), size)
		}
		for i := 0; i < size; i++ {
			if series.Trend[i] {
				t.Errorf("size %d: trend[%d] = true, want false during warm-up", size, i)
			}
			if !math.IsNaN(series.MainBand[i]) {
				t.Errorf("size %d: mainBand[%d] = %v, want NaN during warm-up", size, i, series.MainBand[i])
			}
			if !math.IsNaN(series.OuterBand[i]) {
				t.Errorf("size %d: outerBand[%d] = %v, want NaN during warm-up", size, i, series.OuterBand[i])
			}
		}
	}
}

func TestRadiusTrend_SeedState(t *testing.T) {
	// With a one-bar smoothing window the main band equals the raw band,
	// so the seed value is directly observable.
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{StepPeriod: 1})

	series, err := rt.CalculateSeries(context.Background(), flatKlines(103, 105, 95, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !series.Trend[101] {
		t.Error("trend[101] = false, want true at seed bar")
	}
	wantSeed := 95.0 * 0.8
	if !approxEqual(series.MainBand[101], wantSeed) {
		t.Errorf("mainBand[101] = %v, want %v (low * 0.8)", series.MainBand[101], wantSeed)
	}
	// Range average is exactly 10, so the envelope sits 5 away from the band.
	if !approxEqual(series.OuterBand[101], wantSeed+5) {
		t.Errorf("outerBand[101] = %v, want %v (band + half range average)", series.OuterBand[101], wantSeed+5)
	}
	for i := 0; i < 101; i++ {
		if series.Trend[i] || !math.IsNaN(series.MainBand[i]) {
			t.Fatalf("bar %d has initialized state before the seed bar", i)
		}
	}
}

func TestRadiusTrend_StaircaseRecurrence(t *testing.T) {
	// Flat series, one-bar step period: the band gains
	// distance1 * step * k on the k-th adjustment, so consecutive values
	// follow 76.0, 76.3, 76.9, 77.8 exactly (distance1 = 2, step = 0.15).
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{StepPeriod: 1})

	series, err := rt.CalculateSeries(context.Background(), flatKlines(106, 105, 95, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		index int
		band  float64
	}{
		{101, 76.0},
		{102, 76.3},
		{103, 76.9},
		{104, 77.8},
		{105, 79.0},
	}
	for _, w := range want {
		if !approxEqual(series.MainBand[w.index], w.band) {
			t.Errorf("mainBand[%d] = %v, want %v", w.index, series.MainBand[w.index], w.band)
		}
		if !series.Trend[w.index] {
			t.Errorf("trend[%d] = false, want true (price above band)", w.index)
		}
	}
}

func TestRadiusTrend_SmoothingWindowPropagation(t *testing.T) {
	// The raw band is undefined before the seed bar, so with a 3-bar window
	// the main band must stay undefined until three defined values exist.
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{StepPeriod: 3})

	series, err := rt.CalculateSeries(context.Background(), flatKlines(110, 105, 95, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i <= 102; i++ {
		if !math.IsNaN(series.MainBand[i]) {
			t.Errorf("mainBand[%d] = %v, want NaN while the window overlaps the warm-up", i, series.MainBand[i])
		}
		if !math.IsNaN(series.OuterBand[i]) {
			t.Errorf("outerBand[%d] = %v, want NaN while the window overlaps the warm-up", i, series.OuterBand[i])
		}
	}
	for i := 103; i < 110; i++ {
		if math.IsNaN(series.MainBand[i]) {
			t.Errorf("mainBand[%d] is NaN, want defined once the window is filled", i)
		}
		if math.IsNaN(series.OuterBand[i]) {
			t.Errorf("outerBand[%d] is NaN, want defined once the window is filled", i)
		}
	}
}

func TestRadiusTrend_Determinism(t *testing.T) {
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{})
	klines := reversalKlines(150)

	a, err := rt.CalculateSeries(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := rt.CalculateSeries(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a.Trend {
		if a.Trend[i] != b.Trend[i] {
			t.Fatalf("trend[%d] differs between identical runs", i)
		}
		if math.Float64bits(a.MainBand[i]) != math.Float64bits(b.MainBand[i]) {
			t.Fatalf("mainBand[%d] differs between identical runs: %v vs %v", i, a.MainBand[i], b.MainBand[i])
		}
		if math.Float64bits(a.OuterBand[i]) != math.Float64bits(b.OuterBand[i]) {
			t.Fatalf("outerBand[%d] differs between identical runs: %v vs %v", i, a.OuterBand[i], b.OuterBand[i])
		}
	}
}

func TestRadiusTrend_Reversals(t *testing.T) {
	// StepPeriod 1 makes the raw band observable through the main band.
	// The series is flat at 100, drops to 60 at bar 110, jumps to 200 at
	// bar 120; the high-low range average stays exactly 10 throughout, so
	// distance = 20 and distance1 = 2.
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{StepPeriod: 1})

	series, err := rt.CalculateSeries(context.Background(), reversalKlines(130))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Down reversal at bar 110: band resets to high + distance = 65 + 20,
	// then the same bar's step adjustment subtracts distance1 * step = 0.3.
	if series.Trend[109] != true || series.Trend[110] != false {
		t.Fatalf("expected uptrend through bar 109 and a down flip at bar 110, got %v/%v", series.Trend[109], series.Trend[110])
	}
	if !approxEqual(series.MainBand[110], 84.7) {
		t.Errorf("mainBand[110] = %v, want 84.7 (high + distance, then one step down)", series.MainBand[110])
	}
	if !approxEqual(series.OuterBand[110], 84.7-5) {
		t.Errorf("outerBand[110] = %v, want %v (lower envelope in a downtrend)", series.OuterBand[110], 84.7-5)
	}

	// Up reversal at bar 120: band resets to low - distance = 195 - 20,
	// then one step adjustment adds 0.3.
	if series.Trend[119] != false || series.Trend[120] != true {
		t.Fatalf("expected downtrend through bar 119 and an up flip at bar 120, got %v/%v", series.Trend[119], series.Trend[120])
	}
	if !approxEqual(series.MainBand[120], 175.3) {
		t.Errorf("mainBand[120] = %v, want 175.3 (low - distance, then one step up)", series.MainBand[120])
	}
	if !approxEqual(series.OuterBand[120], 175.3+5) {
		t.Errorf("outerBand[120] = %v, want %v (upper envelope in an uptrend)", series.OuterBand[120], 175.3+5)
	}
}

func TestRadiusTrend_OuterBandSelection(t *testing.T) {
	// The high-low range average is exactly 10 for every bar of the
	// reversal series, so wherever the outer band is defined it must sit
	// exactly half the range average above or below the main band,
	// depending on the trend.
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{})

	series, err := rt.CalculateSeries(context.Background(), reversalKlines(160))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checked := 0
	for i := range series.OuterBand {
		if math.IsNaN(series.OuterBand[i]) {
			continue
		}
		if math.IsNaN(series.MainBand[i]) {
			t.Fatalf("outerBand[%d] defined but mainBand[%d] is NaN", i, i)
		}
		want := series.MainBand[i] - 5
		if series.Trend[i] {
			want = series.MainBand[i] + 5
		}
		if !approxEqual(series.OuterBand[i], want) {
			t.Errorf("outerBand[%d] = %v, want %v for trend=%v", i, series.OuterBand[i], want, series.Trend[i])
		}
		checked++
	}
	if checked == 0 {
		t.Fatal("no defined outer band values were checked")
	}
}

func TestRadiusTrend_SequentialScalarEquivalence(t *testing.T) {
	// With fewer bars than the warm-up slice keeps, the scalar mode sees
	// the exact same history as the sequential mode.
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{})
	klines := reversalKlines(150)

	series, err := rt.CalculateSeries(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	point, err := rt.Calculate(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := len(klines) - 1
	if point.Trend != series.Trend[last] {
		t.Errorf("scalar trend = %v, sequential last = %v", point.Trend, series.Trend[last])
	}
	if math.Float64bits(point.MainBand) != math.Float64bits(series.MainBand[last]) {
		t.Errorf("scalar mainBand = %v, sequential last = %v", point.MainBand, series.MainBand[last])
	}
	if math.Float64bits(point.OuterBand) != math.Float64bits(series.OuterBand[last]) {
		t.Errorf("scalar outerBand = %v, sequential last = %v", point.OuterBand, series.OuterBand[last])
	}
}

func TestRadiusTrend_StepSensitivity(t *testing.T) {
	// Within a held uptrend on a flat series, a larger step must displace
	// the band further on every adjustment bar. Bars 102..109 stay in the
	// seed uptrend for both step values.
	klines := flatKlines(111, 105, 95, 100)

	small := mustNewRadiusTrend(t, RadiusTrendConfig{Step: 0.15, StepPeriod: 1})
	large := mustNewRadiusTrend(t, RadiusTrendConfig{Step: 0.30, StepPeriod: 1})

	smallSeries, err := small.CalculateSeries(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	largeSeries, err := large.CalculateSeries(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 102; i <= 109; i++ {
		if !smallSeries.Trend[i] || !largeSeries.Trend[i] {
			t.Fatalf("trend not held at bar %d (small=%v large=%v)", i, smallSeries.Trend[i], largeSeries.Trend[i])
		}
		smallDelta := smallSeries.MainBand[i] - smallSeries.MainBand[i-1]
		largeDelta := largeSeries.MainBand[i] - largeSeries.MainBand[i-1]
		if largeDelta <= smallDelta {
			t.Errorf("bar %d: displacement %v with step 0.30 not greater than %v with step 0.15", i, largeDelta, smallDelta)
		}
	}
}

func TestNewRadiusTrend_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      RadiusTrendConfig
		expectError bool
	}{
		{name: "defaults from zero config", config: RadiusTrendConfig{}, expectError: false},
		{name: "explicit valid values", config: RadiusTrendConfig{Step: 0.2, Multi: 3, StepPeriod: 5}, expectError: false},
		{name: "negative step", config: RadiusTrendConfig{Step: -0.1}, expectError: true},
		{name: "negative multi", config: RadiusTrendConfig{Multi: -2}, expectError: true},
		{name: "negative step period", config: RadiusTrendConfig{StepPeriod: -3}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRadiusTrend(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if !errors.Is(err, ports.ErrInvalidInput) {
					t.Errorf("error %v does not wrap ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRadiusTrend_DefaultsMatchExplicit(t *testing.T) {
	klines := reversalKlines(140)
	defaulted := mustNewRadiusTrend(t, RadiusTrendConfig{})
	explicit := mustNewRadiusTrend(t, RadiusTrendConfig{Step: DefaultStep, Multi: DefaultMulti, StepPeriod: DefaultStepPeriod})

	a, err := defaulted.CalculateSeries(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := explicit.CalculateSeries(context.Background(), klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a.Trend {
		if a.Trend[i] != b.Trend[i] || math.Float64bits(a.MainBand[i]) != math.Float64bits(b.MainBand[i]) {
			t.Fatalf("defaulted and explicit configs diverge at bar %d", i)
		}
	}
}

func TestRadiusTrend_CalculateEmpty(t *testing.T) {
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{})
	_, err := rt.Calculate(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for empty kline history")
	}
	if !errors.Is(err, ports.ErrInvalidInput) {
		t.Errorf("error %v does not wrap ErrInvalidInput", err)
	}
}

func TestRadiusTrend_NameAndRequiredDataPoints(t *testing.T) {
	rt := mustNewRadiusTrend(t, RadiusTrendConfig{})
	if name := rt.Name(); name != "RadiusTrend" {
		t.Errorf("Name() = %q, want %q", name, "RadiusTrend")
	}
	if got := rt.RequiredDataPoints(); got != 102 {
		t.Errorf("RequiredDataPoints() = %d, want 102", got)
	}
}
