package calculator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPipeline/internal/cache"
	"StockPipeline/internal/model"
)

func makeBars(closes ...float64) []model.OHLCV {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = model.OHLCV{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func rampCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func newCalc() *MetricCalculator {
	return NewMetricCalculator(cache.NewStore(), 5, zerolog.Nop())
}

func TestPerformanceMetrics_SteadyGrowth(t *testing.T) {
	p := PerformanceMetrics([]float64{100, 110, 121})
	require.NotNil(t, p.GeomMeanDailyReturnPct)
	require.NotNil(t, p.AnnualizedReturnPct)
	require.NotNil(t, p.DailyStdDevPct)
	assert.InDelta(t, 10.0, *p.GeomMeanDailyReturnPct, 1e-4)
	assert.InDelta(t, (math.Pow(1.1, 250)-1)*100, *p.AnnualizedReturnPct, 1)
	assert.InDelta(t, 0.0, *p.DailyStdDevPct, 1e-4)
}

func TestPerformanceMetrics_TooShort(t *testing.T) {
	p := PerformanceMetrics([]float64{100})
	assert.Nil(t, p.GeomMeanDailyReturnPct)
	assert.Nil(t, p.AnnualizedReturnPct)
	assert.Nil(t, p.DailyStdDevPct)
	assert.Nil(t, p.AnnualStdDevPct)
}

func TestPerformanceMetrics_StdDev(t *testing.T) {
	// returns: +10%, -10%
	p := PerformanceMetrics([]float64{100, 110, 99})
	require.NotNil(t, p.DailyStdDevPct)
	require.NotNil(t, p.AnnualStdDevPct)
	assert.InDelta(t, 10.0, *p.DailyStdDevPct, 1e-4)
	assert.InDelta(t, 10.0*math.Sqrt(250), *p.AnnualStdDevPct, 1e-3)
}

func TestLookbackReturn(t *testing.T) {
	prices := rampCloses(10, 100, 1)
	r := LookbackReturn(prices, 5)
	require.NotNil(t, r)
	assert.InDelta(t, (109.0/104.0-1)*100, *r, 1e-4)
	assert.Nil(t, LookbackReturn(prices, 10))
}

func TestGraham(t *testing.T) {
	v := GrahamIntrinsicValue(2, 5)
	require.NotNil(t, v)
	assert.Equal(t, 37.0, *v)

	capped := GrahamIntrinsicValue(2, 100)
	require.NotNil(t, capped)
	assert.Equal(t, 2*(8.5+2*MaxGrowthPct), *capped)

	assert.Nil(t, GrahamIntrinsicValue(-1, 5))

	n := GrahamNumber(2, 10)
	require.NotNil(t, n)
	assert.Equal(t, 21.21, *n)
	assert.Nil(t, GrahamNumber(2, 0))

	m := MarginOfSafety(40, 30)
	require.NotNil(t, m)
	assert.Equal(t, 25.0, *m)
}

func TestCalculateRSI(t *testing.T) {
	_, err := CalculateRSI(makeBars(rampCloses(10, 100, 1)...), 14)
	assert.ErrorIs(t, err, ErrInsufficientData)

	rsi, err := CalculateRSI(makeBars(rampCloses(30, 100, 1)...), 14)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, rsi, 1e-6)
}

func TestCalculateSMA(t *testing.T) {
	sma, err := CalculateSMA([]float64{1, 2, 3, 4, 5}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, sma, 1e-9)

	_, err = CalculateSMA([]float64{1}, 2)
	assert.Error(t, err)
}

func TestMetricsFor_EmptySeries(t *testing.T) {
	c := newCalc()
	rec, err := c.MetricsFor("EMPTY", model.RawSeries{Symbol: "EMPTY"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "EMPTY", rec.Symbol)
	assert.Nil(t, rec.LastClose)
	assert.Nil(t, rec.AnnualizedReturnPct)
	assert.False(t, rec.HasValuation())
	assert.Equal(t, 0, c.Cache.Len(cache.CategoryMetrics))
}

func TestMetricsFor_Malformed(t *testing.T) {
	c := newCalc()

	bad := model.RawSeries{Symbol: "BAD", Bars: makeBars(100, math.NaN(), 102)}
	_, err := c.MetricsFor("BAD", bad, nil, false)
	var calcErr *CalculationError
	require.True(t, errors.As(err, &calcErr))
	assert.Equal(t, "BAD", calcErr.Symbol)

	bars := makeBars(100, 101, 102)
	bars[2].Time = bars[0].Time
	_, err = c.MetricsFor("ORDER", model.RawSeries{Symbol: "ORDER", Bars: bars}, nil, false)
	require.True(t, errors.As(err, &calcErr))
	assert.Equal(t, "ORDER", calcErr.Symbol)

	assert.Equal(t, 0, c.Cache.Len(cache.CategoryMetrics))
}

func TestMetricsFor_Deterministic(t *testing.T) {
	series := model.RawSeries{Symbol: "AAA", Bars: makeBars(rampCloses(300, 50, 0.25)...)}
	fin := &model.FinancialSnapshot{Symbol: "AAA", Ratios: map[string]float64{
		model.RatioEPS:  3,
		model.RatioBVPS: 20,
	}}

	a, err := newCalc().MetricsFor("AAA", series, fin, false)
	require.NoError(t, err)
	b, err := newCalc().MetricsFor("AAA", series, fin, false)
	require.NoError(t, err)

	fields := func(r *model.MetricRecord) []*float64 {
		return []*float64{r.LastClose, r.GeomMeanDailyReturnPct, r.AnnualizedReturnPct,
			r.DailyStdDevPct, r.AnnualStdDevPct, r.Return1YPct, r.SMA50, r.SMA200,
			r.RSI14, r.Position52w, r.IntrinsicValue, r.GrahamNumber, r.MarginOfSafetyPct}
	}
	fa, fb := fields(a), fields(b)
	for i := range fa {
		require.NotNil(t, fa[i], "field %d", i)
		require.NotNil(t, fb[i], "field %d", i)
		assert.Equal(t, math.Float64bits(*fa[i]), math.Float64bits(*fb[i]), "field %d", i)
	}
}

func TestMetricsFor_Valuation(t *testing.T) {
	c := newCalc()
	series := model.RawSeries{Symbol: "VAL", Bars: makeBars(30, 30, 30)}
	fin := &model.FinancialSnapshot{Symbol: "VAL", Ratios: map[string]float64{
		model.RatioEPS:       2,
		model.RatioBVPS:      10,
		model.RatioPE:        15,
		model.RatioEPSGrowth: 10,
	}}

	rec, err := c.MetricsFor("VAL", series, fin, false)
	require.NoError(t, err)
	require.NotNil(t, rec.IntrinsicValue)
	assert.Equal(t, 57.0, *rec.IntrinsicValue)
	require.NotNil(t, rec.GrowthPct)
	assert.Equal(t, 10.0, *rec.GrowthPct)
	require.NotNil(t, rec.GrahamNumber)
	assert.Equal(t, 21.21, *rec.GrahamNumber)
	require.NotNil(t, rec.PE)
	assert.Equal(t, 15.0, *rec.PE)
	assert.Nil(t, rec.PB)
	require.NotNil(t, rec.MarginOfSafetyPct)
	assert.InDelta(t, (57.0-30.0)/57.0*100, *rec.MarginOfSafetyPct, 0.01)
	assert.Nil(t, rec.SMA50)
}

func TestMetricsFor_DefaultGrowth(t *testing.T) {
	c := newCalc()
	series := model.RawSeries{Symbol: "DG", Bars: makeBars(10, 11)}
	fin := &model.FinancialSnapshot{Symbol: "DG", Ratios: map[string]float64{model.RatioEPS: 1}}

	rec, err := c.MetricsFor("DG", series, fin, false)
	require.NoError(t, err)
	require.NotNil(t, rec.IntrinsicValue)
	assert.Equal(t, 18.5, *rec.IntrinsicValue)
	assert.Nil(t, rec.GrahamNumber)
}

func TestMetricsFor_Cached(t *testing.T) {
	c := newCalc()
	first := model.RawSeries{Symbol: "C", Bars: makeBars(10, 20)}
	second := model.RawSeries{Symbol: "C", Bars: makeBars(10, 5)}

	a, err := c.MetricsFor("C", first, nil, false)
	require.NoError(t, err)
	b, err := c.MetricsFor("C", second, nil, false)
	require.NoError(t, err)
	assert.Equal(t, *a.LastClose, *b.LastClose, "cached record should be reused")

	forced, err := c.MetricsFor("C", second, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *forced.LastClose)

	c.Reset()
	assert.Equal(t, 0, c.Cache.Len(cache.CategoryMetrics))
}
