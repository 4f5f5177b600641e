package calculator

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"StockPipeline/internal/cache"
	"StockPipeline/internal/model"
)

// CalculationError reports malformed input for one symbol. It is distinct
// from the empty-series case, which yields an all-undefined record.
type CalculationError struct {
	Symbol string
	Err    error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calculate metrics for %s: %v", e.Symbol, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

// valuation is the cached, series-independent part of a record.
type valuation struct {
	EPS            *float64
	BVPS           *float64
	PE             *float64
	PB             *float64
	ROE            *float64
	GrowthPct      *float64
	IntrinsicValue *float64
	GrahamNumber   *float64
}

// MetricCalculator derives MetricRecords and memoizes them per symbol.
// Entries are keyed by symbol only: callers must force a refresh to
// recompute against a series covering a different range.
type MetricCalculator struct {
	Cache            *cache.Store
	DefaultGrowthPct float64
	log              zerolog.Logger
}

// NewMetricCalculator creates a MetricCalculator backed by store.
func NewMetricCalculator(store *cache.Store, defaultGrowthPct float64, log zerolog.Logger) *MetricCalculator {
	return &MetricCalculator{
		Cache:            store,
		DefaultGrowthPct: defaultGrowthPct,
		log:              log.With().Str("component", "calculator").Logger(),
	}
}

// MetricsFor returns the metric record for symbol. Performance figures come
// from series; valuation figures are added when fin is non-nil. An empty
// series yields a record with every figure undefined.
func (c *MetricCalculator) MetricsFor(symbol string, series model.RawSeries, fin *model.FinancialSnapshot, forceRefresh bool) (*model.MetricRecord, error) {
	if series.Empty() {
		return &model.MetricRecord{Symbol: symbol}, nil
	}

	perf, err := cache.GetOrCompute(c.Cache, cache.CategoryMetrics, symbol, forceRefresh, func() (model.MetricRecord, error) {
		if err := validateBars(series.Bars); err != nil {
			return model.MetricRecord{}, &CalculationError{Symbol: symbol, Err: err}
		}
		c.log.Debug().Str("symbol", symbol).Int("bars", len(series.Bars)).Msg("Computing performance metrics")
		return performanceRecord(symbol, series.Bars), nil
	})
	if err != nil {
		return nil, err
	}

	rec := perf
	if fin == nil {
		return &rec, nil
	}

	val, err := cache.GetOrCompute(c.Cache, cache.CategoryValuation, symbol, forceRefresh, func() (valuation, error) {
		return c.valuationFor(fin), nil
	})
	if err != nil {
		return nil, err
	}
	rec.EPS = val.EPS
	rec.BVPS = val.BVPS
	rec.PE = val.PE
	rec.PB = val.PB
	rec.ROE = val.ROE
	rec.GrowthPct = val.GrowthPct
	rec.IntrinsicValue = val.IntrinsicValue
	rec.GrahamNumber = val.GrahamNumber
	if val.IntrinsicValue != nil && rec.LastClose != nil {
		rec.MarginOfSafetyPct = MarginOfSafety(*val.IntrinsicValue, *rec.LastClose)
	}
	return &rec, nil
}

// Reset clears the memoized records.
func (c *MetricCalculator) Reset() {
	c.Cache.Clear(cache.CategoryMetrics, cache.CategoryValuation)
}

func (c *MetricCalculator) valuationFor(fin *model.FinancialSnapshot) valuation {
	var v valuation
	v.EPS = ratio(fin, model.RatioEPS)
	v.BVPS = ratio(fin, model.RatioBVPS)
	v.PE = ratio(fin, model.RatioPE)
	v.PB = ratio(fin, model.RatioPB)
	v.ROE = ratio(fin, model.RatioROE)

	growth := c.DefaultGrowthPct
	if g, ok := fin.Ratio(model.RatioEPSGrowth); ok && !math.IsNaN(g) {
		growth = g
	}
	v.GrowthPct = model.Float(clampGrowth(growth))

	if v.EPS != nil {
		v.IntrinsicValue = GrahamIntrinsicValue(*v.EPS, growth)
		if v.BVPS != nil {
			v.GrahamNumber = GrahamNumber(*v.EPS, *v.BVPS)
		}
	}
	return v
}

func ratio(fin *model.FinancialSnapshot, name string) *float64 {
	v, ok := fin.Ratio(name)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return model.Float(v)
}

func performanceRecord(symbol string, bars []model.OHLCV) model.MetricRecord {
	closes := extractCloses(bars)
	rec := model.MetricRecord{
		Symbol:       symbol,
		Observations: len(bars),
		LastClose:    model.Float(closes[len(closes)-1]),
	}

	perf := PerformanceMetrics(closes)
	rec.GeomMeanDailyReturnPct = perf.GeomMeanDailyReturnPct
	rec.AnnualizedReturnPct = perf.AnnualizedReturnPct
	rec.DailyStdDevPct = perf.DailyStdDevPct
	rec.AnnualStdDevPct = perf.AnnualStdDevPct

	rec.Return1WPct = LookbackReturn(closes, Window1W)
	rec.Return1MPct = LookbackReturn(closes, Window1M)
	rec.Return3MPct = LookbackReturn(closes, Window3M)
	rec.Return6MPct = LookbackReturn(closes, Window6M)
	rec.Return1YPct = LookbackReturn(closes, Window1Y)

	if ma, err := CalculateMA50(bars); err == nil {
		rec.SMA50 = round(ma, 4)
	}
	if ma, err := CalculateMA200(bars); err == nil {
		rec.SMA200 = round(ma, 4)
	}
	if rsi, err := CalculateRSI(bars, 14); err == nil {
		rec.RSI14 = round(rsi, 2)
	}
	if h, l, err := Calculate52WeekRange(bars); err == nil {
		rec.High52w = model.Float(h)
		rec.Low52w = model.Float(l)
		if pos, err := Calculate52WeekPosition(*rec.LastClose, h, l); err == nil {
			rec.Position52w = round(pos, 4)
		}
	}
	return rec
}

func validateBars(bars []model.OHLCV) error {
	for i, b := range bars {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			return fmt.Errorf("bar %d: close is not a finite number", i)
		}
		if b.Close <= 0 {
			return fmt.Errorf("bar %d: close %v is not positive", i, b.Close)
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return errors.New("bars are not in strictly increasing time order")
		}
	}
	return nil
}
