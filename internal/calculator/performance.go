package calculator

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Look-back windows in trading days.
const (
	Window1W = 5
	Window1M = 21
	Window3M = 63
	Window6M = 126
	Window1Y = TradingDaysPerYear
)

// Performance holds whole-series return statistics in percent. Nil fields
// are undefined for the given prices.
type Performance struct {
	GeomMeanDailyReturnPct *float64
	AnnualizedReturnPct    *float64
	DailyStdDevPct         *float64
	AnnualStdDevPct        *float64
}

// PerformanceMetrics computes the geometric mean daily return, the annualized
// return, and the population standard deviation of daily returns (daily and
// annualized). At least two prices are required.
func PerformanceMetrics(prices []float64) Performance {
	var p Performance
	if len(prices) < 2 {
		return p
	}

	first, last := prices[0], prices[len(prices)-1]
	periods := float64(len(prices) - 1)
	if first != 0 {
		geom := math.Pow(last/first, 1/periods) - 1
		annual := math.Pow(1+geom, TradingDaysPerYear) - 1
		p.GeomMeanDailyReturnPct = percent(geom)
		p.AnnualizedReturnPct = percent(annual)
	}

	returns := DailyReturns(prices)
	if len(returns) > 0 {
		daily := stat.PopStdDev(returns, nil)
		p.DailyStdDevPct = percent(daily)
		p.AnnualStdDevPct = percent(daily * math.Sqrt(TradingDaysPerYear))
	}
	return p
}

// DailyReturns converts prices into simple period returns, skipping
// intervals that start at a zero price.
func DailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	return returns
}

// LookbackReturn returns the simple return in percent over the last window
// intervals, or nil when the series is too short.
func LookbackReturn(prices []float64, window int) *float64 {
	n := len(prices)
	if window <= 0 || n-1 < window {
		return nil
	}
	base := prices[n-1-window]
	if base == 0 {
		return nil
	}
	return percent(prices[n-1]/base - 1)
}

func percent(rate float64) *float64 {
	return round(rate*100, 4)
}

func round(v float64, places int32) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := decimal.NewFromFloat(v).Round(places).InexactFloat64()
	return &r
}
