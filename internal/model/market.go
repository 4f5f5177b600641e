package model

import (
	"sort"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// RawSeries holds the daily bars fetched for one symbol over [Start, End].
// A series is immutable once handed out by the fetcher.
type RawSeries struct {
	Symbol string
	Start  time.Time
	End    time.Time
	Bars   []OHLCV
	// FetchErr is set when the provider failed and Bars is empty.
	FetchErr string
}

// Empty reports whether the series carries no bars.
func (s RawSeries) Empty() bool { return len(s.Bars) == 0 }

// Closes returns the close prices in bar order.
func (s RawSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// LastClose returns the close of the most recent bar.
func (s RawSeries) LastClose() (float64, bool) {
	if len(s.Bars) == 0 {
		return 0, false
	}
	return s.Bars[len(s.Bars)-1].Close, true
}

// Well-known ratio names carried by a FinancialSnapshot.
const (
	RatioEPS       = "eps"
	RatioBVPS      = "bvps"
	RatioPE        = "pe"
	RatioPB        = "pb"
	RatioROE       = "roe"
	RatioEPSGrowth = "eps_growth_pct"
)

// FinancialSnapshot is the point-in-time ratio data for one symbol.
type FinancialSnapshot struct {
	Symbol    string
	Period    string
	Ratios    map[string]float64
	FetchedAt time.Time
}

// Ratio returns a named ratio.
func (f *FinancialSnapshot) Ratio(name string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f.Ratios[name]
	return v, ok
}

// Names returns the ratio names in sorted order.
func (f *FinancialSnapshot) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.Ratios))
	for k := range f.Ratios {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
