package model

// MetricRecord holds the derived figures for one symbol. A nil field means
// the figure is undefined for the inputs (no data, too few bars, missing
// ratios), which is distinct from a computed zero.
type MetricRecord struct {
	Symbol       string
	Observations int

	LastClose *float64

	// Performance over the whole series, in percent.
	GeomMeanDailyReturnPct *float64
	AnnualizedReturnPct    *float64
	DailyStdDevPct         *float64
	AnnualStdDevPct        *float64

	// Simple returns over fixed look-back windows, in percent.
	Return1WPct *float64
	Return1MPct *float64
	Return3MPct *float64
	Return6MPct *float64
	Return1YPct *float64

	SMA50       *float64
	SMA200      *float64
	RSI14       *float64
	High52w     *float64
	Low52w      *float64
	Position52w *float64 // 0.0 ~ 1.0

	// Valuation, only when a FinancialSnapshot was available.
	EPS               *float64
	BVPS              *float64
	PE                *float64
	PB                *float64
	ROE               *float64
	GrowthPct         *float64
	IntrinsicValue    *float64
	GrahamNumber      *float64
	MarginOfSafetyPct *float64
}

// HasValuation reports whether any valuation figure is defined.
func (r *MetricRecord) HasValuation() bool {
	return r.EPS != nil || r.BVPS != nil || r.IntrinsicValue != nil || r.GrahamNumber != nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
