package manager

import (
	"sort"

	"StockPipeline/internal/model"
	"StockPipeline/internal/storage"
)

const dayLayout = "2006-01-02"

// historyBatch builds per-symbol OHLCV tables and the merged close table:
// a time column plus one column per symbol with data, outer-joined on date.
// Dates a symbol has no bar for are left blank.
func historyBatch(symbols []string, series map[string]model.RawSeries) *storage.Batch {
	batch := &storage.Batch{PerSymbol: make(map[string]*storage.Table)}

	closes := make(map[string]map[string]*float64)
	dateSet := make(map[string]bool)
	for _, sym := range symbols {
		s, ok := series[sym]
		if !ok || s.Empty() {
			continue
		}
		batch.Symbols = append(batch.Symbols, sym)

		t := storage.NewTable(storage.TimeColumn, "open", "high", "low", "close", "volume")
		byDate := make(map[string]*float64, len(s.Bars))
		for _, b := range s.Bars {
			d := b.Time.Format(dayLayout)
			t.Append(d,
				storage.FormatFloat(model.Float(b.Open)),
				storage.FormatFloat(model.Float(b.High)),
				storage.FormatFloat(model.Float(b.Low)),
				storage.FormatFloat(model.Float(b.Close)),
				storage.FormatFloat(model.Float(b.Volume)),
			)
			byDate[d] = model.Float(b.Close)
			dateSet[d] = true
		}
		batch.PerSymbol[sym] = t
		closes[sym] = byDate
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	merged := storage.NewTable(append([]string{storage.TimeColumn}, batch.Symbols...)...)
	for _, d := range dates {
		row := make([]string, 0, len(batch.Symbols)+1)
		row = append(row, d)
		for _, sym := range batch.Symbols {
			row = append(row, storage.FormatFloat(closes[sym][d]))
		}
		merged.Append(row...)
	}
	batch.Merged = merged
	return batch
}

type column struct {
	name  string
	value func(r *model.MetricRecord) *float64
}

var perfColumns = []column{
	{"last_close", func(r *model.MetricRecord) *float64 { return r.LastClose }},
	{"geom_mean_daily_return_pct", func(r *model.MetricRecord) *float64 { return r.GeomMeanDailyReturnPct }},
	{"annualized_return_pct", func(r *model.MetricRecord) *float64 { return r.AnnualizedReturnPct }},
	{"daily_std_dev_pct", func(r *model.MetricRecord) *float64 { return r.DailyStdDevPct }},
	{"annual_std_dev_pct", func(r *model.MetricRecord) *float64 { return r.AnnualStdDevPct }},
	{"return_1w_pct", func(r *model.MetricRecord) *float64 { return r.Return1WPct }},
	{"return_1m_pct", func(r *model.MetricRecord) *float64 { return r.Return1MPct }},
	{"return_3m_pct", func(r *model.MetricRecord) *float64 { return r.Return3MPct }},
	{"return_6m_pct", func(r *model.MetricRecord) *float64 { return r.Return6MPct }},
	{"return_1y_pct", func(r *model.MetricRecord) *float64 { return r.Return1YPct }},
	{"sma50", func(r *model.MetricRecord) *float64 { return r.SMA50 }},
	{"sma200", func(r *model.MetricRecord) *float64 { return r.SMA200 }},
	{"rsi14", func(r *model.MetricRecord) *float64 { return r.RSI14 }},
	{"high_52w", func(r *model.MetricRecord) *float64 { return r.High52w }},
	{"low_52w", func(r *model.MetricRecord) *float64 { return r.Low52w }},
	{"position_52w", func(r *model.MetricRecord) *float64 { return r.Position52w }},
}

var intrinsicColumns = []column{
	{"last_close", func(r *model.MetricRecord) *float64 { return r.LastClose }},
	{"eps", func(r *model.MetricRecord) *float64 { return r.EPS }},
	{"bvps", func(r *model.MetricRecord) *float64 { return r.BVPS }},
	{"pe", func(r *model.MetricRecord) *float64 { return r.PE }},
	{"pb", func(r *model.MetricRecord) *float64 { return r.PB }},
	{"roe", func(r *model.MetricRecord) *float64 { return r.ROE }},
	{"growth_pct", func(r *model.MetricRecord) *float64 { return r.GrowthPct }},
	{"intrinsic_value", func(r *model.MetricRecord) *float64 { return r.IntrinsicValue }},
	{"graham_number", func(r *model.MetricRecord) *float64 { return r.GrahamNumber }},
	{"margin_of_safety_pct", func(r *model.MetricRecord) *float64 { return r.MarginOfSafetyPct }},
}

// recordTable renders one row per record: symbol, observations, then cols.
func recordTable(records []*model.MetricRecord, cols []column) *storage.Batch {
	names := []string{"symbol", "observations"}
	for _, c := range cols {
		names = append(names, c.name)
	}
	t := storage.NewTable(names...)
	symbols := make([]string, 0, len(records))
	for _, r := range records {
		row := []string{r.Symbol, storage.FormatFloat(model.Float(float64(r.Observations)))}
		for _, c := range cols {
			row = append(row, storage.FormatFloat(c.value(r)))
		}
		t.Append(row...)
		symbols = append(symbols, r.Symbol)
	}
	return &storage.Batch{Symbols: symbols, Merged: t}
}

// hasObservations reports whether any record was computed from bars.
func hasObservations(records []*model.MetricRecord) bool {
	for _, r := range records {
		if r.Observations > 0 {
			return true
		}
	}
	return false
}

// finBatch renders one row per snapshot with the union of ratio names as
// columns, sorted by name. Missing ratios are blank.
func finBatch(symbols []string, snaps map[string]*model.FinancialSnapshot) *storage.Batch {
	nameSet := make(map[string]bool)
	var present []string
	for _, sym := range symbols {
		snap := snaps[sym]
		if snap == nil {
			continue
		}
		present = append(present, sym)
		for _, n := range snap.Names() {
			nameSet[n] = true
		}
	}
	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sort.Strings(names)

	t := storage.NewTable(append([]string{"symbol"}, names...)...)
	for _, sym := range present {
		snap := snaps[sym]
		row := []string{sym}
		for _, n := range names {
			if v, ok := snap.Ratio(n); ok {
				row = append(row, storage.FormatFloat(model.Float(v)))
			} else {
				row = append(row, "")
			}
		}
		t.Append(row...)
	}
	return &storage.Batch{Symbols: present, Merged: t}
}
