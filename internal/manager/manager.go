// Package manager wires the fetcher, metric calculator and storage into
// the portfolio and universe pipeline runs, and exposes the read path.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"StockPipeline/internal/calculator"
	"StockPipeline/internal/collector"
	"StockPipeline/internal/model"
	"StockPipeline/internal/recorder"
	"StockPipeline/internal/storage"
)

// Result summarizes one run. Outcomes follow input symbol order.
// Skipped lists the kinds that had no data and were not written; their
// previous files stay in place.
type Result struct {
	Portfolio string
	Date      time.Time
	Outcomes  []model.SymbolOutcome
	Paths     []string
	Skipped   []storage.Kind
}

// Counts returns the number of ok, empty and failed symbols.
func (r *Result) Counts() (ok, empty, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case model.StatusOK:
			ok++
		case model.StatusEmpty:
			empty++
		case model.StatusFailed:
			failed++
		}
	}
	return ok, empty, failed
}

// Outcome returns the outcome for symbol.
func (r *Result) Outcome(symbol string) (model.SymbolOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Symbol == symbol {
			return o, true
		}
	}
	return model.SymbolOutcome{}, false
}

// Manager is the composition root of the pipeline.
type Manager struct {
	Fetcher    *collector.Fetcher
	Calculator *calculator.MetricCalculator
	Storage    *storage.Storage
	Recorder   recorder.Recorder
	// Now dates the partition a run writes to.
	Now func() time.Time
	log zerolog.Logger
}

// New creates a Manager. A nil recorder is replaced by a no-op one.
func New(f *collector.Fetcher, c *calculator.MetricCalculator, s *storage.Storage, rec recorder.Recorder, log zerolog.Logger) *Manager {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Manager{
		Fetcher:    f,
		Calculator: c,
		Storage:    s,
		Recorder:   rec,
		Now:        time.Now,
		log:        log.With().Str("component", "manager").Logger(),
	}
}

// ProcessPortfolio fetches, computes and (when save is set) persists the
// history and performance data of one portfolio. Per-symbol problems are
// reported in the result; only storage failures return an error.
func (m *Manager) ProcessPortfolio(ctx context.Context, name string, symbols []string, start, end time.Time, save bool) (*Result, error) {
	if name == "" {
		return nil, errors.New("portfolio name is required")
	}
	started := m.Now()
	p := model.NewPortfolio(name, symbols)
	if err := m.Recorder.SavePortfolio(p); err != nil {
		m.log.Warn().Err(err).Str("portfolio", name).Msg("Failed to register portfolio")
	}

	res := &Result{Portfolio: name, Date: started}
	series := m.Fetcher.FetchSeries(ctx, p.Symbols, start, end, false)
	records := m.compute(res, p.Symbols, series, nil)

	var err error
	if save {
		history := historyBatch(p.Symbols, series)
		err = m.saveAll(res, name, []kindBatch{
			{storage.KindHistory, history, len(history.Symbols) > 0},
			{storage.KindPerf, recordTable(records, perfColumns), hasObservations(records)},
		})
	}
	m.finish(res, recorder.ScopePortfolio, started, err)
	return res, err
}

// ProcessAllSymbols runs the pipeline over the whole universe and writes
// only the all-symbols files. With calculateIntrinsic it also fetches
// financial ratios and persists valuation and ratio tables.
func (m *Manager) ProcessAllSymbols(ctx context.Context, symbols []string, start, end time.Time, calculateIntrinsic, save bool) (*Result, error) {
	started := m.Now()
	universe := model.UniqueSymbols(symbols)
	res := &Result{Date: started}

	series := m.Fetcher.FetchSeries(ctx, universe, start, end, false)

	var snaps map[string]*model.FinancialSnapshot
	if calculateIntrinsic {
		snaps = make(map[string]*model.FinancialSnapshot, len(universe))
		for _, sym := range universe {
			if series[sym].Empty() {
				continue
			}
			if snap := m.Fetcher.FetchFinancials(ctx, sym, false); snap != nil {
				snaps[sym] = snap
			}
		}
	}
	records := m.compute(res, universe, series, snaps)

	var err error
	if save {
		history := historyBatch(universe, series)
		withData := hasObservations(records)
		batches := []kindBatch{
			{storage.KindHistory, history, len(history.Symbols) > 0},
			{storage.KindPerf, recordTable(records, perfColumns), withData},
		}
		if calculateIntrinsic {
			fin := finBatch(universe, snaps)
			batches = append(batches,
				kindBatch{storage.KindIntrinsicValue, recordTable(records, intrinsicColumns), withData},
				kindBatch{storage.KindFin, fin, len(fin.Symbols) > 0},
			)
		}
		err = m.saveAll(res, "", batches)
	}
	m.finish(res, recorder.ScopeAllSymbols, started, err)
	return res, err
}

// compute derives a record per symbol and fills res.Outcomes. Records for
// empty series are kept so their undefined figures reach the output.
func (m *Manager) compute(res *Result, symbols []string, series map[string]model.RawSeries, snaps map[string]*model.FinancialSnapshot) []*model.MetricRecord {
	records := make([]*model.MetricRecord, 0, len(symbols))
	for _, sym := range symbols {
		s := series[sym]
		out := model.SymbolOutcome{Symbol: sym, Bars: len(s.Bars)}

		rec, err := m.Calculator.MetricsFor(sym, s, snaps[sym], false)
		switch {
		case err != nil:
			out.Status = model.StatusFailed
			out.Reason = err.Error()
			m.log.Warn().Err(err).Str("symbol", sym).Msg("Failed to calculate metrics")
		case s.Empty():
			out.Status = model.StatusEmpty
			out.Reason = s.FetchErr
			out.Record = rec
			records = append(records, rec)
		default:
			out.Status = model.StatusOK
			out.Record = rec
			records = append(records, rec)
		}
		res.Outcomes = append(res.Outcomes, out)
	}
	return records
}

type kindBatch struct {
	kind    storage.Kind
	batch   *storage.Batch
	hasData bool
}

// saveAll writes each batch in order. Batches without data are skipped so
// an outage never replaces the latest files with empty tables.
func (m *Manager) saveAll(res *Result, portfolio string, batches []kindBatch) error {
	for _, kb := range batches {
		if !kb.hasData {
			res.Skipped = append(res.Skipped, kb.kind)
			m.log.Warn().Str("kind", string(kb.kind)).Str("portfolio", portfolio).
				Msg("No data, keeping previous files")
			continue
		}
		paths, err := m.Storage.Save(kb.kind, portfolio, res.Date, kb.batch)
		res.Paths = append(res.Paths, paths...)
		if err != nil {
			return fmt.Errorf("save %s: %w", kb.kind, err)
		}
	}
	return nil
}

func (m *Manager) finish(res *Result, scope string, started time.Time, runErr error) {
	ok, empty, failed := res.Counts()
	evt := m.log.Info()
	if runErr != nil {
		evt = m.log.Error().Err(runErr)
	}
	evt.Str("scope", scope).Str("portfolio", res.Portfolio).
		Int("ok", ok).Int("empty", empty).Int("failed", failed).Int("files", len(res.Paths)).
		Msg("Run finished")

	run := &recorder.RunRecord{
		Scope:     scope,
		Portfolio: res.Portfolio,
		Date:      res.Date.Format(storage.DateLayout),
		StartedAt: started,
		Duration:  m.Now().Sub(started),
		OK:        ok,
		Empty:     empty,
		Failed:    failed,
		Files:     len(res.Paths),
		Outcomes:  res.Outcomes,
	}
	if runErr != nil {
		run.Err = runErr.Error()
	}
	if err := m.Recorder.RecordRun(run); err != nil {
		m.log.Warn().Err(err).Msg("Failed to record run")
	}
}

// LoadLatestData returns the latest table for kind, or nil if none exists.
func (m *Manager) LoadLatestData(kind storage.Kind) (*storage.Table, error) {
	return m.Storage.LoadLatest(kind)
}

// ListSymbols returns a portfolio's symbols from the registry, falling back
// to the header of the stored merged history for date.
func (m *Manager) ListSymbols(portfolio string, date time.Time) ([]string, error) {
	symbols, ok, err := m.Recorder.PortfolioSymbols(portfolio)
	if err != nil {
		m.log.Warn().Err(err).Str("portfolio", portfolio).Msg("Failed to read portfolio registry")
	} else if ok {
		return symbols, nil
	}
	return m.Storage.ListSymbolsFor(portfolio, date)
}

// Cleanup removes date partitions beyond the newest keepCount.
func (m *Manager) Cleanup(keepCount int) ([]string, error) {
	return m.Storage.CleanupOldDateFolders(keepCount)
}

// ClearCaches drops every memoized series, snapshot and metric record.
func (m *Manager) ClearCaches() {
	m.Fetcher.Reset()
	m.Calculator.Reset()
}
