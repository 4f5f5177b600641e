package collector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"StockPipeline/internal/cache"
	"StockPipeline/internal/model"
)

// DefaultTimeout bounds one provider call for one symbol.
const DefaultTimeout = 30 * time.Second

var errNoData = errors.New("provider returned no data")

// Fetcher retrieves raw series and financial snapshots through a Provider,
// memoized in a cache.Store. A failure for one symbol never affects others.
type Fetcher struct {
	Provider Provider
	Cache    *cache.Store
	Timeout  time.Duration
	log      zerolog.Logger
}

// NewFetcher creates a Fetcher. A zero timeout selects DefaultTimeout.
func NewFetcher(provider Provider, store *cache.Store, timeout time.Duration, log zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		Provider: provider,
		Cache:    store,
		Timeout:  timeout,
		log:      log.With().Str("component", "fetcher").Str("provider", provider.Name()).Logger(),
	}
}

// FetchSeries returns one RawSeries per distinct symbol. Symbols whose
// provider call fails or times out map to an empty series carrying the
// reason in FetchErr; such results are not cached.
// Each returned series owns its Bars; the cached copy is never shared.
func (f *Fetcher) FetchSeries(ctx context.Context, symbols []string, start, end time.Time, forceRefresh bool) map[string]model.RawSeries {
	out := make(map[string]model.RawSeries, len(symbols))
	for _, symbol := range model.UniqueSymbols(symbols) {
		series, err := f.fetchOne(ctx, symbol, start, end, forceRefresh)
		if err != nil {
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch history")
			series = model.RawSeries{Symbol: symbol, Start: start, End: end, FetchErr: err.Error()}
		} else {
			series.Bars = append([]model.OHLCV(nil), series.Bars...)
		}
		out[symbol] = series
	}
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, symbol string, start, end time.Time, forceRefresh bool) (model.RawSeries, error) {
	key := cache.Key(symbol, start.Format("20060102"), end.Format("20060102"))
	return cache.GetOrCompute(f.Cache, cache.CategorySeries, key, forceRefresh, func() (model.RawSeries, error) {
		cctx, cancel := context.WithTimeout(ctx, f.Timeout)
		defer cancel()

		bars, err := f.Provider.History(cctx, symbol, start, end)
		if err != nil {
			return model.RawSeries{}, err
		}
		if len(bars) == 0 {
			return model.RawSeries{}, errNoData
		}
		f.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Fetched history")
		return model.RawSeries{Symbol: symbol, Start: start, End: end, Bars: bars}, nil
	})
}

// FetchFinancials returns the ratio snapshot for symbol, or nil when the
// provider fails or has no ratios.
func (f *Fetcher) FetchFinancials(ctx context.Context, symbol string, forceRefresh bool) *model.FinancialSnapshot {
	snap, err := cache.GetOrCompute(f.Cache, cache.CategoryFinancials, symbol, forceRefresh, func() (*model.FinancialSnapshot, error) {
		cctx, cancel := context.WithTimeout(ctx, f.Timeout)
		defer cancel()

		ratios, err := f.Provider.Ratios(cctx, symbol)
		if err != nil {
			return nil, err
		}
		if len(ratios) == 0 {
			return nil, errNoData
		}
		return &model.FinancialSnapshot{
			Symbol:    symbol,
			Ratios:    ratios,
			FetchedAt: time.Now(),
		}, nil
	})
	if err != nil {
		if errors.Is(err, errNoData) {
			f.log.Debug().Str("symbol", symbol).Msg("No financial ratios")
		} else {
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch financials")
		}
		return nil
	}
	return snap
}

// Reset clears cached series and financials.
func (f *Fetcher) Reset() {
	f.Cache.Clear(cache.CategorySeries, cache.CategoryFinancials)
}
