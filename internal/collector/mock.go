package collector

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"StockPipeline/internal/model"
)

// MockProvider returns deterministic data for development and testing.
type MockProvider struct {
	// Prices sets the base price per symbol; unknown symbols get a price
	// derived from the symbol name.
	Prices map[string]float64
	// Financials is returned by Ratios; nil entries mean no ratios.
	Financials map[string]map[string]float64
	// Fail makes calls for the listed symbols return the given error.
	Fail map[string]error
	// Hang makes calls for the listed symbols block until ctx is done.
	Hang map[string]bool

	mu           sync.Mutex
	historyCalls map[string]int
	ratioCalls   map[string]int
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]model.OHLCV, error) {
	m.count(&m.historyCalls, symbol)
	if err := m.inject(ctx, symbol); err != nil {
		return nil, err
	}
	return generateMockBars(m.basePrice(symbol), start, end), nil
}

func (m *MockProvider) Ratios(ctx context.Context, symbol string) (map[string]float64, error) {
	m.count(&m.ratioCalls, symbol)
	if err := m.inject(ctx, symbol); err != nil {
		return nil, err
	}
	src := m.Financials[symbol]
	if src == nil {
		return nil, nil
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// HistoryCalls reports how many History calls were made for symbol.
func (m *MockProvider) HistoryCalls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCalls[symbol]
}

// RatioCalls reports how many Ratios calls were made for symbol.
func (m *MockProvider) RatioCalls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ratioCalls[symbol]
}

func (m *MockProvider) count(counter *map[string]int, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *counter == nil {
		*counter = make(map[string]int)
	}
	(*counter)[symbol]++
}

func (m *MockProvider) inject(ctx context.Context, symbol string) error {
	if m.Hang[symbol] {
		<-ctx.Done()
		return ctx.Err()
	}
	if err, ok := m.Fail[symbol]; ok {
		if err == nil {
			err = fmt.Errorf("mock failure for %s", symbol)
		}
		return err
	}
	return nil
}

func (m *MockProvider) basePrice(symbol string) float64 {
	if p, ok := m.Prices[symbol]; ok {
		return p
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 10 + float64(h.Sum32()%990)
}

// generateMockBars emits one bar per weekday in [start, end] on a gentle
// zig-zag trend around basePrice.
func generateMockBars(basePrice float64, start, end time.Time) []model.OHLCV {
	var bars []model.OHLCV
	i := 0
	for d := dayStart(start); !d.After(dayStart(end)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		p := basePrice * (1 + float64(i)*0.001 + float64(i%3-1)*0.002)
		bars = append(bars, model.OHLCV{
			Time:   d,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		})
		i++
	}
	return bars
}
