package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"StockPipeline/internal/model"
)

// Provider is the external market-data source the Fetcher calls.
// Any failure surfaces as an error; the Fetcher decides how to recover.
type Provider interface {
	Name() string
	// History returns daily bars for symbol in [start, end], oldest first.
	History(ctx context.Context, symbol string, start, end time.Time) ([]model.OHLCV, error)
	// Ratios returns the latest named financial ratios for symbol.
	Ratios(ctx context.Context, symbol string) (map[string]float64, error)
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// inRange keeps bars whose calendar date lies in [start, end].
func inRange(bars []model.OHLCV, start, end time.Time) []model.OHLCV {
	from := dayStart(start)
	to := dayStart(end).AddDate(0, 0, 1)
	out := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		if b.Time.Before(from) || !b.Time.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
