package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"StockPipeline/internal/model"
)

// VsTraderProvider implements Provider using the vstrader REST API.
type VsTraderProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewVsTraderProvider creates a new provider with optional proxy support.
func NewVsTraderProvider(baseURL, apiKey, proxyURL string) *VsTraderProvider {
	return &VsTraderProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
	}
}

func (p *VsTraderProvider) Name() string { return "vstrader" }

// vsBar is the expected JSON shape from the vstrader API.
type vsBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// History fetches daily bars between start and end inclusive.
func (p *VsTraderProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]model.OHLCV, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", start.Format("2006-01-02"))
	q.Set("to", end.Format("2006-01-02"))

	var vsBars []vsBar
	if err := p.getJSON(ctx, p.BaseURL+"/api/v1/bars/daily?"+q.Encode(), &vsBars); err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	bars := make([]model.OHLCV, len(vsBars))
	for i, vb := range vsBars {
		bars[i] = model.OHLCV{
			Time:   time.Unix(vb.Timestamp, 0).UTC(),
			Open:   vb.Open,
			High:   vb.High,
			Low:    vb.Low,
			Close:  vb.Close,
			Volume: vb.Volume,
		}
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return inRange(bars, start, end), nil
}

// Ratios fetches the latest financial ratios, keyed by ratio name.
func (p *VsTraderProvider) Ratios(ctx context.Context, symbol string) (map[string]float64, error) {
	var ratios map[string]float64
	if err := p.getJSON(ctx, p.BaseURL+"/api/v1/ratios?symbol="+url.QueryEscape(symbol), &ratios); err != nil {
		return nil, fmt.Errorf("fetch ratios: %w", err)
	}
	return ratios, nil
}

func (p *VsTraderProvider) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
