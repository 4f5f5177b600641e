package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPipeline/internal/model"
)

func TestYahooProvider_History(t *testing.T) {
	ts1 := time.Date(2024, 6, 4, 13, 30, 0, 0, time.UTC).Unix()
	ts2 := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC).Unix()
	ts3 := time.Date(2024, 6, 5, 13, 30, 0, 0, time.UTC).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/^GSPC", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("period1"))
		body := map[string]any{
			"chart": map[string]any{
				"result": []any{map[string]any{
					"timestamp": []int64{ts1, ts2, ts3},
					"indicators": map[string]any{
						"quote": []any{map[string]any{
							"open":   []any{11.0, 10.0, nil},
							"high":   []any{12.0, 11.0, nil},
							"low":    []any{10.5, 9.5, nil},
							"close":  []any{11.5, 10.5, nil},
							"volume": []any{200, 100, nil},
						}},
					},
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	p := NewYahooProvider("")
	p.BaseURL = srv.URL
	bars, err := p.History(context.Background(), "SPX", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, 11.5, bars[1].Close)
}

func TestYahooProvider_Ratios(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"AAPL","epsTrailingTwelveMonths":6.1,"bookValue":4.4,"trailingPE":30.2}]}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider("")
	p.BaseURL = srv.URL
	ratios, err := p.Ratios(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 6.1, ratios[model.RatioEPS])
	assert.Equal(t, 4.4, ratios[model.RatioBVPS])
	assert.Equal(t, 30.2, ratios[model.RatioPE])
	_, ok := ratios[model.RatioPB]
	assert.False(t, ok)
}

func TestYahooProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewYahooProvider("")
	p.BaseURL = srv.URL
	_, err := p.History(context.Background(), "AAPL", d1, d2)
	assert.ErrorContains(t, err, "status 429")
}

func TestVsTraderProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/bars/daily":
			assert.Equal(t, "VNM", r.URL.Query().Get("symbol"))
			assert.Equal(t, "2024-06-03", r.URL.Query().Get("from"))
			assert.Equal(t, "2024-06-28", r.URL.Query().Get("to"))
			bars := []vsBar{
				{Timestamp: time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC).Unix(), Close: 66},
				{Timestamp: time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC).Unix(), Close: 65},
			}
			_ = json.NewEncoder(w).Encode(bars)
		case "/api/v1/ratios":
			_, _ = w.Write([]byte(`{"eps":4200,"pe":15.5}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewVsTraderProvider(srv.URL, "secret", "")
	bars, err := p.History(context.Background(), "VNM", d1, d2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 65.0, bars[0].Close)

	ratios, err := p.Ratios(context.Background(), "VNM")
	require.NoError(t, err)
	assert.Equal(t, 4200.0, ratios[model.RatioEPS])
}

func TestFolderProvider(t *testing.T) {
	dir := t.TempDir()
	content := "<Ticker>,<DTYYYYMMDD>,<Open>,<High>,<Low>,<Close>,<Volume>\n" +
		"FPT,20240605,101,103,100,102,5000\n" +
		"FPT,20240604,100,102,99,101,4000\n" +
		"FPT,20240520,90,92,89,91,3000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fpt.csv"), []byte(content), 0o644))

	p := NewFolderProvider(dir)
	bars, err := p.History(context.Background(), "FPT", d1, d2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 102.0, bars[1].Close)
	assert.True(t, bars[0].Time.Before(bars[1].Time))

	_, err = p.History(context.Background(), "MISSING", d1, d2)
	assert.Error(t, err)

	ratios, err := p.Ratios(context.Background(), "FPT")
	assert.NoError(t, err)
	assert.Empty(t, ratios)
}
