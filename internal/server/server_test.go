package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPipeline/internal/model"
	"StockPipeline/internal/recorder"
	"StockPipeline/internal/storage"
)

type fakeReader struct {
	tables   map[storage.Kind]*storage.Table
	symbols  map[string][]string
	lastDate time.Time
	fail     bool
}

func (f *fakeReader) LoadLatestData(kind storage.Kind) (*storage.Table, error) {
	if f.fail {
		return nil, errors.New("disk error")
	}
	return f.tables[kind], nil
}

func (f *fakeReader) ListSymbols(portfolio string, date time.Time) ([]string, error) {
	f.lastDate = date
	s, ok := f.symbols[portfolio]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, portfolio)
	}
	return s, nil
}

type fakeRuns struct {
	recorder.NoopRecorder
	runs []recorder.RunRecord
}

func (f *fakeRuns) RecentRuns(limit int) ([]recorder.RunRecord, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newTestServer(reader Reader, rec recorder.Recorder) *Server {
	return New(Config{
		Log:      zerolog.Nop(),
		Reader:   reader,
		Recorder: rec,
		Now:      func() time.Time { return time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC) },
	})
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeReader{}, nil)
	rec := do(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestLatest(t *testing.T) {
	perf := storage.NewTable("symbol", "annualized_return_pct")
	perf.Append("FPT", "21.5")
	perf.Append("VNM", "")
	s := newTestServer(&fakeReader{tables: map[storage.Kind]*storage.Table{storage.KindPerf: perf}}, nil)

	rec := do(t, s, "/api/latest/perf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body tableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "perf", body.Kind)
	assert.Equal(t, perf.Columns, body.Columns)
	assert.Equal(t, perf.Rows, body.Rows)

	assert.Equal(t, http.StatusNotFound, do(t, s, "/api/latest/history").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/latest/bogus").Code)
}

func TestLatest_ReadError(t *testing.T) {
	s := newTestServer(&fakeReader{fail: true}, nil)
	assert.Equal(t, http.StatusInternalServerError, do(t, s, "/api/latest/fin").Code)
}

func TestSymbols(t *testing.T) {
	reader := &fakeReader{symbols: map[string][]string{"VN30": {"FPT", "VNM"}}}
	s := newTestServer(reader, nil)

	rec := do(t, s, "/api/portfolios/VN30/symbols?date=20240705")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Portfolio string   `json:"portfolio"`
		Date      string   `json:"date"`
		Symbols   []string `json:"symbols"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"FPT", "VNM"}, body.Symbols)
	assert.Equal(t, "20240705", body.Date)

	rec = do(t, s, "/api/portfolios/VN30/symbols")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20240710", reader.lastDate.Format(storage.DateLayout))

	assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/portfolios/VN30/symbols?date=2024-07-05").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "/api/portfolios/VN100/symbols").Code)
}

func TestRuns(t *testing.T) {
	runs := &fakeRuns{runs: []recorder.RunRecord{
		{ID: 2, Scope: recorder.ScopeAllSymbols, Date: "20240710", OK: 3, Duration: 2 * time.Second},
		{ID: 1, Scope: recorder.ScopePortfolio, Portfolio: "VN30", Date: "20240710", Failed: 1,
			Outcomes: []model.SymbolOutcome{{Symbol: "X", Status: model.StatusFailed}}},
	}}
	s := newTestServer(&fakeReader{}, runs)

	rec := do(t, s, "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body []runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, int64(2), body[0].ID)
	assert.Equal(t, "2s", body[0].Duration)

	assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/runs?limit=x").Code)
}
