package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"StockPipeline/internal/model"
)

// FolderProvider reads daily bars from CSV exports in a local folder, one
// file per symbol named <SYMBOL>.csv, with the MetaStock column layout
// <Ticker>,<DTYYYYMMDD>,<Open>,<High>,<Low>,<Close>,<Volume>.
type FolderProvider struct {
	Dir string
}

// NewFolderProvider creates a provider over dir.
func NewFolderProvider(dir string) *FolderProvider {
	return &FolderProvider{Dir: dir}
}

func (p *FolderProvider) Name() string { return "folder" }

// History reads the symbol's export and keeps bars in [start, end].
func (p *FolderProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]model.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := p.findFile(symbol)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := parseMetaStock(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return inRange(bars, start, end), nil
}

// Ratios is not supported by local exports.
func (p *FolderProvider) Ratios(_ context.Context, _ string) (map[string]float64, error) {
	return nil, nil
}

func (p *FolderProvider) findFile(symbol string) (string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return "", fmt.Errorf("read folder: %w", err)
	}
	want := strings.ToUpper(symbol) + ".CSV"
	for _, e := range entries {
		if !e.IsDir() && strings.ToUpper(e.Name()) == want {
			return filepath.Join(p.Dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no export for %s in %s", symbol, p.Dir)
}

func parseMetaStock(r io.Reader, symbol string) ([]model.OHLCV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []model.OHLCV
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 7 {
			continue
		}
		if strings.HasPrefix(rec[0], "<") {
			continue // header
		}
		if !strings.EqualFold(rec[0], symbol) {
			continue
		}
		t, err := time.Parse("20060102", rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: date %q: %w", line, rec[1], err)
		}
		vals := make([]float64, 5)
		for i := range vals {
			v, err := strconv.ParseFloat(rec[2+i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %d: %w", line, 3+i, err)
			}
			vals[i] = v
		}
		bars = append(bars, model.OHLCV{
			Time:   t,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	// exports are newest first
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
