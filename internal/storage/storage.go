// Package storage persists pipeline output as date-partitioned CSV files
// and maintains the root-level latest files read by consumers.
//
// Layout under the base directory:
//
//	<kind>_all_symbols.csv                                   latest pointer
//	<YYYYMMDD>/<kind>_all_symbols_<YYYYMMDD>_<HHMM>.csv      dated snapshot
//	<YYYYMMDD>/<P>/symbols/<SYMBOL>_<kind>_<YYYYMMDD>.csv    per-symbol data
//	<YYYYMMDD>/<P>/<kind>_<P>_<YYYYMMDD>_<HHMM>.csv          portfolio merged
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Kind is a category of persisted data.
type Kind string

const (
	KindHistory        Kind = "history"
	KindPerf           Kind = "perf"
	KindIntrinsicValue Kind = "intrinsic_value"
	KindFin            Kind = "fin"
)

// Kinds lists every known kind.
var Kinds = []Kind{KindHistory, KindPerf, KindIntrinsicValue, KindFin}

// DateLayout names date partitions.
const DateLayout = "20060102"

const ext = ".csv"

var (
	ErrUnknownKind      = errors.New("unknown data kind")
	ErrInvalidKeepCount = errors.New("keep count must be at least 1")
	ErrNotFound         = errors.New("no stored data")
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Batch is the data handed to Save for one kind.
type Batch struct {
	// Symbols in output order.
	Symbols []string
	// PerSymbol holds per-symbol tables; only written for portfolio saves.
	PerSymbol map[string]*Table
	// Merged is the combined table across Symbols.
	Merged *Table
}

// Storage reads and writes the partitioned layout under BaseDir.
type Storage struct {
	BaseDir string
	// Now stamps the HHMM suffix of merged files.
	Now func() time.Time
	// Mirror, when set, receives a copy of every written file.
	Mirror Mirror
	log    zerolog.Logger

	removeAll func(path string) error
}

// New creates a Storage rooted at baseDir.
func New(baseDir string, log zerolog.Logger) *Storage {
	return &Storage{
		BaseDir: baseDir,
		Now:       time.Now,
		log:       log.With().Str("component", "storage").Logger(),
		removeAll: os.RemoveAll,
	}
}

// LatestPath is the root latest pointer file for kind.
func (s *Storage) LatestPath(kind Kind) string {
	return filepath.Join(s.BaseDir, string(kind)+"_all_symbols"+ext)
}

// Save writes batch for kind and date. With a portfolio it writes the
// per-symbol files and the portfolio merged file; it always writes the
// dated all-symbols snapshot and, only once every partition write has
// succeeded, replaces the latest pointer. Paths are returned in write order.
func (s *Storage) Save(kind Kind, portfolio string, date time.Time, batch *Batch) ([]string, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if batch == nil || batch.Merged == nil {
		return nil, fmt.Errorf("save %s: merged table is required", kind)
	}

	day := date.Format(DateLayout)
	stamp := day + "_" + s.Now().Format("1504")
	partition := filepath.Join(s.BaseDir, day)

	var written []string
	write := func(path string, t *Table) error {
		if err := writeTable(path, t); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if portfolio != "" {
		dir := filepath.Join(partition, portfolio)
		for _, sym := range batch.Symbols {
			t, ok := batch.PerSymbol[sym]
			if !ok || t == nil {
				continue
			}
			path := filepath.Join(dir, "symbols", fmt.Sprintf("%s_%s_%s%s", sym, kind, day, ext))
			if err := write(path, t); err != nil {
				return written, fmt.Errorf("save %s for %s: %w", kind, sym, err)
			}
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s%s", kind, portfolio, stamp, ext))
		if err := write(path, batch.Merged); err != nil {
			return written, fmt.Errorf("save %s merged for %s: %w", kind, portfolio, err)
		}
	}

	snapshot := filepath.Join(partition, fmt.Sprintf("%s_all_symbols_%s%s", kind, stamp, ext))
	if err := write(snapshot, batch.Merged); err != nil {
		return written, fmt.Errorf("save %s snapshot: %w", kind, err)
	}

	if err := write(s.LatestPath(kind), batch.Merged); err != nil {
		return written, fmt.Errorf("update latest %s: %w", kind, err)
	}

	s.log.Info().Str("kind", string(kind)).Str("portfolio", portfolio).Str("date", day).
		Int("files", len(written)).Msg("Saved")
	s.mirror(written)
	return written, nil
}

// LoadLatest reads the latest pointer for kind. It returns a nil table
// when nothing has been saved yet.
func (s *Storage) LoadLatest(kind Kind) (*Table, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	t, err := ReadTable(s.LatestPath(kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return t, err
}

// MergedPath returns the newest merged file of kind for portfolio on date.
func (s *Storage) MergedPath(kind Kind, portfolio string, date time.Time) (string, error) {
	day := date.Format(DateLayout)
	dir := filepath.Join(s.BaseDir, day, portfolio)
	prefix := fmt.Sprintf("%s_%s_%s_", kind, portfolio, day)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s %s for %s", ErrNotFound, kind, day, portfolio)
	}
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		if len(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)) != 4 {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s %s for %s", ErrNotFound, kind, day, portfolio)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// ListSymbolsFor returns the symbols of portfolio on date, read from the
// header of its newest merged history file.
func (s *Storage) ListSymbolsFor(portfolio string, date time.Time) ([]string, error) {
	path, err := s.MergedPath(KindHistory, portfolio, date)
	if err != nil {
		return nil, err
	}
	header, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(header))
	for _, col := range header {
		if col == TimeColumn {
			continue
		}
		symbols = append(symbols, col)
	}
	return symbols, nil
}

// TimeColumn is the index column of history tables.
const TimeColumn = "time"

// DateFolders returns the names of date partitions, newest first.
func (s *Storage) DateFolders() ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() && isDateName(e.Name()) {
			dates = append(dates, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// CleanupOldDateFolders keeps the newest keepCount date partitions and
// removes the rest. A folder that cannot be removed is logged and skipped.
// Entries whose names are not dates are never touched.
func (s *Storage) CleanupOldDateFolders(keepCount int) ([]string, error) {
	if keepCount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeepCount, keepCount)
	}
	dates, err := s.DateFolders()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	if len(dates) <= keepCount {
		return nil, nil
	}

	remove := s.removeAll
	if remove == nil {
		remove = os.RemoveAll
	}
	var removed []string
	for _, name := range dates[keepCount:] {
		path := filepath.Join(s.BaseDir, name)
		if err := remove(path); err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("Failed to remove old partition")
			continue
		}
		removed = append(removed, name)
	}
	s.log.Info().Int("removed", len(removed)).Int("kept", keepCount).Msg("Cleaned up old partitions")
	return removed, nil
}

func isDateName(name string) bool {
	if len(name) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, name)
	return err == nil
}
