package recorder

import (
	"time"

	"StockPipeline/internal/model"
)

// Run scopes.
const (
	ScopePortfolio  = "portfolio"
	ScopeAllSymbols = "all_symbols"
)

// RunRecord summarizes one pipeline run.
type RunRecord struct {
	ID        int64
	Scope     string // ScopePortfolio or ScopeAllSymbols
	Portfolio string
	Date      string // YYYYMMDD partition
	StartedAt time.Time
	Duration  time.Duration
	OK        int
	Empty     int
	Failed    int
	Files     int
	Err       string
	Outcomes  []model.SymbolOutcome
}

// Recorder keeps the run ledger and the authoritative portfolio registry.
type Recorder interface {
	RecordRun(run *RunRecord) error
	RecentRuns(limit int) ([]RunRecord, error)
	SavePortfolio(p model.Portfolio) error
	// PortfolioSymbols returns the registered symbols of a portfolio and
	// whether it is registered at all.
	PortfolioSymbols(name string) ([]string, bool, error)
	Close() error
}
