package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"StockPipeline/internal/model"
)

// SQLiteRecorder persists the run ledger and portfolio registry to SQLite.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so the read API can query while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("SQLite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER,
			scope       TEXT NOT NULL,
			portfolio   TEXT,
			date        TEXT,
			ok_count    INTEGER,
			empty_count INTEGER,
			failed_count INTEGER,
			files       INTEGER,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS symbol_outcomes (
			run_id  INTEGER NOT NULL REFERENCES runs(id),
			symbol  TEXT NOT NULL,
			status  TEXT NOT NULL,
			reason  TEXT,
			bars    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON symbol_outcomes(run_id)`,

		`CREATE TABLE IF NOT EXISTS portfolios (
			name       TEXT PRIMARY KEY,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS portfolio_symbols (
			portfolio TEXT NOT NULL REFERENCES portfolios(name),
			position  INTEGER NOT NULL,
			symbol    TEXT NOT NULL,
			PRIMARY KEY (portfolio, symbol)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun inserts the run and its per-symbol outcomes, setting run.ID.
func (r *SQLiteRecorder) RecordRun(run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO runs
		(started_at, duration_ms, scope, portfolio, date,
		 ok_count, empty_count, failed_count, files, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.StartedAt.Unix(), run.Duration.Milliseconds(), run.Scope, run.Portfolio, run.Date,
		run.OK, run.Empty, run.Failed, run.Files, run.Err,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, o := range run.Outcomes {
		if _, err := tx.Exec(`INSERT INTO symbol_outcomes (run_id, symbol, status, reason, bars)
			VALUES (?,?,?,?,?)`, id, o.Symbol, string(o.Status), o.Reason, o.Bars); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id
	return nil
}

// RecentRuns returns up to limit runs, newest first, with their symbol
// outcomes in recorded order.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT id, started_at, duration_ms, scope, portfolio, date,
		ok_count, empty_count, failed_count, files, error
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run        RunRecord
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(&run.ID, &startedAt, &durationMs, &run.Scope, &run.Portfolio, &run.Date,
			&run.OK, &run.Empty, &run.Failed, &run.Files, &run.Err); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(startedAt, 0)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		outcomes, err := r.outcomes(runs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load outcomes of run %d: %w", runs[i].ID, err)
		}
		runs[i].Outcomes = outcomes
	}
	return runs, nil
}

func (r *SQLiteRecorder) outcomes(runID int64) ([]model.SymbolOutcome, error) {
	rows, err := r.db.Query(`SELECT symbol, status, COALESCE(reason, ''), COALESCE(bars, 0)
		FROM symbol_outcomes WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SymbolOutcome
	for rows.Next() {
		var (
			o      model.SymbolOutcome
			status string
		)
		if err := rows.Scan(&o.Symbol, &status, &o.Reason, &o.Bars); err != nil {
			return nil, err
		}
		o.Status = model.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SavePortfolio replaces the registered membership of p.
func (r *SQLiteRecorder) SavePortfolio(p model.Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO portfolios (name, updated_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at`,
		p.Name, time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert portfolio: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM portfolio_symbols WHERE portfolio = ?`, p.Name); err != nil {
		return fmt.Errorf("clear symbols: %w", err)
	}
	for i, sym := range model.UniqueSymbols(p.Symbols) {
		if _, err := tx.Exec(`INSERT INTO portfolio_symbols (portfolio, position, symbol) VALUES (?,?,?)`,
			p.Name, i, sym); err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) PortfolioSymbols(name string) ([]string, bool, error) {
	var exists int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM portfolios WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, nil
	}

	rows, err := r.db.Query(`SELECT symbol FROM portfolio_symbols WHERE portfolio = ? ORDER BY position`, name)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, false, err
		}
		symbols = append(symbols, s)
	}
	return symbols, true, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("Closing SQLite recorder")
	return r.db.Close()
}
