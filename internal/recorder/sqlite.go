package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"EquityWatch/internal/model"
	"EquityWatch/internal/store"
)

// SQLiteRecorder persists run history and valuation snapshots to a SQLite database.
type SQLiteRecorder struct {
	db    *sql.DB
	mu    sync.Mutex
	owned bool
	log   zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", store.DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	r, err := newRecorder(db, true, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

// NewSQLiteRecorderWithDB shares an already open database, typically the store's.
// Close leaves the shared handle open.
func NewSQLiteRecorderWithDB(db *sql.DB, logger zerolog.Logger) (*SQLiteRecorder, error) {
	return newRecorder(db, false, logger)
}

func newRecorder(db *sql.DB, owned bool, logger zerolog.Logger) (*SQLiteRecorder, error) {
	r := &SQLiteRecorder{
		db:    db,
		owned: owned,
		log:   logger.With().Str("component", "recorder").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			pass        TEXT NOT NULL,
			owner_id    TEXT,
			added       INTEGER,
			updated     INTEGER,
			removed     INTEGER,
			duration_ms INTEGER,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_ts ON run_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS valuation_snapshots (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp           INTEGER NOT NULL,
			portfolio_id        TEXT NOT NULL,
			total_value         TEXT,
			total_cost          TEXT,
			total_gain_loss_pct TEXT,
			positions           INTEGER,
			unpriced            INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_valuation_ts ON valuation_snapshots(portfolio_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id    INTEGER NOT NULL,
			instrument_id  TEXT NOT NULL,
			quantity       INTEGER,
			total_cost     TEXT,
			current_price  TEXT,
			market_value   TEXT,
			gain_loss_pct  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_snapshot ON position_snapshots(snapshot_id)`,

		`CREATE TABLE IF NOT EXISTS screen_results (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp          INTEGER NOT NULL,
			policy             TEXT,
			rank_no            INTEGER,
			instrument_id      TEXT NOT NULL,
			year_high          REAL,
			current_price      REAL,
			percent_below_high REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_screen_ts ON screen_results(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(ctx context.Context, evt *RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO run_events
		(timestamp, pass, owner_id, added, updated, removed, duration_ms, error)
		VALUES (?,?,?,?,?,?,?,?)`,
		at.Unix(), evt.Pass, evt.OwnerID, evt.Added, evt.Updated, evt.Removed,
		evt.Duration.Milliseconds(), evt.Err,
	)
	return err
}

func (r *SQLiteRecorder) RecordValuation(ctx context.Context, v *model.Valuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO valuation_snapshots
		(timestamp, portfolio_id, total_value, total_cost, total_gain_loss_pct, positions, unpriced)
		VALUES (?,?,?,?,?,?,?)`,
		v.AsOf.Unix(), v.PortfolioID,
		v.TotalValue.String(), v.TotalCost.String(), v.TotalGainLossPct.String(),
		len(v.Positions), len(v.Unpriced),
	)
	if err != nil {
		return fmt.Errorf("insert valuation: %w", err)
	}
	snapshotID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	for _, p := range v.Positions {
		_, err := tx.ExecContext(ctx, `INSERT INTO position_snapshots
			(snapshot_id, instrument_id, quantity, total_cost, current_price, market_value, gain_loss_pct)
			VALUES (?,?,?,?,?,?,?)`,
			snapshotID, p.InstrumentID, p.Quantity,
			p.TotalCost.String(), p.CurrentPrice.String(), p.MarketValue.String(), p.GainLossPct.String(),
		)
		if err != nil {
			return fmt.Errorf("insert position %s: %w", p.InstrumentID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordScreen(ctx context.Context, policy string, at time.Time, candidates []model.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, c := range candidates {
		_, err := tx.ExecContext(ctx, `INSERT INTO screen_results
			(timestamp, policy, rank_no, instrument_id, year_high, current_price, percent_below_high)
			VALUES (?,?,?,?,?,?,?)`,
			at.Unix(), policy, i+1, c.InstrumentID, c.YearHigh, c.CurrentPrice, c.PercentBelowHigh,
		)
		if err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.InstrumentID, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns the latest run events, newest first.
func (r *SQLiteRecorder) RecentRuns(ctx context.Context, limit int) ([]RunEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, pass, owner_id, added, updated, removed, duration_ms, error
		FROM run_events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunEvent
	for rows.Next() {
		var (
			evt     RunEvent
			ts, dur int64
			owner   sql.NullString
			errText sql.NullString
		)
		if err := rows.Scan(&ts, &evt.Pass, &owner, &evt.Added, &evt.Updated, &evt.Removed, &dur, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		evt.At = time.Unix(ts, 0).UTC()
		evt.OwnerID = owner.String
		evt.Duration = time.Duration(dur) * time.Millisecond
		evt.Err = errText.String
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	if !r.owned {
		return nil
	}
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
