package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

// SQLiteStore persists bars, ledger, watchlist and owners to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// DSN appends the connection pragmas to a database path. The driver runs
// them on every pooled connection.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
// The path ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

// DB exposes the handle so the recorder can share the database file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			id       TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			sector   TEXT,
			industry TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS price_bars (
			instrument_id TEXT NOT NULL,
			date          INTEGER NOT NULL,
			open          REAL,
			high          REAL,
			low           REAL,
			close         REAL,
			volume        REAL,
			UNIQUE(instrument_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_instrument_date ON price_bars(instrument_id, date)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id            TEXT PRIMARY KEY,
			portfolio_id  TEXT NOT NULL,
			instrument_id TEXT NOT NULL,
			side          TEXT NOT NULL,
			quantity      INTEGER NOT NULL,
			price         TEXT NOT NULL,
			timestamp     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_portfolio ON ledger_entries(portfolio_id)`,

		`CREATE TABLE IF NOT EXISTS owners (
			id   TEXT PRIMARY KEY,
			name TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS watchlist (
			id                 TEXT PRIMARY KEY,
			instrument_id      TEXT NOT NULL,
			owner_id           TEXT NOT NULL,
			date_added         INTEGER NOT NULL,
			first_added        INTEGER NOT NULL,
			reason             TEXT,
			sector             TEXT,
			price_when_added   REAL,
			current_price      REAL,
			week_high_52       REAL,
			percent_below_high REAL,
			avg_close          REAL,
			price_change_pct   REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_pair ON watchlist(instrument_id, owner_id, date_added)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_owner ON watchlist(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_date ON watchlist(date_added)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) BarsFor(ctx context.Context, instrumentID string, since time.Time) ([]model.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, open, high, low, close, volume
		FROM price_bars WHERE instrument_id = ? AND date >= ? ORDER BY date ASC`,
		instrumentID, since.Unix())
	if err != nil {
		return nil, apperrors.NewRetrievalError("bars_for", instrumentID, err)
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		b := model.PriceBar{InstrumentID: instrumentID}
		var date int64
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, apperrors.NewRetrievalError("bars_for", instrumentID, err)
		}
		b.Date = time.Unix(date, 0).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewRetrievalError("bars_for", instrumentID, err)
	}
	return bars, nil
}

func (s *SQLiteStore) LatestBar(ctx context.Context, instrumentID string) (*model.PriceBar, error) {
	b := model.PriceBar{InstrumentID: instrumentID}
	var date int64
	err := s.db.QueryRowContext(ctx, `SELECT date, open, high, low, close, volume
		FROM price_bars WHERE instrument_id = ? ORDER BY date DESC LIMIT 1`, instrumentID).
		Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewRetrievalError("latest_bar", instrumentID, err)
	}
	b.Date = time.Unix(date, 0).UTC()
	return &b, nil
}

func (s *SQLiteStore) SaveBars(ctx context.Context, bars []model.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewRetrievalError("save_bars", "", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_bars
		(instrument_id, date, open, high, low, close, volume) VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(instrument_id, date) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume`)
	if err != nil {
		return apperrors.NewRetrievalError("save_bars", "", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.InstrumentID, dayStart(b.Date).Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return apperrors.NewRetrievalError("save_bars", b.InstrumentID+"@"+b.Date.Format("2006-01-02"), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewRetrievalError("save_bars", "", err)
	}
	return nil
}

func (s *SQLiteStore) Instruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, sector, industry FROM instruments ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewRetrievalError("instruments", "", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		var sector, industry sql.NullString
		if err := rows.Scan(&inst.ID, &inst.Name, &sector, &industry); err != nil {
			return nil, apperrors.NewRetrievalError("instruments", "", err)
		}
		inst.Sector, inst.Industry = sector.String, industry.String
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewRetrievalError("instruments", "", err)
	}
	return out, nil
}

func (s *SQLiteStore) Instrument(ctx context.Context, id string) (*model.Instrument, error) {
	inst := model.Instrument{ID: id}
	var sector, industry sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT name, sector, industry FROM instruments WHERE id = ?`, id).
		Scan(&inst.Name, &sector, &industry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("instrument", id)
	}
	if err != nil {
		return nil, apperrors.NewRetrievalError("instrument", id, err)
	}
	inst.Sector, inst.Industry = sector.String, industry.String
	return &inst, nil
}

func (s *SQLiteStore) SaveInstrument(ctx context.Context, inst model.Instrument) error {
	if inst.ID == "" {
		return apperrors.NewInputError("instrument_id", nil, "instrument id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO instruments (id, name, sector, industry) VALUES (?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, sector = excluded.sector, industry = excluded.industry`,
		inst.ID, inst.Name, inst.Sector, inst.Industry)
	if err != nil {
		return apperrors.NewRetrievalError("save_instrument", inst.ID, err)
	}
	return nil
}

func (s *SQLiteStore) EntriesFor(ctx context.Context, portfolioID string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, instrument_id, side, quantity, price, timestamp
		FROM ledger_entries WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return nil, apperrors.NewRetrievalError("entries_for", portfolioID, err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		e := model.LedgerEntry{PortfolioID: portfolioID}
		var side, price string
		var ts int64
		if err := rows.Scan(&e.ID, &e.InstrumentID, &side, &e.Quantity, &price, &ts); err != nil {
			return nil, apperrors.NewRetrievalError("entries_for", portfolioID, err)
		}
		e.Side = model.Side(side)
		e.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, apperrors.NewRetrievalError("entries_for", portfolioID, fmt.Errorf("entry %s price %q: %w", e.ID, price, err))
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewRetrievalError("entries_for", portfolioID, err)
	}
	return out, nil
}

func (s *SQLiteStore) Append(ctx context.Context, entry model.LedgerEntry) error {
	if err := validateLedgerEntry(entry); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO ledger_entries
		(id, portfolio_id, instrument_id, side, quantity, price, timestamp) VALUES (?,?,?,?,?,?,?)`,
		entry.ID, entry.PortfolioID, entry.InstrumentID, string(entry.Side),
		entry.Quantity, entry.Price.String(), entry.Timestamp.Unix())
	if err != nil {
		return apperrors.NewRetrievalError("append", entry.PortfolioID+"/"+entry.ID, err)
	}
	return nil
}

const watchlistColumns = `id, instrument_id, owner_id, date_added, first_added, reason, sector,
	price_when_added, current_price, week_high_52, percent_below_high, avg_close, price_change_pct`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (model.WatchlistEntry, error) {
	var e model.WatchlistEntry
	var added, first int64
	var reason, sector sql.NullString
	err := row.Scan(&e.ID, &e.InstrumentID, &e.OwnerID, &added, &first, &reason, &sector,
		&e.PriceWhenAdded, &e.CurrentPrice, &e.WeekHigh52, &e.PercentBelowHigh, &e.AvgClose, &e.PriceChangePct)
	if err != nil {
		return e, err
	}
	e.DateAdded = time.Unix(added, 0).UTC()
	e.FirstAdded = time.Unix(first, 0).UTC()
	e.Reason, e.Sector = reason.String, sector.String
	return e, nil
}

func (s *SQLiteStore) FindActive(ctx context.Context, instrumentID, ownerID string, since time.Time) (*model.WatchlistEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+watchlistColumns+` FROM watchlist
		WHERE instrument_id = ? AND owner_id = ? AND date_added >= ?
		ORDER BY date_added DESC LIMIT 1`, instrumentID, ownerID, since.Unix())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewRetrievalError("find_active", instrumentID+"/"+ownerID, err)
	}
	return &e, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, e *model.WatchlistEntry) error {
	if e.ID == "" {
		return apperrors.NewInputError("id", nil, "watchlist entry has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO watchlist (`+watchlistColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		date_added = excluded.date_added, reason = excluded.reason, sector = excluded.sector,
		price_when_added = excluded.price_when_added, current_price = excluded.current_price,
		week_high_52 = excluded.week_high_52, percent_below_high = excluded.percent_below_high,
		avg_close = excluded.avg_close, price_change_pct = excluded.price_change_pct`,
		e.ID, e.InstrumentID, e.OwnerID, e.DateAdded.Unix(), e.FirstAdded.Unix(), e.Reason, e.Sector,
		e.PriceWhenAdded, e.CurrentPrice, e.WeekHigh52, e.PercentBelowHigh, e.AvgClose, e.PriceChangePct)
	if err != nil {
		return apperrors.NewRetrievalError("upsert", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Entry(ctx context.Context, id string) (*model.WatchlistEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+watchlistColumns+` FROM watchlist WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewRetrievalError("entry", id, err)
	}
	return &e, nil
}

func (s *SQLiteStore) SetCurrentPrice(ctx context.Context, id string, price float64) error {
	return s.setColumn(ctx, "current_price", id, price)
}

func (s *SQLiteStore) SetPriceChangePct(ctx context.Context, id string, pct float64) error {
	return s.setColumn(ctx, "price_change_pct", id, pct)
}

// setColumn updates one numeric column of a watchlist row. column is never
// user input.
func (s *SQLiteStore) setColumn(ctx context.Context, column, id string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `UPDATE watchlist SET `+column+` = ? WHERE id = ?`, v, id); err != nil {
		return apperrors.NewRetrievalError("set_"+column, id, err)
	}
	return nil
}

func (s *SQLiteStore) AllActive(ctx context.Context, ownerID string) ([]model.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+watchlistColumns+` FROM watchlist
		WHERE owner_id = ? ORDER BY date_added DESC, instrument_id ASC, id ASC`, ownerID)
	if err != nil {
		return nil, apperrors.NewRetrievalError("all_active", ownerID, err)
	}
	defer rows.Close()

	var out []model.WatchlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.NewRetrievalError("all_active", ownerID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewRetrievalError("all_active", ownerID, err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, basis model.ExpiryBasis) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	column := "date_added"
	if basis == model.ExpireByAdded {
		column = "first_added"
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE `+column+` < ?`, cutoff.Unix())
	if err != nil {
		return 0, apperrors.NewRetrievalError("delete_older_than", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewRetrievalError("delete_older_than", column, err)
	}
	return n, nil
}

func (s *SQLiteStore) OwnerExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM owners WHERE id = ?`, id).Scan(&n); err != nil {
		return false, apperrors.NewRetrievalError("owner_exists", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Owners(ctx context.Context) ([]model.Owner, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM owners ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewRetrievalError("owners", "", err)
	}
	defer rows.Close()

	var out []model.Owner
	for rows.Next() {
		var o model.Owner
		var name sql.NullString
		if err := rows.Scan(&o.ID, &name); err != nil {
			return nil, apperrors.NewRetrievalError("owners", "", err)
		}
		o.Name = name.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewRetrievalError("owners", "", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddOwner(ctx context.Context, owner model.Owner) error {
	if owner.ID == "" {
		return apperrors.NewInputError("owner_id", nil, "owner id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO owners (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, owner.ID, owner.Name)
	if err != nil {
		return apperrors.NewRetrievalError("add_owner", owner.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
