// Package store defines the collaborator contracts the engines consume and their
// SQLite and in-memory implementations.
package store

import (
	"context"
	"time"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

// PriceStore returns daily bars, already deduplicated by date and ascending.
type PriceStore interface {
	BarsFor(ctx context.Context, instrumentID string, since time.Time) ([]model.PriceBar, error)
	// LatestBar returns nil without error when the instrument has no bars.
	LatestBar(ctx context.Context, instrumentID string) (*model.PriceBar, error)
}

// PriceWriter stores bars. A bar for an existing (instrument, date) replaces it.
type PriceWriter interface {
	SaveBars(ctx context.Context, bars []model.PriceBar) error
}

// InstrumentStore holds instrument metadata.
type InstrumentStore interface {
	Instruments(ctx context.Context) ([]model.Instrument, error)
	// Instrument returns a NotFoundError for unknown ids.
	Instrument(ctx context.Context, id string) (*model.Instrument, error)
	SaveInstrument(ctx context.Context, inst model.Instrument) error
}

// LedgerStore is the append-only transaction ledger.
type LedgerStore interface {
	EntriesFor(ctx context.Context, portfolioID string) ([]model.LedgerEntry, error)
	Append(ctx context.Context, entry model.LedgerEntry) error
}

// WatchlistStore is the keyed set of watchlist entries.
type WatchlistStore interface {
	// FindActive returns the most recently refreshed entry of the pair whose
	// DateAdded is not before since, or nil.
	FindActive(ctx context.Context, instrumentID, ownerID string, since time.Time) (*model.WatchlistEntry, error)
	// Upsert inserts the entry, or replaces the stored entry with the same ID.
	Upsert(ctx context.Context, entry *model.WatchlistEntry) error
	// Entry returns the entry with the given ID, or nil.
	Entry(ctx context.Context, id string) (*model.WatchlistEntry, error)
	// SetCurrentPrice and SetPriceChangePct write a single column and leave
	// the rest of the entry as stored. Unknown IDs are ignored.
	SetCurrentPrice(ctx context.Context, id string, price float64) error
	SetPriceChangePct(ctx context.Context, id string, pct float64) error
	// AllActive returns the owner's entries, most recently refreshed first.
	AllActive(ctx context.Context, ownerID string) ([]model.WatchlistEntry, error)
	// DeleteOlderThan removes every entry whose basis timestamp is before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, basis model.ExpiryBasis) (int64, error)
}

// OwnerStore holds the owners entries can belong to.
type OwnerStore interface {
	OwnerExists(ctx context.Context, id string) (bool, error)
	Owners(ctx context.Context) ([]model.Owner, error)
	AddOwner(ctx context.Context, owner model.Owner) error
}

// Store bundles every contract; both implementations satisfy it.
type Store interface {
	PriceStore
	PriceWriter
	InstrumentStore
	LedgerStore
	WatchlistStore
	OwnerStore
	Close() error
}

// History returns the full bar history of a known instrument. Unknown ids and
// instruments without bars give a NotFoundError.
func History(ctx context.Context, instruments InstrumentStore, prices PriceStore, id string) ([]model.PriceBar, error) {
	if _, err := instruments.Instrument(ctx, id); err != nil {
		return nil, err
	}
	bars, err := prices.BarsFor(ctx, id, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apperrors.NewNotFoundError("price history", id)
	}
	return bars, nil
}
