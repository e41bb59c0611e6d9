package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

// MemoryStore is an in-process Store used for tests and dry runs.
type MemoryStore struct {
	mu          sync.RWMutex
	bars        map[string][]model.PriceBar
	instruments map[string]model.Instrument
	ledger      []model.LedgerEntry
	watchlist   map[string]model.WatchlistEntry
	owners      map[string]model.Owner
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:        make(map[string][]model.PriceBar),
		instruments: make(map[string]model.Instrument),
		watchlist:   make(map[string]model.WatchlistEntry),
		owners:      make(map[string]model.Owner),
	}
}

func (m *MemoryStore) BarsFor(_ context.Context, instrumentID string, since time.Time) ([]model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.PriceBar
	for _, b := range m.bars[instrumentID] {
		if !b.Date.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) LatestBar(_ context.Context, instrumentID string) (*model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bars := m.bars[instrumentID]
	if len(bars) == 0 {
		return nil, nil
	}
	b := bars[len(bars)-1]
	return &b, nil
}

func (m *MemoryStore) SaveBars(_ context.Context, bars []model.PriceBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range bars {
		b.Date = dayStart(b.Date)
		series := m.bars[b.InstrumentID]
		replaced := false
		for i := range series {
			if series[i].Date.Equal(b.Date) {
				series[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			series = append(series, b)
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		m.bars[b.InstrumentID] = series
	}
	return nil
}

func (m *MemoryStore) Instruments(_ context.Context) ([]model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Instrument, 0, len(m.instruments))
	for _, inst := range m.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Instrument(_ context.Context, id string) (*model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instruments[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("instrument", id)
	}
	return &inst, nil
}

func (m *MemoryStore) SaveInstrument(_ context.Context, inst model.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.instruments[inst.ID] = inst
	return nil
}

func (m *MemoryStore) EntriesFor(_ context.Context, portfolioID string) ([]model.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.LedgerEntry
	for _, e := range m.ledger {
		if e.PortfolioID == portfolioID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, entry model.LedgerEntry) error {
	if err := validateLedgerEntry(entry); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger = append(m.ledger, entry)
	return nil
}

func (m *MemoryStore) FindActive(_ context.Context, instrumentID, ownerID string, since time.Time) (*model.WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *model.WatchlistEntry
	for _, e := range m.watchlist {
		if e.InstrumentID != instrumentID || e.OwnerID != ownerID || e.DateAdded.Before(since) {
			continue
		}
		if found == nil || e.DateAdded.After(found.DateAdded) {
			found = &e
		}
	}
	return found, nil
}

func (m *MemoryStore) Upsert(_ context.Context, entry *model.WatchlistEntry) error {
	if entry.ID == "" {
		return apperrors.NewInputError("id", nil, "watchlist entry has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watchlist[entry.ID] = *entry
	return nil
}

func (m *MemoryStore) Entry(_ context.Context, id string) (*model.WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.watchlist[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) SetCurrentPrice(_ context.Context, id string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.watchlist[id]; ok {
		e.CurrentPrice = price
		m.watchlist[id] = e
	}
	return nil
}

func (m *MemoryStore) SetPriceChangePct(_ context.Context, id string, pct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.watchlist[id]; ok {
		e.PriceChangePct = pct
		m.watchlist[id] = e
	}
	return nil
}

func (m *MemoryStore) AllActive(_ context.Context, ownerID string) ([]model.WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.WatchlistEntry
	for _, e := range m.watchlist {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time, basis model.ExpiryBasis) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, e := range m.watchlist {
		if expiryTime(e, basis).Before(cutoff) {
			delete(m.watchlist, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) OwnerExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.owners[id]
	return ok, nil
}

func (m *MemoryStore) Owners(_ context.Context) ([]model.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Owner, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AddOwner(_ context.Context, owner model.Owner) error {
	if owner.ID == "" {
		return apperrors.NewInputError("owner_id", nil, "owner id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.owners[owner.ID] = owner
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func expiryTime(e model.WatchlistEntry, basis model.ExpiryBasis) time.Time {
	if basis == model.ExpireByAdded && !e.FirstAdded.IsZero() {
		return e.FirstAdded
	}
	return e.DateAdded
}

// sortEntries orders entries most recently refreshed first, then by instrument.
func sortEntries(entries []model.WatchlistEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].DateAdded.Equal(entries[j].DateAdded) {
			return entries[i].DateAdded.After(entries[j].DateAdded)
		}
		if entries[i].InstrumentID != entries[j].InstrumentID {
			return entries[i].InstrumentID < entries[j].InstrumentID
		}
		return entries[i].ID < entries[j].ID
	})
}

func validateLedgerEntry(e model.LedgerEntry) error {
	switch {
	case e.ID == "":
		return apperrors.NewInputError("id", nil, "ledger entry has no id")
	case e.PortfolioID == "":
		return apperrors.NewInputError("portfolio_id", nil, "portfolio id is required")
	case e.InstrumentID == "":
		return apperrors.NewInputError("instrument_id", nil, "instrument id is required")
	case !e.Side.Valid():
		return apperrors.NewInputError("side", e.Side, "must be buy, sell or dividend")
	case e.Quantity <= 0:
		return apperrors.NewInputError("quantity", e.Quantity, "must be a positive integer")
	case e.Price.IsNegative():
		return apperrors.NewInputError("price", e.Price.String(), "must not be negative")
	}
	return nil
}
