package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

var base = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStore_Bars(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			latest, err := s.LatestBar(ctx, "AAPL")
			require.NoError(t, err)
			assert.Nil(t, latest)

			require.NoError(t, s.SaveBars(ctx, []model.PriceBar{
				{InstrumentID: "AAPL", Date: base.AddDate(0, 0, 2), High: 12, Low: 10, Close: 11, Volume: 300},
				{InstrumentID: "AAPL", Date: base, High: 10, Low: 8, Close: 9, Volume: 100},
				{InstrumentID: "AAPL", Date: base.AddDate(0, 0, 1), High: 11, Low: 9, Close: 10, Volume: 200},
				{InstrumentID: "MSFT", Date: base, High: 50, Low: 40, Close: 45, Volume: 10},
			}))
			// same date replaces
			require.NoError(t, s.SaveBars(ctx, []model.PriceBar{
				{InstrumentID: "AAPL", Date: base.AddDate(0, 0, 2), High: 13, Low: 10, Close: 12.5, Volume: 350},
			}))

			bars, err := s.BarsFor(ctx, "AAPL", base.AddDate(0, 0, 1))
			require.NoError(t, err)
			require.Len(t, bars, 2)
			assert.True(t, bars[0].Date.Before(bars[1].Date))
			assert.Equal(t, 12.5, bars[1].Close)

			latest, err = s.LatestBar(ctx, "AAPL")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, 12.5, latest.Close)
			assert.True(t, latest.Date.Equal(base.AddDate(0, 0, 2)))
		})
	}
}

func TestStore_Instruments(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveInstrument(ctx, model.Instrument{ID: "MSFT", Name: "Microsoft", Sector: "Technology"}))
			require.NoError(t, s.SaveInstrument(ctx, model.Instrument{ID: "AAPL", Name: "Apple", Sector: "Technology"}))

			all, err := s.Instruments(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "AAPL", all[0].ID)

			inst, err := s.Instrument(ctx, "MSFT")
			require.NoError(t, err)
			assert.Equal(t, "Microsoft", inst.Name)

			_, err = s.Instrument(ctx, "NOPE")
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestStore_Ledger(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			entry := model.LedgerEntry{
				ID: "e1", PortfolioID: "p1", InstrumentID: "AAPL", Side: model.SideBuy,
				Quantity: 10, Price: decimal.RequireFromString("100.25"), Timestamp: base,
			}
			require.NoError(t, s.Append(ctx, entry))
			require.NoError(t, s.Append(ctx, model.LedgerEntry{
				ID: "e2", PortfolioID: "p2", InstrumentID: "AAPL", Side: model.SideSell,
				Quantity: 1, Price: decimal.NewFromInt(1), Timestamp: base,
			}))

			entries, err := s.EntriesFor(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.True(t, entries[0].Price.Equal(entry.Price))
			assert.Equal(t, model.SideBuy, entries[0].Side)

			err = s.Append(ctx, model.LedgerEntry{ID: "bad", PortfolioID: "p1", InstrumentID: "AAPL", Side: model.SideBuy, Quantity: 0})
			assert.True(t, apperrors.IsInput(err))
			err = s.Append(ctx, model.LedgerEntry{ID: "bad", PortfolioID: "p1", InstrumentID: "AAPL", Side: "short", Quantity: 1})
			assert.True(t, apperrors.IsInput(err))
		})
	}
}

func TestStore_Watchlist(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			old := &model.WatchlistEntry{
				ID: "w1", InstrumentID: "AAPL", OwnerID: "u1",
				DateAdded: base.AddDate(0, -7, 0), FirstAdded: base.AddDate(0, -7, 0),
				PriceWhenAdded: 70, CurrentPrice: 72,
			}
			fresh := &model.WatchlistEntry{
				ID: "w2", InstrumentID: "AAPL", OwnerID: "u1",
				DateAdded: base, FirstAdded: base.AddDate(0, -8, 0),
				PriceWhenAdded: 71, CurrentPrice: 73,
			}
			other := &model.WatchlistEntry{
				ID: "w3", InstrumentID: "MSFT", OwnerID: "u2",
				DateAdded: base.AddDate(0, -5, 0), FirstAdded: base.AddDate(0, -5, 0),
			}
			for _, e := range []*model.WatchlistEntry{old, fresh, other} {
				require.NoError(t, s.Upsert(ctx, e))
			}

			found, err := s.FindActive(ctx, "AAPL", "u1", base.Add(-24*time.Hour))
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, "w2", found.ID)

			found, err = s.FindActive(ctx, "AAPL", "u2", base.Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Nil(t, found)

			fresh.CurrentPrice = 80
			require.NoError(t, s.Upsert(ctx, fresh))
			entries, err := s.AllActive(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "w2", entries[0].ID)
			assert.Equal(t, 80.0, entries[0].CurrentPrice)
			assert.True(t, entries[0].FirstAdded.Equal(base.AddDate(0, -8, 0)))

			cutoff := base.AddDate(0, -6, 0)
			removed, err := s.DeleteOlderThan(ctx, cutoff, model.ExpireByAdded)
			require.NoError(t, err)
			assert.Equal(t, int64(2), removed)

			removed, err = s.DeleteOlderThan(ctx, cutoff, model.ExpireByRefresh)
			require.NoError(t, err)
			assert.Equal(t, int64(0), removed)

			entries, err = s.AllActive(ctx, "u2")
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestStore_Owners(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.OwnerExists(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.AddOwner(ctx, model.Owner{ID: "u1", Name: "Ada"}))
			require.NoError(t, s.AddOwner(ctx, model.Owner{ID: "u0"}))
			ok, err = s.OwnerExists(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, ok)

			owners, err := s.Owners(ctx)
			require.NoError(t, err)
			require.Len(t, owners, 2)
			assert.Equal(t, "u0", owners[0].ID)

			assert.True(t, apperrors.IsInput(s.AddOwner(ctx, model.Owner{})))
		})
	}
}

func TestStore_WatchlistColumnUpdates(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			entry := &model.WatchlistEntry{
				ID: "w1", InstrumentID: "ACME", OwnerID: "u1", DateAdded: base, FirstAdded: base,
				Sector: "Energy", PriceWhenAdded: 80, CurrentPrice: 80, WeekHigh52: 100, PercentBelowHigh: 20,
			}
			require.NoError(t, s.Upsert(ctx, entry))

			require.NoError(t, s.SetCurrentPrice(ctx, "w1", 90))
			require.NoError(t, s.SetPriceChangePct(ctx, "w1", 12.5))
			require.NoError(t, s.SetCurrentPrice(ctx, "missing", 1))

			got, err := s.Entry(ctx, "w1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 90.0, got.CurrentPrice)
			assert.Equal(t, 12.5, got.PriceChangePct)
			assert.Equal(t, 20.0, got.PercentBelowHigh)
			assert.Equal(t, "Energy", got.Sector)
			assert.True(t, got.DateAdded.Equal(base))

			missing, err := s.Entry(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestSQLiteStore_WriteFailuresAreRetrievalErrors(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.SaveInstrument(ctx, model.Instrument{ID: "ACME", Name: "Acme"})
	assert.True(t, apperrors.IsRetrieval(err), "save instrument: %v", err)

	err = s.AddOwner(ctx, model.Owner{ID: "u1"})
	assert.True(t, apperrors.IsRetrieval(err), "add owner: %v", err)

	err = s.Append(ctx, model.LedgerEntry{
		ID: "l1", PortfolioID: "main", InstrumentID: "ACME", Side: model.SideBuy,
		Quantity: 1, Price: decimal.NewFromInt(10), Timestamp: base,
	})
	assert.True(t, apperrors.IsRetrieval(err), "append: %v", err)

	_, err = s.DeleteOlderThan(ctx, base, model.ExpireByRefresh)
	assert.True(t, apperrors.IsRetrieval(err), "delete: %v", err)

	err = s.SaveBars(ctx, []model.PriceBar{{InstrumentID: "ACME", Date: base, Close: 1}})
	assert.True(t, apperrors.IsRetrieval(err), "save bars: %v", err)
}
