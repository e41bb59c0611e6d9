// Package valuation turns a portfolio ledger into per-instrument positions and totals.
package valuation

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
	"EquityWatch/internal/store"
)

var hundred = decimal.NewFromInt(100)

// PriceLookup resolves the latest close of an instrument. ok is false when the
// instrument has no price, which is not an error.
type PriceLookup func(ctx context.Context, instrumentID string) (price float64, ok bool, err error)

// FromPriceStore adapts a PriceStore to a PriceLookup using the latest bar's close.
func FromPriceStore(ps store.PriceStore) PriceLookup {
	return func(ctx context.Context, instrumentID string) (float64, bool, error) {
		bar, err := ps.LatestBar(ctx, instrumentID)
		if err != nil {
			return 0, false, err
		}
		if bar == nil {
			return 0, false, nil
		}
		return bar.Close, true, nil
	}
}

type holding struct {
	quantity int64
	cost     decimal.Decimal
}

// Value computes the positions of a portfolio from its full ledger.
//
// Only buy entries add quantity and cost; sells and dividends are ignored.
// Instruments without a resolvable price are listed in Unpriced and left out of the
// totals. A failing lookup aborts with a RetrievalError.
func Value(ctx context.Context, portfolioID string, entries []model.LedgerEntry, lookup PriceLookup, asOf time.Time) (*model.Valuation, error) {
	v := &model.Valuation{
		PortfolioID:      portfolioID,
		AsOf:             asOf,
		Positions:        []model.Position{},
		TotalValue:       decimal.Zero,
		TotalCost:        decimal.Zero,
		TotalGainLossPct: decimal.Zero,
	}

	holdings := make(map[string]*holding)
	for _, e := range entries {
		if e.Side != model.SideBuy {
			continue
		}
		h, ok := holdings[e.InstrumentID]
		if !ok {
			h = &holding{cost: decimal.Zero}
			holdings[e.InstrumentID] = h
		}
		h.quantity += e.Quantity
		h.cost = h.cost.Add(e.Price.Mul(decimal.NewFromInt(e.Quantity)))
	}

	ids := make([]string, 0, len(holdings))
	for id := range holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		h := holdings[id]
		if h.quantity <= 0 {
			continue
		}
		price, ok, err := lookup(ctx, id)
		if err != nil {
			if apperrors.IsRetrieval(err) {
				return nil, err
			}
			return nil, apperrors.NewRetrievalError("latest_close", id, err)
		}
		if !ok {
			v.Unpriced = append(v.Unpriced, id)
			continue
		}

		qty := decimal.NewFromInt(h.quantity)
		current := decimal.NewFromFloat(price)
		marketValue := current.Mul(qty)
		v.Positions = append(v.Positions, model.Position{
			InstrumentID: id,
			Quantity:     h.quantity,
			TotalCost:    h.cost,
			AverageCost:  h.cost.Div(qty),
			CurrentPrice: current,
			MarketValue:  marketValue,
			GainLossPct:  gainLossPct(marketValue, h.cost),
		})
		v.TotalValue = v.TotalValue.Add(marketValue)
		v.TotalCost = v.TotalCost.Add(h.cost)
	}

	v.TotalGainLossPct = gainLossPct(v.TotalValue, v.TotalCost)
	return v, nil
}

// gainLossPct is 0 when nothing was paid.
func gainLossPct(value, cost decimal.Decimal) decimal.Decimal {
	if !cost.IsPositive() {
		return decimal.Zero
	}
	return value.Sub(cost).Div(cost).Mul(hundred)
}

// Service values portfolios straight from the stores.
type Service struct {
	Ledger store.LedgerStore
	Prices store.PriceStore
	Now    func() time.Time
}

// NewService creates a Service.
func NewService(ledger store.LedgerStore, prices store.PriceStore) *Service {
	return &Service{Ledger: ledger, Prices: prices, Now: time.Now}
}

// Value loads the portfolio's ledger and values it at the latest prices.
func (s *Service) Value(ctx context.Context, portfolioID string) (*model.Valuation, error) {
	if portfolioID == "" {
		return nil, apperrors.NewInputError("portfolio_id", nil, "portfolio id is required")
	}
	entries, err := s.Ledger.EntriesFor(ctx, portfolioID)
	if err != nil {
		if apperrors.IsRetrieval(err) {
			return nil, err
		}
		return nil, apperrors.NewRetrievalError("entries_for", portfolioID, err)
	}
	return Value(ctx, portfolioID, entries, FromPriceStore(s.Prices), s.Now())
}
