package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a ledger entry.
type Side string

const (
	SideBuy      Side = "buy"
	SideSell     Side = "sell"
	SideDividend Side = "dividend"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell, SideDividend:
		return true
	}
	return false
}

// LedgerEntry is an immutable buy/sell record of a portfolio.
type LedgerEntry struct {
	ID           string
	PortfolioID  string
	InstrumentID string
	Side         Side
	Quantity     int64
	Price        decimal.Decimal
	Timestamp    time.Time
}

// Position is the derived holding of one instrument. It is never persisted.
type Position struct {
	InstrumentID string          `json:"instrument_id"`
	Quantity     int64           `json:"quantity"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	GainLossPct  decimal.Decimal `json:"gain_loss_pct"`
}

// Valuation aggregates the priced positions of a portfolio.
type Valuation struct {
	PortfolioID      string          `json:"portfolio_id"`
	AsOf             time.Time       `json:"as_of"`
	Positions        []Position      `json:"positions"`
	TotalValue       decimal.Decimal `json:"total_value"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	TotalGainLossPct decimal.Decimal `json:"total_gain_loss_pct"`
	// Unpriced lists instruments held but without a resolvable latest price.
	// They are left out of the totals.
	Unpriced []string `json:"unpriced,omitempty"`
}
