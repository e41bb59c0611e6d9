package model

import "time"

// Aggregate summarises an instrument's bars over the screening lookback.
type Aggregate struct {
	InstrumentID  string
	YearHigh      float64
	AvgClose      float64
	AvgVolume     float64
	CurrentPrice  float64
	CurrentVolume float64
	LatestDate    time.Time
	Name          string
	Sector        string
}

// Candidate is an instrument that matched the pullback-and-recovery predicate.
type Candidate struct {
	InstrumentID     string  `json:"instrument_id"`
	Name             string  `json:"name"`
	Sector           string  `json:"sector"`
	YearHigh         float64 `json:"year_high"`
	AvgClose         float64 `json:"avg_close"`
	CurrentPrice     float64 `json:"current_price"`
	PercentBelowHigh float64 `json:"percent_below_high"`
}

// Pullback is the absolute distance between the high and the current price.
func (c Candidate) Pullback() float64 {
	return c.YearHigh - c.CurrentPrice
}

// DefaultWatchReason is stored on entries created by the screen-and-reconcile pass.
const DefaultWatchReason = "Potential opportunity: Trading below 52-week high"

// WatchlistEntry tracks a candidate's performance since it was flagged.
type WatchlistEntry struct {
	ID           string `json:"id"`
	InstrumentID string `json:"instrument_id"`
	OwnerID      string `json:"owner_id"`
	// DateAdded is reset on every refresh and drives the default expiry.
	DateAdded time.Time `json:"date_added"`
	// FirstAdded never changes after creation.
	FirstAdded       time.Time `json:"first_added"`
	Reason           string    `json:"reason"`
	Sector           string    `json:"sector"`
	PriceWhenAdded   float64   `json:"price_when_added"`
	CurrentPrice     float64   `json:"current_price"`
	WeekHigh52       float64   `json:"week_high_52"`
	PercentBelowHigh float64   `json:"percent_below_high"`
	AvgClose         float64   `json:"avg_close"`
	PriceChangePct   float64   `json:"price_change_pct"`
}

// ExpiryBasis selects which timestamp the expiry sweep measures age from.
type ExpiryBasis string

const (
	ExpireByRefresh ExpiryBasis = "refreshed"
	ExpireByAdded   ExpiryBasis = "added"
)

// Owner is a user that owns watchlist entries.
type Owner struct {
	ID   string
	Name string
}
