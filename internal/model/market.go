package model

import "time"

// PriceBar represents one day's OHLCV record for an instrument.
type PriceBar struct {
	InstrumentID string
	Date         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
}

// Instrument holds the descriptive metadata of a tradable security.
type Instrument struct {
	ID       string
	Name     string
	Sector   string
	Industry string
}

// Point is a single value of a derived series, aligned with the bar it was computed on.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Band is one point of a volatility envelope.
type Band struct {
	Date   time.Time `json:"date"`
	Middle float64   `json:"middle"`
	Upper  float64   `json:"upper"`
	Lower  float64   `json:"lower"`
}

// MovingAverages bundles the standard trend averages of a series.
type MovingAverages struct {
	SMA20  []Point `json:"sma20"`
	SMA50  []Point `json:"sma50"`
	SMA200 []Point `json:"sma200"`
}

// IndicatorSeries is the recent history of every indicator of one instrument,
// each series capped to the same number of trailing points.
type IndicatorSeries struct {
	InstrumentID string  `json:"instrument_id"`
	Close        []Point `json:"close"`
	MovingAverages
	Volume      []Point `json:"volume"`
	VolumeSMA20 []Point `json:"volume_sma20"`
	Bands       []Band  `json:"bollinger"`
	RSI         []Point `json:"rsi"`
}

// Performance holds trailing percentage returns measured from the latest bar.
// A nil field means the series does not reach back far enough.
type Performance struct {
	AsOf    time.Time `json:"as_of"`
	Days5   *float64  `json:"5d"`
	Days10  *float64  `json:"10d"`
	Month1  *float64  `json:"1m"`
	Months3 *float64  `json:"3m"`
	Months6 *float64  `json:"6m"`
	YTD     *float64  `json:"ytd"`
	Year1   *float64  `json:"1y"`
	Years2  *float64  `json:"2y"`
	Years5  *float64  `json:"5y"`
	Years10 *float64  `json:"10y"`
}

// IndicatorSnapshot holds the latest value of every indicator for one instrument.
// Nil pointers mark indicators without enough history.
type IndicatorSnapshot struct {
	InstrumentID string
	Date         time.Time
	Close        float64
	SMA20        *float64
	SMA50        *float64
	SMA200       *float64
	UpperBand    *float64
	LowerBand    *float64
	RSI          *float64
	High52w      float64
	Low52w       float64
	Position52w  float64 // 0.0 ~ 1.0
}
