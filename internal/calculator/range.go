package calculator

import (
	"math"

	"github.com/montanaflynn/stats"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

// TradingDaysPerYear is the number of daily bars treated as one year.
const TradingDaysPerYear = 252

// YearRange returns the highest high and lowest low of the trailing
// TradingDaysPerYear bars, or of all bars when there are fewer.
func YearRange(bars []model.PriceBar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, apperrors.NewInputError("bars", nil, "no daily bars provided")
	}
	window := bars[max(0, len(bars)-TradingDaysPerYear):]
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, b := range window {
		highs[i], lows[i] = b.High, b.Low
	}
	if high, err = stats.Max(highs); err != nil {
		return 0, 0, err
	}
	if low, err = stats.Min(lows); err != nil {
		return 0, 0, err
	}
	return high, low, nil
}

// RangePosition places current within [low, high] as a fraction clamped to
// 0..1. A flat range reports the midpoint.
func RangePosition(current, high, low float64) (float64, error) {
	switch {
	case high < low:
		return 0, apperrors.NewInputError("high", high, "below low")
	case high == low:
		return 0.5, nil
	}
	return math.Min(1, math.Max(0, (current-low)/(high-low))), nil
}

// Aggregate reduces the bars of a screening lookback to the values the screening
// predicate needs. The bars must be ascending by date.
func Aggregate(instrumentID string, bars []model.PriceBar) (model.Aggregate, error) {
	if len(bars) == 0 {
		return model.Aggregate{}, apperrors.NewInputError("bars", instrumentID, "no bars in lookback window")
	}
	high := math.Inf(-1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
	}
	avgClose, err := stats.Mean(extractCloses(bars))
	if err != nil {
		return model.Aggregate{}, apperrors.NewInputError("bars", instrumentID, err.Error())
	}
	avgVolume, err := stats.Mean(extractVolumes(bars))
	if err != nil {
		return model.Aggregate{}, apperrors.NewInputError("bars", instrumentID, err.Error())
	}
	last := bars[len(bars)-1]
	return model.Aggregate{
		InstrumentID:  instrumentID,
		YearHigh:      high,
		AvgClose:      avgClose,
		AvgVolume:     avgVolume,
		CurrentPrice:  last.Close,
		CurrentVolume: last.Volume,
		LatestDate:    last.Date,
	}, nil
}
