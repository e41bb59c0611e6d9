package calculator

import "EquityWatch/internal/model"

// DefaultSeriesLimit caps how many trailing points a series view returns.
const DefaultSeriesLimit = 100

// Series computes the full indicator history of bars and keeps the last limit
// points of each series. A limit <= 0 keeps everything.
func Series(instrumentID string, bars []model.PriceBar, limit int) *model.IndicatorSeries {
	closes := make([]model.Point, len(bars))
	volumes := make([]model.Point, len(bars))
	for i, b := range bars {
		closes[i] = model.Point{Date: b.Date, Value: b.Close}
		volumes[i] = model.Point{Date: b.Date, Value: b.Volume}
	}
	ma := CalculateMovingAverages(bars)
	return &model.IndicatorSeries{
		InstrumentID: instrumentID,
		Close:        tail(closes, limit),
		MovingAverages: model.MovingAverages{
			SMA20:  tail(ma.SMA20, limit),
			SMA50:  tail(ma.SMA50, limit),
			SMA200: tail(ma.SMA200, limit),
		},
		Volume:      tail(volumes, limit),
		VolumeSMA20: tail(VolumeAverage(bars, SMA20), limit),
		Bands:       tail(BollingerBands(bars, BandWindow, BandMultiplier), limit),
		RSI:         tail(RSI(bars, RSIWindow), limit),
	}
}

func tail[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
