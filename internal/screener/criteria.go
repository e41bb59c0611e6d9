package screener

import "EquityWatch/internal/model"

// pulledBack: price is at least Drop below the lookback high.
func pulledBack(a model.Aggregate, p Policy) bool {
	return a.CurrentPrice <= (1-p.Drop)*a.YearHigh
}

// recovered: price has not fallen below Recovery of the high.
func recovered(a model.Aggregate, p Policy) bool {
	return a.CurrentPrice >= p.Recovery*a.YearHigh
}

func volumeConfirmed(a model.Aggregate, p Policy) bool {
	if p.VolumeMultiplier <= 0 {
		return true
	}
	return a.CurrentVolume >= p.VolumeMultiplier*a.AvgVolume
}

// percentBelowHigh is the pullback expressed as a percentage of the high.
func percentBelowHigh(a model.Aggregate) float64 {
	if a.YearHigh == 0 {
		return 0
	}
	return (a.YearHigh - a.CurrentPrice) / a.YearHigh * 100
}
