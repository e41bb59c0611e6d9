package calculator

import (
	"github.com/montanaflynn/stats"

	"EquityWatch/internal/model"
)

// Bollinger defaults.
const (
	BandWindow     = SMA20
	BandMultiplier = 2.0
)

// BollingerBands returns middle = SMA(window) and upper/lower = middle ± k·σ, where σ
// is the population standard deviation of the closes in the same trailing window.
// A negative k yields no points.
func BollingerBands(bars []model.PriceBar, window int, k float64) []model.Band {
	if window <= 0 || k < 0 || len(bars) < window {
		return nil
	}
	closes := extractCloses(bars)
	bands := make([]model.Band, 0, len(closes)-window+1)
	for i := window; i <= len(closes); i++ {
		middle, err := CalculateSMA(closes[:i], window)
		if err != nil {
			return nil
		}
		sd, err := stats.StandardDeviationPopulation(closes[i-window : i])
		if err != nil {
			return nil
		}
		bands = append(bands, model.Band{
			Date:   bars[i-1].Date,
			Middle: middle,
			Upper:  middle + k*sd,
			Lower:  middle - k*sd,
		})
	}
	return bands
}
