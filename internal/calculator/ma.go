package calculator

import (
	"errors"

	"EquityWatch/internal/model"
)

// Standard moving-average windows.
const (
	SMA20  = 20
	SMA50  = 50
	SMA200 = 200
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// SMA returns the trailing simple moving average of closes. Bars without a full
// window behind them produce no point, so a series of n bars yields n-window+1 points.
func SMA(bars []model.PriceBar, window int) []model.Point {
	return rollingAverage(bars, extractCloses(bars), window)
}

// VolumeAverage returns the trailing simple moving average of volumes.
func VolumeAverage(bars []model.PriceBar, window int) []model.Point {
	return rollingAverage(bars, extractVolumes(bars), window)
}

// CalculateMovingAverages returns the 20, 50 and 200 day averages of the series.
func CalculateMovingAverages(bars []model.PriceBar) model.MovingAverages {
	return model.MovingAverages{
		SMA20:  SMA(bars, SMA20),
		SMA50:  SMA(bars, SMA50),
		SMA200: SMA(bars, SMA200),
	}
}

// rollingAverage sums every window from scratch so equal inputs give bit-identical
// outputs; the RSI reference series depends on that.
func rollingAverage(bars []model.PriceBar, values []float64, window int) []model.Point {
	if window <= 0 || len(values) < window {
		return nil
	}
	points := make([]model.Point, 0, len(values)-window+1)
	for i := window; i <= len(values); i++ {
		avg, err := CalculateSMA(values[:i], window)
		if err != nil {
			return nil
		}
		points = append(points, model.Point{Date: bars[i-1].Date, Value: avg})
	}
	return points
}

func extractCloses(bars []model.PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func extractVolumes(bars []model.PriceBar) []float64 {
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	return volumes
}
