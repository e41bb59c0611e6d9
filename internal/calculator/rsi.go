package calculator

import "EquityWatch/internal/model"

// Defaults of the momentum oscillator.
const (
	RSIWindow          = 14
	RSIReferenceWindow = SMA20
)

// RSI computes the relative strength index of the 20-day average rather than of the
// raw close. Gains and losses are averaged with a trailing simple mean over window
// changes (no Wilder smoothing). The first point needs RSIReferenceWindow+window bars.
func RSI(bars []model.PriceBar, window int) []model.Point {
	return RSIOf(SMA(bars, RSIReferenceWindow), window)
}

// RSIOf computes the oscillator over an arbitrary reference series.
func RSIOf(reference []model.Point, window int) []model.Point {
	if window <= 0 || len(reference) < window+1 {
		return nil
	}

	// gains[j] and losses[j] belong to reference[j+1]
	n := len(reference) - 1
	gains := make([]float64, n)
	losses := make([]float64, n)
	for j := 0; j < n; j++ {
		change := reference[j+1].Value - reference[j].Value
		if change > 0 {
			gains[j] = change
		} else {
			losses[j] = -change
		}
	}

	points := make([]model.Point, 0, n-window+1)
	for i := window; i <= n; i++ {
		avgGain := mean(gains[i-window : i])
		avgLoss := mean(losses[i-window : i])
		points = append(points, model.Point{
			Date:  reference[i].Date,
			Value: rsiValue(avgGain, avgLoss),
		})
	}
	return points
}

// rsiValue is 100 whenever there were no losses in the window.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
