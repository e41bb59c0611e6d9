package calculator

import "EquityWatch/internal/model"

// Snapshot computes the latest value of every indicator for the series.
func Snapshot(instrumentID string, bars []model.PriceBar) (*model.IndicatorSnapshot, error) {
	high, low, err := YearRange(bars)
	if err != nil {
		return nil, err
	}
	last := bars[len(bars)-1]
	snap := &model.IndicatorSnapshot{
		InstrumentID: instrumentID,
		Date:         last.Date,
		Close:        last.Close,
		High52w:      high,
		Low52w:       low,
		SMA20:        lastValue(SMA(bars, SMA20)),
		SMA50:        lastValue(SMA(bars, SMA50)),
		SMA200:       lastValue(SMA(bars, SMA200)),
		RSI:          lastValue(RSI(bars, RSIWindow)),
	}
	if bands := BollingerBands(bars, BandWindow, BandMultiplier); len(bands) > 0 {
		b := bands[len(bands)-1]
		snap.UpperBand = &b.Upper
		snap.LowerBand = &b.Lower
	}
	if pos, err := RangePosition(last.Close, high, low); err == nil {
		snap.Position52w = pos
	} else {
		snap.Position52w = 0.5
	}
	return snap, nil
}

func lastValue(points []model.Point) *float64 {
	if len(points) == 0 {
		return nil
	}
	v := points[len(points)-1].Value
	return &v
}
