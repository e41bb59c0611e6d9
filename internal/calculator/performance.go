package calculator

import (
	"sort"
	"time"

	"EquityWatch/internal/model"
)

// CalculatePerformance returns the percentage change of the latest close against the
// last close on or before each trailing horizon. The YTD reference is the last close
// on or before January 1st of the latest bar's year.
func CalculatePerformance(bars []model.PriceBar) model.Performance {
	if len(bars) == 0 {
		return model.Performance{}
	}
	latest := bars[len(bars)-1]
	d := latest.Date
	change := func(horizon time.Time) *float64 {
		return changeSince(bars, latest.Close, horizon)
	}
	return model.Performance{
		AsOf:    d,
		Days5:   change(d.AddDate(0, 0, -5)),
		Days10:  change(d.AddDate(0, 0, -10)),
		Month1:  change(d.AddDate(0, -1, 0)),
		Months3: change(d.AddDate(0, -3, 0)),
		Months6: change(d.AddDate(0, -6, 0)),
		YTD:     change(time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())),
		Year1:   change(d.AddDate(-1, 0, 0)),
		Years2:  change(d.AddDate(-2, 0, 0)),
		Years5:  change(d.AddDate(-5, 0, 0)),
		Years10: change(d.AddDate(-10, 0, 0)),
	}
}

func changeSince(bars []model.PriceBar, latest float64, horizon time.Time) *float64 {
	// first bar strictly after the horizon
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(horizon) })
	if i == 0 {
		return nil
	}
	ref := bars[i-1].Close
	if ref == 0 {
		return nil
	}
	pct := (latest - ref) / ref * 100
	return &pct
}
