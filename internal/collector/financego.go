package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"EquityWatch/internal/model"
)

// FinanceGoFetcher implements Fetcher on top of the finance-go chart client.
type FinanceGoFetcher struct {
	Now func() time.Time
}

func NewFinanceGoFetcher() *FinanceGoFetcher {
	return &FinanceGoFetcher{Now: time.Now}
}

func (f *FinanceGoFetcher) Name() string { return "financego" }

func (f *FinanceGoFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := f.Now()
	// calendar days; trading days are roughly 5/7 of them
	start := end.AddDate(0, 0, -(days*7/5 + 7))
	params := &chart.Params{
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Symbol:   symbol,
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)

	var bars []model.PriceBar
	for iter.Next() {
		b := iter.Bar()
		bars = append(bars, model.PriceBar{
			InstrumentID: symbol,
			Date:         time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:         b.Open.InexactFloat64(),
			High:         b.High.InexactFloat64(),
			Low:          b.Low.InexactFloat64(),
			Close:        b.Close.InexactFloat64(),
			Volume:       float64(b.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("finance-go chart %s: %w", symbol, err)
	}
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}
