package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/logging"
	"EquityWatch/internal/model"
	"EquityWatch/internal/store"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price     float64
	DailyData map[string][]model.PriceBar
	Errors    map[string]error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(_ context.Context, symbol string, days int) ([]model.PriceBar, error) {
	if err, ok := m.Errors[symbol]; ok {
		return nil, err
	}
	if bars, ok := m.DailyData[symbol]; ok {
		return bars, nil
	}
	return generateMockBars(symbol, m.Price, days, time.Now()), nil
}

func generateMockBars(symbol string, basePrice float64, count int, now time.Time) []model.PriceBar {
	bars := make([]model.PriceBar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.PriceBar{
			InstrumentID: symbol,
			Date:         now.AddDate(0, 0, -(count - i)).UTC(),
			Open:         p * 0.999,
			High:         p * 1.005,
			Low:          p * 0.995,
			Close:        p,
			Volume:       1000000,
		}
	}
	return bars
}

// SyncResult summarises one bar sync.
type SyncResult struct {
	Instruments int
	Bars        int
	Failed      []string
}

// Collector pulls daily bars from a Fetcher into the price store.
type Collector struct {
	Fetcher Fetcher
	Writer  store.PriceWriter
	Days    int

	log zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, writer store.PriceWriter, days int, logger zerolog.Logger) *Collector {
	if days <= 0 {
		days = 800
	}
	return &Collector{
		Fetcher: fetcher,
		Writer:  writer,
		Days:    days,
		log:     logging.WithComponent(logger, "collector"),
	}
}

// Sync fetches and stores bars for every instrument. A failing instrument does not
// stop the others; all failures are joined into the returned error.
func (c *Collector) Sync(ctx context.Context, instruments []model.Instrument) (SyncResult, error) {
	var (
		res  SyncResult
		errs []error
	)
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := c.syncOne(ctx, inst.ID)
		if err != nil {
			res.Failed = append(res.Failed, inst.ID)
			errs = append(errs, err)
			continue
		}
		res.Instruments++
		res.Bars += n
	}

	c.log.Info().
		Str("source", c.Fetcher.Name()).
		Int("instruments", res.Instruments).
		Int("bars", res.Bars).
		Int("failed", len(res.Failed)).
		Msg("bar sync complete")
	return res, errors.Join(errs...)
}

func (c *Collector) syncOne(ctx context.Context, instrumentID string) (int, error) {
	start := time.Now()
	bars, err := c.Fetcher.FetchDailyBars(ctx, instrumentID, c.Days)
	logging.LogFetch(c.log, c.Fetcher.Name(), instrumentID, time.Since(start), err)
	if err != nil {
		return 0, apperrors.NewRetrievalError("fetch_daily_bars", instrumentID, err)
	}
	for i := range bars {
		bars[i].InstrumentID = instrumentID
	}
	if err := c.Writer.SaveBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("save bars for %s: %w", instrumentID, err)
	}
	return len(bars), nil
}

// NewFetcher builds the fetcher named by provider.
func NewFetcher(provider, baseURL, proxy, csvDir string) (Fetcher, error) {
	switch provider {
	case "", "yahoo":
		return NewYahooFetcher(baseURL, proxy), nil
	case "financego":
		return NewFinanceGoFetcher(), nil
	case "csv":
		return &CSVFetcher{Dir: csvDir}, nil
	case "mock":
		return &MockFetcher{Price: 100}, nil
	}
	return nil, apperrors.NewInputError("provider", provider, "must be yahoo, financego, csv or mock")
}
