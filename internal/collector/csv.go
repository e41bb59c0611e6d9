package collector

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

type barRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

type ledgerRow struct {
	ID         string `csv:"id"`
	Portfolio  string `csv:"portfolio"`
	Instrument string `csv:"instrument"`
	Side       string `csv:"side"`
	Quantity   int64  `csv:"quantity"`
	Price      string `csv:"price"`
	Date       string `csv:"date"`
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ParseBarsCSV reads date,open,high,low,close,volume rows for one instrument.
func ParseBarsCSV(r io.Reader, instrumentID string) ([]model.PriceBar, error) {
	var rows []barRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, apperrors.NewInputError("csv", instrumentID, err.Error())
	}
	bars := make([]model.PriceBar, 0, len(rows))
	for i, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, apperrors.NewInputError("date", row.Date, fmt.Sprintf("row %d: %v", i+1, err))
		}
		bars = append(bars, model.PriceBar{
			InstrumentID: instrumentID,
			Date:         date.UTC(),
			Open:         row.Open,
			High:         row.High,
			Low:          row.Low,
			Close:        row.Close,
			Volume:       row.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// ParseLedgerCSV reads ledger rows. portfolioID fills rows that leave the
// portfolio column empty; rows without an id get a generated one.
func ParseLedgerCSV(r io.Reader, portfolioID string) ([]model.LedgerEntry, error) {
	var rows []ledgerRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, apperrors.NewInputError("csv", portfolioID, err.Error())
	}
	entries := make([]model.LedgerEntry, 0, len(rows))
	for i, row := range rows {
		price, err := decimal.NewFromString(strings.TrimSpace(row.Price))
		if err != nil {
			return nil, apperrors.NewInputError("price", row.Price, fmt.Sprintf("row %d: %v", i+1, err))
		}
		ts, err := parseDate(row.Date)
		if err != nil {
			return nil, apperrors.NewInputError("date", row.Date, fmt.Sprintf("row %d: %v", i+1, err))
		}
		entry := model.LedgerEntry{
			ID:           row.ID,
			PortfolioID:  row.Portfolio,
			InstrumentID: strings.ToUpper(strings.TrimSpace(row.Instrument)),
			Side:         model.Side(strings.ToLower(strings.TrimSpace(row.Side))),
			Quantity:     row.Quantity,
			Price:        price,
			Timestamp:    ts.UTC(),
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.PortfolioID == "" {
			entry.PortfolioID = portfolioID
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CSVFetcher serves bars from <Dir>/<SYMBOL>.csv files, for offline runs and backfills.
type CSVFetcher struct {
	Dir string
}

func (f *CSVFetcher) Name() string { return "csv" }

func (f *CSVFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(f.Dir, symbol+".csv"))
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	bars, err := ParseBarsCSV(file, symbol)
	if err != nil {
		return nil, err
	}
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}
