package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
	"EquityWatch/internal/store"
)

func TestCollector_Sync(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	day := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	fetcher := &MockFetcher{
		Price: 50,
		DailyData: map[string][]model.PriceBar{
			"ACME": {
				{Date: day, Open: 9, High: 11, Low: 8, Close: 10, Volume: 100},
				{Date: day.AddDate(0, 0, 1), Open: 10, High: 12, Low: 9, Close: 11, Volume: 120},
			},
		},
		Errors: map[string]error{"DOWN": errors.New("503")},
	}

	c := NewCollector(fetcher, mem, 30, zerolog.Nop())
	res, err := c.Sync(ctx, []model.Instrument{{ID: "ACME"}, {ID: "DOWN"}, {ID: "GEN"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetrieval(err))
	assert.Equal(t, []string{"DOWN"}, res.Failed)
	assert.Equal(t, 2, res.Instruments)
	assert.Equal(t, 32, res.Bars)

	latest, err := mem.LatestBar(ctx, "ACME")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "ACME", latest.InstrumentID)
	assert.Equal(t, 11.0, latest.Close)

	gen, err := mem.BarsFor(ctx, "GEN", time.Time{})
	require.NoError(t, err)
	assert.Len(t, gen, 30)
}

func TestCollector_SyncAllOK(t *testing.T) {
	c := NewCollector(&MockFetcher{Price: 10}, store.NewMemoryStore(), 5, zerolog.Nop())
	res, err := c.Sync(context.Background(), []model.Instrument{{ID: "A"}, {ID: "B"}})
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 10, res.Bars)
}

const chartJSON = `{"chart":{"result":[{"timestamp":[1736173800,1736260200,1736346600],
"indicators":{"quote":[{"open":[10,null,12],"high":[11,null,13],"low":[9,null,11],
"close":[10.5,null,12.5],"volume":[1000,null,3000]}]}}],"error":null}}`

func TestYahooFetcher_FetchDailyBars(t *testing.T) {
	var gotPath, gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		w.Write([]byte(chartJSON))
	}))
	defer srv.Close()

	f := NewYahooFetcher(srv.URL, "")
	bars, err := f.FetchDailyBars(context.Background(), "BRK.B", 400)
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/BRK-B", gotPath)
	assert.Equal(t, "2y", gotRange)

	require.Len(t, bars, 2, "null bars are skipped")
	assert.Equal(t, "BRK.B", bars[0].InstrumentID)
	assert.Equal(t, 12.5, bars[1].Close)
	assert.Equal(t, 3000.0, bars[1].Volume)

	bars, err = f.FetchDailyBars(context.Background(), "BRK.B", 1)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestYahooFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "GONE") {
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewYahooFetcher(srv.URL, "")
	_, err := f.FetchDailyBars(context.Background(), "GONE", 10)
	assert.ErrorContains(t, err, "No data found")
	_, err = f.FetchDailyBars(context.Background(), "BUSY", 10)
	assert.ErrorContains(t, err, "status 429")
}

func TestYahooRange(t *testing.T) {
	assert.Equal(t, "1mo", yahooRange(5))
	assert.Equal(t, "1y", yahooRange(252))
	assert.Equal(t, "5y", yahooRange(800))
	assert.Equal(t, "10y", yahooRange(5000))
}

func TestParseBarsCSV(t *testing.T) {
	in := "date,open,high,low,close,volume\n2025-01-07,2,3,1,2.5,20\n2025-01-06,1,2,0.5,1.5,10\n"
	bars, err := ParseBarsCSV(strings.NewReader(in), "ACME")
	require.NoError(t, err)

	want := []model.PriceBar{
		{InstrumentID: "ACME", Date: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{InstrumentID: "ACME", Date: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 20},
	}
	if diff := cmp.Diff(want, bars); diff != "" {
		t.Errorf("ParseBarsCSV mismatch (-want +got):\n%s", diff)
	}

	_, err = ParseBarsCSV(strings.NewReader("date,open,high,low,close,volume\nyesterday,1,1,1,1,1\n"), "ACME")
	assert.True(t, apperrors.IsInput(err))
}

func TestParseLedgerCSV(t *testing.T) {
	in := strings.Join([]string{
		"id,portfolio,instrument,side,quantity,price,date",
		"t1,,acme,BUY,10,100.00,2024-03-01",
		",other,ACME,sell,2,120.5,2024-04-01T15:00:00Z",
	}, "\n")
	entries, err := ParseLedgerCSV(strings.NewReader(in), "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "t1", entries[0].ID)
	assert.Equal(t, "main", entries[0].PortfolioID)
	assert.Equal(t, "ACME", entries[0].InstrumentID)
	assert.Equal(t, model.SideBuy, entries[0].Side)
	assert.True(t, entries[0].Price.Equal(decimal.NewFromInt(100)))

	assert.NotEmpty(t, entries[1].ID)
	assert.Equal(t, "other", entries[1].PortfolioID)
	assert.Equal(t, model.SideSell, entries[1].Side)

	_, err = ParseLedgerCSV(strings.NewReader("id,portfolio,instrument,side,quantity,price,date\nx,p,A,buy,1,abc,2024-01-01\n"), "p")
	assert.True(t, apperrors.IsInput(err))
}

func TestCSVFetcher(t *testing.T) {
	dir := t.TempDir()
	body := "date,open,high,low,close,volume\n2025-01-06,1,2,0.5,1.5,10\n2025-01-07,2,3,1,2.5,20\n2025-01-08,3,4,2,3.5,30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ACME.csv"), []byte(body), 0644))

	f := &CSVFetcher{Dir: dir}
	bars, err := f.FetchDailyBars(context.Background(), "ACME", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 3.5, bars[1].Close)

	_, err = f.FetchDailyBars(context.Background(), "MISSING", 2)
	assert.Error(t, err)
}

func TestNewFetcher(t *testing.T) {
	for _, name := range []string{"yahoo", "financego", "csv", "mock"} {
		f, err := NewFetcher(name, "", "", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, name, f.Name())
	}
	_, err := NewFetcher("bloomberg", "", "", "")
	assert.True(t, apperrors.IsInput(err))
}
