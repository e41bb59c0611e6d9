package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EquityWatch/internal/collector"
	"EquityWatch/internal/model"
	"EquityWatch/internal/recorder"
	"EquityWatch/internal/screener"
	"EquityWatch/internal/store"
	"EquityWatch/internal/valuation"
	"EquityWatch/internal/watchlist"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureNotifier) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *captureNotifier) joined() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.sent, "\n---\n")
}

// pulledBackBars rises to 100 then falls back to 72 for the last ten bars.
func pulledBackBars(id string, end time.Time) []model.PriceBar {
	var bars []model.PriceBar
	for i := 0; i < 60; i++ {
		price := 80 + float64(i)/49*20
		if i >= 50 {
			price = 72
		}
		bars = append(bars, model.PriceBar{
			InstrumentID: id, Date: end.AddDate(0, 0, i-59),
			Open: price, High: price, Low: price, Close: price, Volume: 1000,
		})
	}
	return bars
}

// countingRecorder counts screens on top of the SQLite history.
type countingRecorder struct {
	*recorder.SQLiteRecorder
	screens int
}

func (c *countingRecorder) RecordScreen(ctx context.Context, policy string, at time.Time, candidates []model.Candidate) error {
	c.screens++
	return c.SQLiteRecorder.RecordScreen(ctx, policy, at, candidates)
}

type fixture struct {
	mem     *store.MemoryStore
	notes   *captureNotifier
	rec     *countingRecorder
	sched   *Scheduler
	fetcher *collector.MockFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	today := time.Now().UTC().Truncate(24 * time.Hour)

	mem := store.NewMemoryStore()
	require.NoError(t, mem.AddOwner(ctx, model.Owner{ID: "u1"}))
	require.NoError(t, mem.SaveInstrument(ctx, model.Instrument{ID: "DIP", Name: "Dip Corp"}))
	require.NoError(t, mem.SaveInstrument(ctx, model.Instrument{ID: "FLAT", Name: "Flat Inc"}))

	sqlRec, err := recorder.NewSQLiteRecorder(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlRec.Close() })
	rec := &countingRecorder{SQLiteRecorder: sqlRec}

	fetcher := &collector.MockFetcher{
		Price:     50,
		DailyData: map[string][]model.PriceBar{"DIP": pulledBackBars("DIP", today)},
	}
	scr, err := screener.New(mem, mem, screener.SimplePolicy, zerolog.Nop())
	require.NoError(t, err)
	notes := &captureNotifier{}

	deps := Deps{
		Collector:   collector.NewCollector(fetcher, mem, 60, zerolog.Nop()),
		Instruments: mem,
		Prices:      mem,
		Screener:    scr,
		Watchlist:   watchlist.NewManager(scr, mem, mem, rec, watchlist.DefaultConfig(), zerolog.Nop()),
		Valuation:   valuation.NewService(mem, mem),
		Notifier:    notes,
		Recorder:    rec,
		Owners:      []string{"u1"},
		Portfolios:  []string{"main"},
	}
	return &fixture{
		mem:     mem,
		notes:   notes,
		rec:     rec,
		sched:   NewScheduler(ctx, deps, zerolog.Nop()),
		fetcher: fetcher,
	}
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.RegisterAll(Schedule{
		Sync:      "0 30 22 * * 1-5",
		Reconcile: "0 0 23 * * 1-5",
		Refresh:   "0 0 * * * *",
		Sweep:     "",
		Valuation: "0 15 23 * * 1-5",
	}))
	assert.Len(t, f.sched.Cron.Entries(), 4, "an empty expression disables the task")

	err := newFixture(t).sched.RegisterAll(Schedule{Sync: "every tuesday"})
	assert.ErrorContains(t, err, "register sync task")
}

func TestRunAllNow_SyncsReconcilesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sched.RunAllNow()

	entries, err := f.mem.AllActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DIP", entries[0].InstrumentID)
	assert.Equal(t, 72.0, entries[0].CurrentPrice)
	assert.Contains(t, f.notes.joined(), "Watchlist u1 reconciled: 1 candidates, 1 added")

	runs, err := f.rec.RecentRuns(ctx, 10)
	require.NoError(t, err)
	passes := map[string]bool{}
	for _, r := range runs {
		passes[r.Pass] = true
	}
	for _, p := range []string{recorder.PassSync, recorder.PassReconcile, recorder.PassRefresh, recorder.PassRecompute} {
		assert.True(t, passes[p], "missing run for %s", p)
	}
	assert.Equal(t, 1, f.rec.screens, "one screen is shared by every owner")
}

func TestSyncTask_ReportsFailures(t *testing.T) {
	f := newFixture(t)
	f.fetcher.Errors = map[string]error{"FLAT": errors.New("503")}
	f.sched.syncTask()

	assert.Contains(t, f.notes.joined(), "Bar sync failed")
	runs, err := f.rec.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recorder.PassSync, runs[0].Pass)
	assert.Equal(t, 1, runs[0].Updated)
	assert.Contains(t, runs[0].Err, "FLAT")
}

func TestValuationTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sched.syncTask()
	require.NoError(t, f.mem.Append(ctx, model.LedgerEntry{
		ID: "t1", PortfolioID: "main", InstrumentID: "DIP", Side: model.SideBuy,
		Quantity: 10, Price: decimal.NewFromInt(60), Timestamp: time.Now().AddDate(0, -1, 0),
	}))

	f.sched.valuationTask()
	out := f.notes.joined()
	assert.Contains(t, out, "Portfolio main")
	assert.Contains(t, out, "$720.00")

	runs, err := f.rec.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recorder.PassValuation, runs[0].Pass)
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sched.syncTask()

	assert.Contains(t, f.sched.HandleCommand(ctx, ""), "Commands:")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/unknown"), "Commands:")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/screen@equitybot"), "1. <b>DIP</b> Dip Corp")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/watchlist"), "Empty.")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/watchlist nobody"), "unknown owner")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/portfolio"), "Portfolio main")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/indicators dip"), "<b>DIP</b>")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/performance dip"), "performance")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/indicators"), "Usage: /indicators")

	for _, cmd := range []string{"/performance nope", "/indicators nope"} {
		reply := f.sched.HandleCommand(ctx, cmd)
		assert.True(t, strings.HasPrefix(reply, "⚠️"), cmd)
		assert.Contains(t, reply, `instrument "NOPE" not found`, cmd)
	}
}
