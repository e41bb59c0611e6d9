package watchlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
	"EquityWatch/internal/recorder"
	"EquityWatch/internal/store"
)

var now = time.Date(2025, time.July, 15, 9, 30, 0, 0, time.UTC)

type fakeScreener struct {
	mu         sync.Mutex
	candidates []model.Candidate
	err        error
}

func (f *fakeScreener) Screen(context.Context) ([]model.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Candidate(nil), f.candidates...), f.err
}

func (f *fakeScreener) set(c ...model.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = c
}

func candidate(id string, price float64) model.Candidate {
	return model.Candidate{
		InstrumentID: id, Sector: "Technology", YearHigh: 100, AvgClose: 85,
		CurrentPrice: price, PercentBelowHigh: 100 - price,
	}
}

type fixture struct {
	mem      *store.MemoryStore
	screener *fakeScreener
	manager  *Manager
	clock    time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{mem: store.NewMemoryStore(), screener: &fakeScreener{}, clock: now}
	require.NoError(t, f.mem.AddOwner(context.Background(), model.Owner{ID: "u1", Name: "Ada"}))
	f.manager = NewManager(f.screener, f.mem, f.mem, nil, cfg, zerolog.Nop())
	f.manager.Now = func() time.Time { return f.clock }
	return f
}

func TestReconcile_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.screener.set(candidate("ACME", 72))

	res, err := f.manager.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Candidates: 1, Added: 1}, res)

	f.clock = now.Add(time.Hour)
	res, err = f.manager.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Candidates: 1, Refreshed: 1}, res)

	entries, err := f.manager.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.DefaultWatchReason, entries[0].Reason)
	assert.True(t, entries[0].DateAdded.Equal(now.Add(time.Hour)))
	assert.True(t, entries[0].FirstAdded.Equal(now))
}

func TestReconcile_RefreshKeepsPriceWhenAdded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.screener.set(candidate("ACME", 72))
	_, err := f.manager.Reconcile(ctx, "u1")
	require.NoError(t, err)

	f.clock = now.Add(2 * time.Hour)
	moved := candidate("ACME", 74)
	moved.YearHigh, moved.AvgClose, moved.Sector = 120, 90, "Energy"
	f.screener.set(moved)
	_, err = f.manager.Reconcile(ctx, "u1")
	require.NoError(t, err)

	entries, err := f.manager.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 72.0, entries[0].PriceWhenAdded)
	assert.Equal(t, 74.0, entries[0].CurrentPrice)
	assert.Equal(t, 26.0, entries[0].PercentBelowHigh)
	assert.True(t, entries[0].DateAdded.Equal(f.clock))

	// values captured when the entry was added stay put
	assert.Equal(t, 100.0, entries[0].WeekHigh52)
	assert.Equal(t, 85.0, entries[0].AvgClose)
	assert.Equal(t, "Technology", entries[0].Sector)
}

func TestReconcile_OutsideWindowCreatesNewEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.screener.set(candidate("ACME", 72))
	_, err := f.manager.Reconcile(ctx, "u1")
	require.NoError(t, err)

	f.clock = now.Add(25 * time.Hour)
	res, err := f.manager.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	entries, err := f.manager.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReconcile_ConcurrentRunsKeepOneEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.screener.set(candidate("ACME", 72), candidate("BETA", 71))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Reconcile(ctx, "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := f.manager.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReconcile_UnknownOwner(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.manager.Reconcile(context.Background(), "ghost")
	assert.True(t, apperrors.IsInput(err))

	_, err = f.manager.Reconcile(context.Background(), "")
	assert.True(t, apperrors.IsInput(err))

	_, err = f.manager.List(context.Background(), "ghost")
	assert.True(t, apperrors.IsInput(err))
}

func TestReconcile_ScreenFailurePropagates(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.screener.err = apperrors.NewRetrievalError("bars_for", "ACME", errors.New("disk"))
	_, err := f.manager.Reconcile(context.Background(), "u1")
	assert.True(t, apperrors.IsRetrieval(err))
}

func TestRefreshPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.screener.set(candidate("ACME", 72), candidate("NOBAR", 71))
	_, err := f.manager.Reconcile(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, f.mem.SaveBars(ctx, []model.PriceBar{
		{InstrumentID: "ACME", Date: now.AddDate(0, 0, -1), Close: 70},
		{InstrumentID: "ACME", Date: now, Close: 81},
	}))

	updated, err := f.manager.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	entries, err := f.manager.List(ctx, "u1")
	require.NoError(t, err)
	byID := map[string]model.WatchlistEntry{}
	for _, e := range entries {
		byID[e.InstrumentID] = e
	}
	assert.Equal(t, 81.0, byID["ACME"].CurrentPrice)
	assert.Equal(t, 72.0, byID["ACME"].PriceWhenAdded)
	assert.True(t, byID["ACME"].DateAdded.Equal(now))
	assert.Equal(t, 71.0, byID["NOBAR"].CurrentPrice)
}

// listHookStore runs afterList once, right after the first AllActive read.
type listHookStore struct {
	*store.MemoryStore
	afterList func()
}

func (h *listHookStore) AllActive(ctx context.Context, ownerID string) ([]model.WatchlistEntry, error) {
	out, err := h.MemoryStore.AllActive(ctx, ownerID)
	if fn := h.afterList; fn != nil {
		h.afterList = nil
		fn()
	}
	return out, err
}

func TestRefreshPrices_KeepsReconcileThatLandsMidPass(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.AddOwner(ctx, model.Owner{ID: "u1"}))
	hooked := &listHookStore{MemoryStore: mem}
	clock := now
	m := NewManager(&fakeScreener{}, mem, hooked, nil, DefaultConfig(), zerolog.Nop())
	m.Now = func() time.Time { return clock }

	_, err := m.ReconcileCandidates(ctx, "u1", []model.Candidate{candidate("ACME", 72)})
	require.NoError(t, err)
	require.NoError(t, mem.SaveBars(ctx, []model.PriceBar{{InstrumentID: "ACME", Date: now, Close: 81}}))

	clock = now.Add(2 * time.Hour)
	hooked.afterList = func() {
		_, err := m.ReconcileCandidates(ctx, "u1", []model.Candidate{candidate("ACME", 74)})
		require.NoError(t, err)
	}
	updated, err := m.RefreshPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	entries, err := mem.AllActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 81.0, entries[0].CurrentPrice)
	assert.Equal(t, 26.0, entries[0].PercentBelowHigh)
	assert.True(t, entries[0].DateAdded.Equal(clock))
	assert.Equal(t, 72.0, entries[0].PriceWhenAdded)
}

func TestRecomputeChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	require.NoError(t, f.mem.Upsert(ctx, &model.WatchlistEntry{
		ID: "w1", InstrumentID: "ACME", OwnerID: "u1", DateAdded: now, FirstAdded: now,
		PriceWhenAdded: 80, CurrentPrice: 100,
	}))
	require.NoError(t, f.mem.Upsert(ctx, &model.WatchlistEntry{
		ID: "w2", InstrumentID: "ZERO", OwnerID: "u1", DateAdded: now, FirstAdded: now,
		PriceWhenAdded: 0, CurrentPrice: 10,
	}))

	updated, err := f.manager.RecomputeChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	entries, err := f.manager.List(ctx, "u1")
	require.NoError(t, err)
	for _, e := range entries {
		switch e.InstrumentID {
		case "ACME":
			assert.Equal(t, 25.0, e.PriceChangePct)
		case "ZERO":
			assert.Equal(t, 0.0, e.PriceChangePct)
		}
	}

	// second pass has nothing to change
	updated, err = f.manager.RecomputeChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestPriceChangePct(t *testing.T) {
	assert.Equal(t, 0.0, PriceChangePct(0, 50))
	assert.Equal(t, -10.0, PriceChangePct(50, 45))
	assert.Equal(t, 50.0, PriceChangePct(50, 75))
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	require.NoError(t, f.mem.Upsert(ctx, &model.WatchlistEntry{
		ID: "old", InstrumentID: "OLD", OwnerID: "u1",
		DateAdded: now.AddDate(0, -7, 0), FirstAdded: now.AddDate(0, -7, 0),
	}))
	require.NoError(t, f.mem.Upsert(ctx, &model.WatchlistEntry{
		ID: "young", InstrumentID: "YOUNG", OwnerID: "u1",
		DateAdded: now.AddDate(0, -5, 0), FirstAdded: now.AddDate(0, -9, 0),
	}))

	removed, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entries, err := f.manager.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "young", entries[0].ID)

	// sweeping again is a no-op
	removed, err = f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestSweep_ByFirstAdded(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ExpiryBasis = model.ExpireByAdded
	f := newFixture(t, cfg)
	require.NoError(t, f.mem.Upsert(ctx, &model.WatchlistEntry{
		ID: "refreshed", InstrumentID: "R", OwnerID: "u1",
		DateAdded: now.AddDate(0, 0, -1), FirstAdded: now.AddDate(0, -9, 0),
	}))

	removed, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestManager_RecordsRuns(t *testing.T) {
	ctx := context.Background()
	rec, err := recorder.NewSQLiteRecorder(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	mem := store.NewMemoryStore()
	require.NoError(t, mem.AddOwner(ctx, model.Owner{ID: "u1"}))
	m := NewManager(&fakeScreener{candidates: []model.Candidate{candidate("ACME", 72)}}, mem, mem, rec, Config{}, zerolog.Nop())

	_, err = m.Reconcile(ctx, "u1")
	require.NoError(t, err)
	_, err = m.Sweep(ctx)
	require.NoError(t, err)

	runs, err := rec.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	passes := []string{runs[0].Pass, runs[1].Pass}
	assert.ElementsMatch(t, []string{recorder.PassReconcile, recorder.PassSweep}, passes)
}
