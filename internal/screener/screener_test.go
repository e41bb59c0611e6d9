package screener

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
	"EquityWatch/internal/store"
)

var now = time.Date(2025, time.May, 30, 12, 0, 0, 0, time.UTC)

func agg(id string, high, price float64) model.Aggregate {
	return model.Aggregate{InstrumentID: id, YearHigh: high, CurrentPrice: price, AvgClose: high * 0.85}
}

func TestPolicy_Qualifies(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  bool
	}{
		{"shallow pullback", 78, false},
		{"inside band", 72, true},
		{"exactly at drop line", 75, true},
		{"exactly at recovery floor", 70, true},
		{"broken below floor", 65, false},
		{"at the high", 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SimplePolicy.Qualifies(agg("X", 100, tt.price)))
		})
	}
}

func TestPolicy_ZeroHighNeverQualifies(t *testing.T) {
	assert.False(t, SimplePolicy.Qualifies(agg("X", 0, 0)))
}

func TestPolicy_VolumeConfirmation(t *testing.T) {
	a := agg("X", 100, 72)
	a.AvgVolume = 1000
	a.CurrentVolume = 1400
	assert.True(t, SimplePolicy.Qualifies(a))
	assert.False(t, StrictPolicy.Qualifies(a))

	a.CurrentVolume = 1500
	assert.True(t, StrictPolicy.Qualifies(a))
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, SimplePolicy, p)

	p, err = PolicyByName("strict")
	require.NoError(t, err)
	assert.Equal(t, 1.5, p.VolumeMultiplier)

	_, err = PolicyByName("aggressive")
	assert.True(t, apperrors.IsInput(err))
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, SimplePolicy.Validate())
	require.NoError(t, StrictPolicy.Validate())

	bad := []Policy{
		{Drop: 0, Recovery: 0.7, LookbackMonths: 24},
		{Drop: 0.25, Recovery: 1.2, LookbackMonths: 24},
		{Drop: 0.5, Recovery: 0.7, LookbackMonths: 24},
		{Drop: 0.25, Recovery: 0.7, VolumeMultiplier: -1, LookbackMonths: 24},
		{Drop: 0.25, Recovery: 0.7},
	}
	for _, p := range bad {
		assert.True(t, apperrors.IsInput(p.Validate()), "%+v", p)
	}
}

func TestSelect_RanksByPullback(t *testing.T) {
	aggs := []model.Aggregate{
		agg("SMALL", 100, 74), // pullback 26
		agg("BIG", 400, 290),  // pullback 110
		agg("SKIP", 100, 90),  // fails
		agg("MID", 200, 145),  // pullback 55
		agg("AAA", 100, 74),   // ties SMALL
	}
	got := Select(aggs, SimplePolicy)
	require.Len(t, got, 4)
	ids := []string{got[0].InstrumentID, got[1].InstrumentID, got[2].InstrumentID, got[3].InstrumentID}
	assert.Equal(t, []string{"BIG", "MID", "AAA", "SMALL"}, ids)
	assert.InDelta(t, 27.5, got[0].PercentBelowHigh, 1e-9)
}

func TestSelect_EmptyIsNotNil(t *testing.T) {
	got := Select(nil, SimplePolicy)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func seedSeries(t *testing.T, s *store.MemoryStore, id string, closes ...float64) {
	t.Helper()
	bars := make([]model.PriceBar, len(closes))
	start := now.AddDate(0, 0, -len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{
			InstrumentID: id, Date: start.AddDate(0, 0, i),
			Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	require.NoError(t, s.SaveBars(context.Background(), bars))
}

func TestScreener_Screen(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	for _, inst := range []model.Instrument{
		{ID: "DIP", Name: "Dip Corp", Sector: "Industrials"},
		{ID: "FLAT", Name: "Flat Inc", Sector: "Utilities"},
		{ID: "NOBARS", Name: "Nothing Ltd"},
	} {
		require.NoError(t, mem.SaveInstrument(ctx, inst))
	}
	seedSeries(t, mem, "DIP", 90, 100, 95, 85, 72)
	seedSeries(t, mem, "FLAT", 50, 50, 50)

	// bars older than the lookback do not count toward the high
	require.NoError(t, mem.SaveBars(ctx, []model.PriceBar{
		{InstrumentID: "FLAT", Date: now.AddDate(-3, 0, 0), High: 500, Close: 500},
	}))

	sc, err := New(mem, mem, SimplePolicy, zerolog.Nop())
	require.NoError(t, err)
	sc.Now = func() time.Time { return now }

	got, err := sc.Screen(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DIP", got[0].InstrumentID)
	assert.Equal(t, "Dip Corp", got[0].Name)
	assert.Equal(t, "Industrials", got[0].Sector)
	assert.Equal(t, 100.0, got[0].YearHigh)
	assert.InDelta(t, 28.0, got[0].PercentBelowHigh, 1e-9)

	aggs, err := sc.Aggregates(ctx)
	require.NoError(t, err)
	assert.Len(t, aggs, 2)
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	_, err := New(store.NewMemoryStore(), store.NewMemoryStore(), Policy{}, zerolog.Nop())
	assert.True(t, apperrors.IsInput(err))
}
