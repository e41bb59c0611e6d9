// Package watchlist keeps per-owner watchlists in step with the screen.
//
// Each (instrument, owner) pair is absent, active or expired. Reconcile creates or
// refreshes active entries, RefreshPrices and RecomputeChanges keep them current,
// and Sweep expires old ones. Every pass is safe to repeat.
package watchlist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
	"EquityWatch/internal/recorder"
	"EquityWatch/internal/store"
)

// CandidateSource produces the ranked screen output.
type CandidateSource interface {
	Screen(ctx context.Context) ([]model.Candidate, error)
}

// Store is the persistence the manager needs.
type Store interface {
	store.WatchlistStore
	store.OwnerStore
}

// Config tunes the lifecycle.
type Config struct {
	// RefreshWindow is how recent an entry must be to be refreshed instead of re-created.
	RefreshWindow time.Duration
	MaxAgeMonths  int
	ExpiryBasis   model.ExpiryBasis
	Reason        string
}

// DefaultConfig returns a 24h refresh window and 6 month expiry measured from the last refresh.
func DefaultConfig() Config {
	return Config{
		RefreshWindow: 24 * time.Hour,
		MaxAgeMonths:  6,
		ExpiryBasis:   model.ExpireByRefresh,
		Reason:        model.DefaultWatchReason,
	}
}

// ReconcileResult counts what one reconcile pass did.
type ReconcileResult struct {
	Candidates int
	Added      int
	Refreshed  int
}

// Manager runs the watchlist passes.
type Manager struct {
	screener CandidateSource
	prices   store.PriceStore
	store    Store
	recorder recorder.Recorder
	cfg      Config
	locks    *pairLocks
	log      zerolog.Logger

	Now func() time.Time
}

// NewManager creates a Manager. A nil recorder disables run history.
func NewManager(screener CandidateSource, prices store.PriceStore, st Store, rec recorder.Recorder, cfg Config, logger zerolog.Logger) *Manager {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	def := DefaultConfig()
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = def.RefreshWindow
	}
	if cfg.MaxAgeMonths <= 0 {
		cfg.MaxAgeMonths = def.MaxAgeMonths
	}
	if cfg.ExpiryBasis == "" {
		cfg.ExpiryBasis = def.ExpiryBasis
	}
	if cfg.Reason == "" {
		cfg.Reason = def.Reason
	}
	return &Manager{
		screener: screener,
		prices:   prices,
		store:    st,
		recorder: rec,
		cfg:      cfg,
		locks:    newPairLocks(),
		log:      logger.With().Str("component", "watchlist").Logger(),
		Now:      time.Now,
	}
}

// Reconcile screens the universe and adds or refreshes an entry per candidate
// for the owner.
func (m *Manager) Reconcile(ctx context.Context, ownerID string) (ReconcileResult, error) {
	if err := m.requireOwner(ctx, ownerID); err != nil {
		return ReconcileResult{}, err
	}
	candidates, err := m.screener.Screen(ctx)
	if err != nil {
		m.record(ctx, recorder.PassReconcile, ownerID, time.Now(), 0, 0, 0, err)
		return ReconcileResult{}, err
	}
	return m.ReconcileCandidates(ctx, ownerID, candidates)
}

// ReconcileCandidates applies an already computed screen to the owner's watchlist.
// Entries refreshed within the window keep their price_when_added and first_added.
func (m *Manager) ReconcileCandidates(ctx context.Context, ownerID string, candidates []model.Candidate) (ReconcileResult, error) {
	start := time.Now()
	res := ReconcileResult{Candidates: len(candidates)}

	if err := m.requireOwner(ctx, ownerID); err != nil {
		return res, err
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		added, err := m.upsertCandidate(ctx, ownerID, c)
		if err != nil {
			m.record(ctx, recorder.PassReconcile, ownerID, start, res.Added, res.Refreshed, 0, err)
			return res, err
		}
		if added {
			res.Added++
		} else {
			res.Refreshed++
		}
	}

	m.log.Info().
		Str("owner", ownerID).
		Int("candidates", res.Candidates).
		Int("added", res.Added).
		Int("refreshed", res.Refreshed).
		Msg("watchlist reconciled")
	m.record(ctx, recorder.PassReconcile, ownerID, start, res.Added, res.Refreshed, 0, nil)
	return res, nil
}

func (m *Manager) upsertCandidate(ctx context.Context, ownerID string, c model.Candidate) (bool, error) {
	unlock := m.locks.lock(c.InstrumentID, ownerID)
	defer unlock()

	now := m.Now()
	existing, err := m.store.FindActive(ctx, c.InstrumentID, ownerID, now.Add(-m.cfg.RefreshWindow))
	if err != nil {
		return false, err
	}

	if existing == nil {
		entry := &model.WatchlistEntry{
			ID:               uuid.NewString(),
			InstrumentID:     c.InstrumentID,
			OwnerID:          ownerID,
			DateAdded:        now,
			FirstAdded:       now,
			Reason:           m.cfg.Reason,
			Sector:           c.Sector,
			PriceWhenAdded:   c.CurrentPrice,
			CurrentPrice:     c.CurrentPrice,
			WeekHigh52:       c.YearHigh,
			PercentBelowHigh: c.PercentBelowHigh,
			AvgClose:         c.AvgClose,
		}
		if err := m.store.Upsert(ctx, entry); err != nil {
			return false, err
		}
		m.log.Debug().Str("owner", ownerID).Str("instrument", c.InstrumentID).Msg("added to watchlist")
		return true, nil
	}

	// a refresh moves the entry forward and keeps what was captured when added
	existing.CurrentPrice = c.CurrentPrice
	existing.PercentBelowHigh = c.PercentBelowHigh
	existing.DateAdded = now
	if err := m.store.Upsert(ctx, existing); err != nil {
		return false, err
	}
	return false, nil
}

// RefreshPrices sets current_price of every active entry to the instrument's
// latest close. Entries without a stored bar are left untouched.
func (m *Manager) RefreshPrices(ctx context.Context) (int, error) {
	start := time.Now()
	updated := 0
	err := m.eachEntry(ctx, func(e *model.WatchlistEntry) (bool, error) {
		bar, err := m.prices.LatestBar(ctx, e.InstrumentID)
		if err != nil || bar == nil {
			return false, err
		}
		return true, m.store.SetCurrentPrice(ctx, e.ID, bar.Close)
	}, &updated)
	m.record(ctx, recorder.PassRefresh, "", start, 0, updated, 0, err)
	if err != nil {
		return updated, err
	}
	m.log.Info().Int("updated", updated).Msg("watchlist prices refreshed")
	return updated, nil
}

// RecomputeChanges sets price_change_pct from price_when_added to current_price.
func (m *Manager) RecomputeChanges(ctx context.Context) (int, error) {
	start := time.Now()
	updated := 0
	err := m.eachEntry(ctx, func(e *model.WatchlistEntry) (bool, error) {
		pct := PriceChangePct(e.PriceWhenAdded, e.CurrentPrice)
		if pct == e.PriceChangePct {
			return false, nil
		}
		return true, m.store.SetPriceChangePct(ctx, e.ID, pct)
	}, &updated)
	m.record(ctx, recorder.PassRecompute, "", start, 0, updated, 0, err)
	if err != nil {
		return updated, err
	}
	m.log.Info().Int("updated", updated).Msg("watchlist changes recomputed")
	return updated, nil
}

// PriceChangePct is the percentage move since the entry was added, 0 when the
// reference price is 0.
func PriceChangePct(whenAdded, current float64) float64 {
	if whenAdded == 0 {
		return 0
	}
	return (current - whenAdded) / whenAdded * 100
}

// Sweep removes entries older than the configured maximum age.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := m.Now().AddDate(0, -m.cfg.MaxAgeMonths, 0)
	removed, err := m.store.DeleteOlderThan(ctx, cutoff, m.cfg.ExpiryBasis)
	m.record(ctx, recorder.PassSweep, "", start, 0, 0, int(removed), err)
	if err != nil {
		return 0, err
	}
	m.log.Info().
		Int64("removed", removed).
		Time("cutoff", cutoff).
		Str("basis", string(m.cfg.ExpiryBasis)).
		Msg("watchlist swept")
	return removed, nil
}

// List returns the owner's entries, most recently refreshed first.
func (m *Manager) List(ctx context.Context, ownerID string) ([]model.WatchlistEntry, error) {
	if err := m.requireOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	return m.store.AllActive(ctx, ownerID)
}

func (m *Manager) requireOwner(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return apperrors.NewInputError("owner_id", nil, "owner id is required")
	}
	ok, err := m.store.OwnerExists(ctx, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewInputError("owner_id", ownerID, "unknown owner")
	}
	return nil
}

// eachEntry applies fn to every active entry of every owner. fn runs under the
// pair lock on a fresh copy of the entry and writes its own column; it reports
// whether it wrote.
func (m *Manager) eachEntry(ctx context.Context, fn func(e *model.WatchlistEntry) (bool, error), changed *int) error {
	owners, err := m.store.Owners(ctx)
	if err != nil {
		return err
	}
	for _, o := range owners {
		entries, err := m.store.AllActive(ctx, o.ID)
		if err != nil {
			return err
		}
		for i := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.applyLocked(ctx, &entries[i], fn, changed); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) applyLocked(ctx context.Context, e *model.WatchlistEntry, fn func(e *model.WatchlistEntry) (bool, error), changed *int) error {
	unlock := m.locks.lock(e.InstrumentID, e.OwnerID)
	defer unlock()

	fresh, err := m.store.Entry(ctx, e.ID)
	if err != nil || fresh == nil {
		return err
	}
	ok, err := fn(fresh)
	if err != nil {
		return err
	}
	if ok {
		*changed++
	}
	return nil
}

func (m *Manager) record(ctx context.Context, pass, ownerID string, start time.Time, added, updated, removed int, runErr error) {
	evt := &recorder.RunEvent{
		At:       m.Now(),
		Pass:     pass,
		OwnerID:  ownerID,
		Added:    added,
		Updated:  updated,
		Removed:  removed,
		Duration: time.Since(start),
	}
	if runErr != nil {
		evt.Err = runErr.Error()
	}
	if err := m.recorder.RecordRun(ctx, evt); err != nil {
		m.log.Warn().Err(err).Str("pass", pass).Msg("failed to record run")
	}
}
