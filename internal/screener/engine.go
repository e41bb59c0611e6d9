// Package screener selects instruments that pulled back from their high but held a floor.
package screener

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"EquityWatch/internal/calculator"
	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
	"EquityWatch/internal/store"
)

// Select filters aggregates through the policy and ranks the survivors.
func Select(aggs []model.Aggregate, p Policy) []model.Candidate {
	out := make([]model.Candidate, 0)
	for _, a := range aggs {
		if !p.Qualifies(a) {
			continue
		}
		out = append(out, model.Candidate{
			InstrumentID:     a.InstrumentID,
			Name:             a.Name,
			Sector:           a.Sector,
			YearHigh:         a.YearHigh,
			AvgClose:         a.AvgClose,
			CurrentPrice:     a.CurrentPrice,
			PercentBelowHigh: percentBelowHigh(a),
		})
	}
	Rank(out)
	return out
}

// Rank orders candidates by absolute pullback, largest first. Ties go to the
// lower instrument id.
func Rank(candidates []model.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Pullback(), candidates[j].Pullback()
		if pi != pj {
			return pi > pj
		}
		return candidates[i].InstrumentID < candidates[j].InstrumentID
	})
}

// Screener runs the screen against the stored universe.
type Screener struct {
	Prices      store.PriceStore
	Instruments store.InstrumentStore
	Policy      Policy
	Now         func() time.Time

	log zerolog.Logger
}

// New creates a Screener. The policy is validated up front.
func New(prices store.PriceStore, instruments store.InstrumentStore, policy Policy, logger zerolog.Logger) (*Screener, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Screener{
		Prices:      prices,
		Instruments: instruments,
		Policy:      policy,
		Now:         time.Now,
		log:         logger.With().Str("component", "screener").Logger(),
	}, nil
}

// Aggregates computes lookback aggregates for every instrument with bars in the window.
func (s *Screener) Aggregates(ctx context.Context) ([]model.Aggregate, error) {
	instruments, err := s.Instruments.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	since := s.Now().AddDate(0, -s.Policy.LookbackMonths, 0)

	aggs := make([]model.Aggregate, 0, len(instruments))
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := s.Prices.BarsFor(ctx, inst.ID, since)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			s.log.Debug().Str("instrument", inst.ID).Msg("no bars in lookback window, skipping")
			continue
		}
		agg, err := calculator.Aggregate(inst.ID, bars)
		if err != nil {
			if apperrors.IsInput(err) {
				continue
			}
			return nil, err
		}
		agg.Name = inst.Name
		agg.Sector = inst.Sector
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

// Screen returns the ranked candidates. An empty result is not an error.
func (s *Screener) Screen(ctx context.Context) ([]model.Candidate, error) {
	aggs, err := s.Aggregates(ctx)
	if err != nil {
		return nil, err
	}
	candidates := Select(aggs, s.Policy)
	s.log.Info().
		Str("policy", s.Policy.Name).
		Int("universe", len(aggs)).
		Int("candidates", len(candidates)).
		Msg("screen complete")
	return candidates, nil
}
