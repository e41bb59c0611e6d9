package screener

import (
	"fmt"

	apperrors "EquityWatch/internal/errors"
	"EquityWatch/internal/model"
)

// Policy holds the thresholds of the pullback-and-recovery screen.
type Policy struct {
	Name string
	// Drop is the minimum fractional pullback from the lookback high.
	Drop float64
	// Recovery is the minimum price as a fraction of the lookback high.
	Recovery float64
	// VolumeMultiplier requires current volume >= multiplier * average volume. 0 disables it.
	VolumeMultiplier float64
	LookbackMonths   int
}

// SimplePolicy is the default screen.
var SimplePolicy = Policy{Name: "simple", Drop: 0.25, Recovery: 0.70, LookbackMonths: 24}

// StrictPolicy adds a volume confirmation on top of SimplePolicy.
var StrictPolicy = Policy{Name: "strict", Drop: 0.25, Recovery: 0.70, VolumeMultiplier: 1.5, LookbackMonths: 24}

// PolicyByName returns a preset policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", SimplePolicy.Name:
		return SimplePolicy, nil
	case StrictPolicy.Name:
		return StrictPolicy, nil
	}
	return Policy{}, apperrors.NewInputError("policy", name, "must be simple or strict")
}

// Validate checks that the thresholds describe a usable screen.
func (p Policy) Validate() error {
	if p.Drop <= 0 || p.Drop >= 1 {
		return apperrors.NewInputError("drop", p.Drop, "must be between 0 and 1")
	}
	if p.Recovery <= 0 || p.Recovery >= 1 {
		return apperrors.NewInputError("recovery", p.Recovery, "must be between 0 and 1")
	}
	if p.Recovery > 1-p.Drop {
		return apperrors.NewInputError("recovery", p.Recovery,
			fmt.Sprintf("must not exceed 1 - drop (%.2f)", 1-p.Drop))
	}
	if p.VolumeMultiplier < 0 {
		return apperrors.NewInputError("volume_multiplier", p.VolumeMultiplier, "must not be negative")
	}
	if p.LookbackMonths <= 0 {
		return apperrors.NewInputError("lookback_months", p.LookbackMonths, "must be positive")
	}
	return nil
}

// Qualifies reports whether an instrument's aggregates pass every enabled criterion.
func (p Policy) Qualifies(a model.Aggregate) bool {
	if a.YearHigh <= 0 {
		return false
	}
	return pulledBack(a, p) && recovered(a, p) && volumeConfirmed(a, p)
}
