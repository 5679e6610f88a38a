package risk

import (
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// Limits holds the account-level risk configuration applied to every signal.
type Limits struct {
	// MaxMarginUtilizationPct caps margin_used / equity (e.g. 40)
	MaxMarginUtilizationPct float64

	// DefaultPositionSizePct sizes signals whose constructor is
	// allocation-only and returned no target fraction (e.g. 5)
	DefaultPositionSizePct float64

	// MarginRate resolves the assumed margin rate per instrument
	MarginRate RateLookup
}

// DefaultLimits returns the reference limit set.
func DefaultLimits() Limits {
	return Limits{
		MaxMarginUtilizationPct: 40,
		DefaultPositionSizePct:  5,
		MarginRate:              FlatRate(DefaultMarginRate),
	}
}

// Sizer is the risk gate: it converts a constructor's raw intent into a
// capital- and margin-bounded order quantity.
type Sizer struct {
	limits Limits
	clock  func() time.Time
}

// NewSizer creates a sizer with the given limits.
func NewSizer(limits Limits) *Sizer {
	if limits.MarginRate == nil {
		limits.MarginRate = FlatRate(DefaultMarginRate)
	}
	return &Sizer{limits: limits, clock: time.Now}
}

// Size applies the margin-utilization algorithm and returns a decision. The
// returned decision is not yet final: the decay gate may still reject an
// approved sizing before commit.
//
// All ratios are computed in floating point; equity at or below zero never
// divides and is treated as 100% utilization instead.
func (s *Sizer) Size(sig *signal.NormalizedSignal, intent portfolio.RawIntent, acct account.State) *decision.Decision {
	now := s.clock().UTC()

	currentUtilPct := acct.MarginUtilizationPct()
	if currentUtilPct >= s.limits.MaxMarginUtilizationPct {
		return decision.Rejected(sig.SignalID, decision.ReasonMarginLimitExceeded, now)
	}

	fraction := intent.TargetCapitalFraction
	if fraction <= 0 {
		fraction = s.limits.DefaultPositionSizePct / 100
	}
	allocatedCapital := acct.Equity * fraction

	if sig.Price <= 0 {
		return decision.Rejected(sig.SignalID, decision.ReasonInvalidPrice, now)
	}

	rawQuantity := allocatedCapital / sig.Price
	estimatedMargin := allocatedCapital * s.limits.MarginRate.Rate(sig.Instrument)

	marginAfter := acct.MarginUsed + estimatedMargin
	utilAfterPct := 100.0
	if acct.Equity > 0 {
		utilAfterPct = marginAfter / acct.Equity * 100
	}

	finalQuantity := rawQuantity
	if utilAfterPct > s.limits.MaxMarginUtilizationPct {
		maxAdditionalMargin := s.limits.MaxMarginUtilizationPct/100*acct.Equity - acct.MarginUsed
		if maxAdditionalMargin <= 0 {
			d := decision.Rejected(sig.SignalID, decision.ReasonInsufficientMargin, now)
			d.SizedQuantity = 0
			return d
		}

		reductionFactor := maxAdditionalMargin / estimatedMargin
		finalQuantity = rawQuantity * reductionFactor
		utilAfterPct = s.limits.MaxMarginUtilizationPct
	}

	return &decision.Decision{
		SignalID:                  sig.SignalID,
		Approved:                  true,
		Reason:                    decision.ReasonApproved,
		FinalQuantity:             finalQuantity,
		SizedQuantity:             finalQuantity,
		MarginUtilizationAfterPct: utilAfterPct,
		CreatedAt:                 now,
	}
}

// Limits returns the configured limit set.
func (s *Sizer) Limits() Limits {
	return s.limits
}
