package decay

import (
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// Defaults for the reference slippage model: 0.1% edge erosion per minute of
// delay, rejecting once 30% of the expected alpha is gone.
const (
	DefaultSlippageRatePerMinute = 0.001
	DefaultRejectThreshold       = 0.30
)

// Result carries the gate verdict plus the intermediate numbers, which are
// logged on rejection so staleness can be diagnosed from the audit trail.
type Result struct {
	Passed            bool
	DelaySeconds      float64
	SlippagePct       float64
	AlphaLostFraction float64
}

// Gate rejects signals whose execution delay has eroded too much of their
// expected edge. Alpha-agnostic signals (expected_alpha <= 0) always pass.
type Gate struct {
	slippageRatePerMinute float64
	rejectThreshold       float64
}

// NewGate creates a decay gate; non-positive parameters fall back to defaults.
func NewGate(slippageRatePerMinute, rejectThreshold float64) *Gate {
	if slippageRatePerMinute <= 0 {
		slippageRatePerMinute = DefaultSlippageRatePerMinute
	}
	if rejectThreshold <= 0 {
		rejectThreshold = DefaultRejectThreshold
	}
	return &Gate{
		slippageRatePerMinute: slippageRatePerMinute,
		rejectThreshold:       rejectThreshold,
	}
}

// Check evaluates the signal's alpha decay at the given time.
func (g *Gate) Check(sig *signal.NormalizedSignal, now time.Time) Result {
	delay := sig.Age(now).Seconds()
	slippagePct := delay / 60 * g.slippageRatePerMinute

	res := Result{
		Passed:       true,
		DelaySeconds: delay,
		SlippagePct:  slippagePct,
	}

	if sig.ExpectedAlpha <= 0 {
		return res // alpha-agnostic, not decay-gated
	}

	res.AlphaLostFraction = slippagePct / sig.ExpectedAlpha
	res.Passed = res.AlphaLostFraction <= g.rejectThreshold
	return res
}
