package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

func testSignal(price float64) *signal.NormalizedSignal {
	return &signal.NormalizedSignal{
		SignalID:   "sig-1",
		StrategyID: "trend",
		Timestamp:  time.Now().UTC(),
		Instrument: "BTCUSDT",
		Direction:  signal.DirectionLong,
		Action:     signal.ActionEntry,
		Price:      price,
	}
}

func candidateIntent() portfolio.RawIntent {
	return portfolio.RawIntent{Action: portfolio.IntentApproveCandidate}
}

// TestSize_ApprovedWithHeadroom covers sizing with comfortable margin headroom:
// 100k equity at 20% utilization, 5% default position at price 450.
func TestSize_ApprovedWithHeadroom(t *testing.T) {
	sizer := NewSizer(DefaultLimits())
	acct := account.State{Equity: 100000, MarginUsed: 20000, MarginAvailable: 80000}

	d := sizer.Size(testSignal(450), candidateIntent(), acct)

	assert.True(t, d.Approved)
	assert.Equal(t, decision.ReasonApproved, d.Reason)
	assert.InDelta(t, 5000.0/450, d.FinalQuantity, 1e-9)
	assert.InDelta(t, 22.5, d.MarginUtilizationAfterPct, 1e-9)
}

// TestSize_ScaledDownNearCeiling covers partial approval: 39% utilization
// leaves only 1000 of additional margin, so the 2500 estimate is scaled by 0.4.
func TestSize_ScaledDownNearCeiling(t *testing.T) {
	sizer := NewSizer(DefaultLimits())
	acct := account.State{Equity: 100000, MarginUsed: 39000, MarginAvailable: 61000}

	d := sizer.Size(testSignal(450), candidateIntent(), acct)

	assert.True(t, d.Approved)
	rawQuantity := 5000.0 / 450
	assert.InDelta(t, rawQuantity*0.4, d.FinalQuantity, 1e-9)
	assert.Less(t, d.FinalQuantity, rawQuantity)
	assert.InDelta(t, 40.0, d.MarginUtilizationAfterPct, 1e-9)
}

// TestSize_RejectedAtCeiling covers the hard stop: utilization already at the
// configured maximum rejects before any sizing happens.
func TestSize_RejectedAtCeiling(t *testing.T) {
	sizer := NewSizer(DefaultLimits())
	acct := account.State{Equity: 100000, MarginUsed: 40000}

	d := sizer.Size(testSignal(450), candidateIntent(), acct)

	assert.False(t, d.Approved)
	assert.Equal(t, decision.ReasonMarginLimitExceeded, d.Reason)
	assert.Equal(t, 0.0, d.FinalQuantity)
}

// TestSize_RejectedInvalidPrice covers zero and negative reference prices.
func TestSize_RejectedInvalidPrice(t *testing.T) {
	sizer := NewSizer(DefaultLimits())
	acct := account.State{Equity: 100000, MarginUsed: 20000}

	for _, price := range []float64{0, -1} {
		d := sizer.Size(testSignal(price), candidateIntent(), acct)
		assert.False(t, d.Approved)
		assert.Equal(t, decision.ReasonInvalidPrice, d.Reason)
		assert.Equal(t, 0.0, d.FinalQuantity)
	}
}

func TestSize_ZeroEquityTreatedAsFullyUtilized(t *testing.T) {
	sizer := NewSizer(DefaultLimits())

	for _, equity := range []float64{0, -5000} {
		d := sizer.Size(testSignal(450), candidateIntent(), account.State{Equity: equity})
		assert.False(t, d.Approved)
		assert.Equal(t, decision.ReasonMarginLimitExceeded, d.Reason)
	}
}

func TestSize_ConstructorFractionOverridesDefault(t *testing.T) {
	sizer := NewSizer(DefaultLimits())
	acct := account.State{Equity: 100000, MarginUsed: 0}

	intent := candidateIntent()
	intent.TargetCapitalFraction = 0.10

	d := sizer.Size(testSignal(100), intent, acct)
	assert.True(t, d.Approved)
	assert.InDelta(t, 100.0, d.FinalQuantity, 1e-9) // 10000 / 100
}

// TestSize_MarginMonotonicity checks that final_quantity never increases as
// margin_used grows, holding everything else fixed.
func TestSize_MarginMonotonicity(t *testing.T) {
	sizer := NewSizer(DefaultLimits())
	sig := testSignal(450)

	prev := -1.0
	first := true
	for marginUsed := 0.0; marginUsed <= 45000; marginUsed += 1000 {
		d := sizer.Size(sig, candidateIntent(), account.State{Equity: 100000, MarginUsed: marginUsed})

		assert.GreaterOrEqual(t, d.FinalQuantity, 0.0)
		if d.Approved {
			assert.Greater(t, d.FinalQuantity, 0.0)
			assert.LessOrEqual(t, d.MarginUtilizationAfterPct, 40.0+1e-9)
		} else {
			assert.Equal(t, 0.0, d.FinalQuantity)
		}

		if !first {
			assert.LessOrEqual(t, d.FinalQuantity, prev+1e-9,
				fmt.Sprintf("quantity grew when margin_used rose to %.0f", marginUsed))
		}
		prev = d.FinalQuantity
		first = false
	}
}
