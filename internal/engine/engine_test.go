package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/decay"
	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/ledger"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/risk"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

func entrySignal(id string, age time.Duration) *signal.NormalizedSignal {
	return &signal.NormalizedSignal{
		SignalID:      id,
		StrategyID:    "trend",
		Timestamp:     time.Now().UTC().Add(-age),
		Instrument:    "BTCUSDT",
		Direction:     signal.DirectionLong,
		Action:        signal.ActionEntry,
		OrderType:     "MARKET",
		Price:         450,
		ExpectedAlpha: 0.02,
	}
}

func healthyAccount() *account.StaticProvider {
	return &account.StaticProvider{State: account.State{
		Equity:          100000,
		MarginUsed:      20000,
		MarginAvailable: 80000,
	}}
}

func newTestEngine(provider account.Provider, sink OrderSink) *Engine {
	constructor, _ := portfolio.New("fixed-fraction", 0.05)
	return New(
		ledger.NewMemoryLedger(),
		provider,
		constructor,
		risk.NewSizer(risk.DefaultLimits()),
		decay.NewGate(decay.DefaultSlippageRatePerMinute, decay.DefaultRejectThreshold),
		sink,
		portfolio.NewPlanHistory(),
	)
}

func TestProcess_ApprovedSignalReachesSink(t *testing.T) {
	sink := &RecordingSink{}
	eng := newTestEngine(healthyAccount(), sink)

	d, err := eng.Process(context.Background(), entrySignal("sig-1", time.Second))
	require.NoError(t, err)

	assert.True(t, d.Approved)
	assert.Equal(t, decision.ReasonApproved, d.Reason)
	assert.InDelta(t, 5000.0/450, d.FinalQuantity, 1e-9)
	require.Len(t, sink.Orders(), 1)
	assert.Equal(t, "sig-1", sink.Orders()[0].SignalID)
}

func TestProcess_MissingSignalIDRejected(t *testing.T) {
	eng := newTestEngine(healthyAccount(), NoopSink{})

	sig := entrySignal("", time.Second)
	_, err := eng.Process(context.Background(), sig)
	require.Error(t, err)
}

// TestProcess_Idempotent submits the same signal several times and expects one
// committed decision and one sink call total.
func TestProcess_Idempotent(t *testing.T) {
	sink := &RecordingSink{}
	eng := newTestEngine(healthyAccount(), sink)
	ctx := context.Background()

	sig := entrySignal("sig-1", time.Second)

	first, err := eng.Process(ctx, sig)
	require.NoError(t, err)
	require.True(t, first.Approved)

	for i := 0; i < 4; i++ {
		d, err := eng.Process(ctx, sig)
		require.NoError(t, err)
		assert.Equal(t, first.Reason, d.Reason)
		assert.InDelta(t, first.FinalQuantity, d.FinalQuantity, 1e-9)
	}

	assert.Len(t, sink.Orders(), 1)
}

// TestProcess_ConcurrentDuplicateDeliveries races the same signal_id across
// workers: exactly one decision is computed and at most one order emitted.
// Losing deliveries either surface the committed decision or report the
// in-flight reservation as retryable.
func TestProcess_ConcurrentDuplicateDeliveries(t *testing.T) {
	sink := &RecordingSink{}
	eng := newTestEngine(healthyAccount(), sink)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	decisions := make([]*decision.Decision, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = eng.Process(ctx, entrySignal("sig-race", time.Second))
		}(i)
	}
	wg.Wait()

	committed := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], decision.ErrReservationPending)
			continue
		}
		committed++
		assert.Equal(t, "sig-race", decisions[i].SignalID)
	}
	assert.GreaterOrEqual(t, committed, 1)
	assert.Len(t, sink.Orders(), 1)
}

func TestProcess_StaleSignalRejectedWithAuditQuantity(t *testing.T) {
	sink := &RecordingSink{}
	eng := newTestEngine(healthyAccount(), sink)

	d, err := eng.Process(context.Background(), entrySignal("sig-stale", 2*time.Hour))
	require.NoError(t, err)

	assert.False(t, d.Approved)
	assert.Equal(t, decision.ReasonStaleSignal, d.Reason)
	assert.Equal(t, 0.0, d.FinalQuantity)
	// The would-be size survives for audit even though the gate rejected
	assert.Greater(t, d.SizedQuantity, 0.0)
	assert.Greater(t, d.AlphaLostFraction, decay.DefaultRejectThreshold)
	assert.Empty(t, sink.Orders())
}

func TestProcess_MarginCeilingRejected(t *testing.T) {
	provider := &account.StaticProvider{State: account.State{Equity: 100000, MarginUsed: 40000}}
	sink := &RecordingSink{}
	eng := newTestEngine(provider, sink)

	d, err := eng.Process(context.Background(), entrySignal("sig-1", time.Second))
	require.NoError(t, err)

	assert.False(t, d.Approved)
	assert.Equal(t, decision.ReasonMarginLimitExceeded, d.Reason)
	assert.Empty(t, sink.Orders())
}

// TestProcess_AccountFailureRollsBackReservation verifies an infrastructure
// failure releases the reservation so redelivery can decide the signal later.
func TestProcess_AccountFailureRollsBackReservation(t *testing.T) {
	led := ledger.NewMemoryLedger()
	constructor, _ := portfolio.New("fixed-fraction", 0.05)
	sink := &RecordingSink{}
	flaky := &flakyProvider{failures: 1}

	eng := New(
		led,
		flaky,
		constructor,
		risk.NewSizer(risk.DefaultLimits()),
		decay.NewGate(decay.DefaultSlippageRatePerMinute, decay.DefaultRejectThreshold),
		sink,
		portfolio.NewPlanHistory(),
	)
	ctx := context.Background()
	sig := entrySignal("sig-1", time.Second)

	_, err := eng.Process(ctx, sig)
	require.Error(t, err)
	assert.False(t, decision.IsInvariantViolation(err))

	// Redelivery after the outage decides normally
	d, err := eng.Process(ctx, sig)
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Len(t, sink.Orders(), 1)
}

type flakyProvider struct {
	mu       sync.Mutex
	failures int
}

func (p *flakyProvider) Snapshot(ctx context.Context) (account.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return account.State{}, errors.New("account service unreachable")
	}
	return account.State{Equity: 100000, MarginUsed: 20000, MarginAvailable: 80000}, nil
}

type failingSink struct {
	calls int
}

func (s *failingSink) Submit(ctx context.Context, d *decision.Decision, sig *signal.NormalizedSignal) error {
	s.calls++
	return fmt.Errorf("order sink unreachable")
}

// TestProcess_SinkFailureKeepsDecisionCommitted verifies a sink outage after
// commit surfaces the error but never reopens the signal_id: redelivery must
// not produce a second order.
func TestProcess_SinkFailureKeepsDecisionCommitted(t *testing.T) {
	sink := &failingSink{}
	eng := newTestEngine(healthyAccount(), sink)
	ctx := context.Background()
	sig := entrySignal("sig-1", time.Second)

	d, err := eng.Process(ctx, sig)
	require.Error(t, err)
	require.NotNil(t, d)
	assert.True(t, d.Approved)
	assert.Equal(t, 1, sink.calls)

	// Redelivery short-circuits to the committed decision, no second submit
	dup, err := eng.Process(ctx, sig)
	require.NoError(t, err)
	assert.True(t, dup.Approved)
	assert.Equal(t, 1, sink.calls)
}

func TestRefit_AppendsVersionedPlan(t *testing.T) {
	constructor, _ := portfolio.New("fixed-fraction", 0.05)
	history := portfolio.NewPlanHistory()
	eng := New(
		ledger.NewMemoryLedger(),
		healthyAccount(),
		constructor,
		risk.NewSizer(risk.DefaultLimits()),
		decay.NewGate(decay.DefaultSlippageRatePerMinute, decay.DefaultRejectThreshold),
		NoopSink{},
		history,
		WithReturns(func() map[string][]float64 {
			return map[string][]float64{"trend": {0.01, -0.002, 0.004}}
		}),
	)

	plan, err := eng.Refit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Version)

	plan, err = eng.Refit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Version)
	assert.Equal(t, 2, history.Len())
}
