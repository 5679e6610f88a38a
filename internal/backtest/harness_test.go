package backtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// feedDay produces an ENTRY at the open and a profitable EXIT later the same day.
func feedDay(day int, start time.Time) []*signal.NormalizedSignal {
	ts := start.AddDate(0, 0, day)
	entry := &signal.NormalizedSignal{
		SignalID:   fmt.Sprintf("d%03d-entry", day),
		StrategyID: "trend",
		Timestamp:  ts.Add(time.Hour),
		Instrument: "BTCUSDT",
		Direction:  signal.DirectionLong,
		Action:     signal.ActionEntry,
		OrderType:  "MARKET",
		Price:      100,
	}
	exit := &signal.NormalizedSignal{
		SignalID:   fmt.Sprintf("d%03d-exit", day),
		StrategyID: "trend",
		Timestamp:  ts.Add(6 * time.Hour),
		Instrument: "BTCUSDT",
		Direction:  signal.DirectionLong,
		Action:     signal.ActionExit,
		OrderType:  "MARKET",
		Price:      101,
	}
	return []*signal.NormalizedSignal{entry, exit}
}

func runFeed(t *testing.T, cfg Config, signals []*signal.NormalizedSignal) *Results {
	t.Helper()

	ch := make(chan *signal.NormalizedSignal, len(signals))
	for _, s := range signals {
		ch <- s
	}
	close(ch)

	constructor, err := portfolio.New("fixed-fraction", 0.05)
	require.NoError(t, err)

	harness := NewHarness(cfg, constructor)
	results, err := harness.Run(context.Background(), signal.NewChannelSource(ch))
	require.NoError(t, err)
	return results
}

func TestRun_ProfitableFeedGrowsEquity(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var feed []*signal.NormalizedSignal
	for day := 0; day < 10; day++ {
		feed = append(feed, feedDay(day, start)...)
	}

	cfg := DefaultConfig()
	cfg.InitialEquity = 100000

	results := runFeed(t, cfg, feed)

	assert.Equal(t, 20, results.TotalSignals)
	assert.Equal(t, 20, results.Approved)
	assert.Equal(t, 0, results.Rejected)
	assert.Equal(t, 0, results.Duplicates)
	assert.Greater(t, results.EndEquity, results.StartEquity)
	assert.NotEmpty(t, results.EquityCurve)
	assert.NotEmpty(t, results.RunID)
	assert.Len(t, results.Decisions, 20)
}

// TestRun_DuplicateDeliveriesSettleOnce redelivers every signal twice and
// expects the ledger to absorb the duplicates without double-applied fills.
func TestRun_DuplicateDeliveriesSettleOnce(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var feed []*signal.NormalizedSignal
	for day := 0; day < 5; day++ {
		for _, s := range feedDay(day, start) {
			feed = append(feed, s, s) // duplicate delivery back to back
		}
	}

	cfg := DefaultConfig()
	cfg.InitialEquity = 100000

	results := runFeed(t, cfg, feed)

	assert.Equal(t, 10, results.TotalSignals)
	assert.Equal(t, 10, results.Duplicates)
	assert.Equal(t, 10, results.Approved)

	// Equity matches a run without duplicates
	var clean []*signal.NormalizedSignal
	for day := 0; day < 5; day++ {
		clean = append(clean, feedDay(day, start)...)
	}
	baseline := runFeed(t, cfg, clean)
	assert.InDelta(t, baseline.EndEquity, results.EndEquity, 1e-6)
}

func TestRun_WalkForwardRefitsOnSchedule(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var feed []*signal.NormalizedSignal
	for day := 0; day < 12; day++ {
		feed = append(feed, feedDay(day, start)...)
	}

	cfg := DefaultConfig()
	cfg.InitialEquity = 100000
	cfg.TrainDays = 5
	cfg.TestDays = 2

	results := runFeed(t, cfg, feed)

	// First refit after the 5-day fit window, then every 2 days
	require.NotEmpty(t, results.Folds)
	assert.GreaterOrEqual(t, len(results.Folds), 3)
	for i, f := range results.Folds {
		assert.Equal(t, i+1, f.Fold)
		assert.Equal(t, i+1, f.PlanVersion)
	}
}

// TestRun_StaleSignalsRejected delays alpha-carrying signals past the decay
// threshold via the configured decision latency.
func TestRun_StaleSignalsRejected(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var feed []*signal.NormalizedSignal
	for day := 0; day < 3; day++ {
		for _, s := range feedDay(day, start) {
			s.ExpectedAlpha = 0.002
			feed = append(feed, s)
		}
	}

	cfg := DefaultConfig()
	cfg.InitialEquity = 100000
	cfg.DecisionLatency = 2 * time.Hour

	results := runFeed(t, cfg, feed)

	assert.Equal(t, 0, results.Approved)
	assert.Equal(t, 6, results.Rejected)
	assert.Equal(t, 6, results.RejectByReason["STALE_SIGNAL"])
	assert.InDelta(t, cfg.InitialEquity, results.EndEquity, 1e-9)
}

func TestRun_EmptyFeed(t *testing.T) {
	cfg := DefaultConfig()
	results := runFeed(t, cfg, nil)

	assert.Equal(t, 0, results.TotalSignals)
	assert.Empty(t, results.EquityCurve)
	assert.Equal(t, 0.0, results.EndEquity)
}
