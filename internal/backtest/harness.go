package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/decay"
	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/engine"
	"github.com/minhle2209/signal-decision-engine/internal/ledger"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/risk"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// Config holds the walk-forward harness parameters. The reference split is a
// 252-day fit window rolled forward every 63 days.
type Config struct {
	InitialEquity float64
	TrainDays     int
	TestDays      int

	// DecisionLatency models the delay between signal generation and the
	// engine seeing it, which is what exercises the decay gate in replay.
	DecisionLatency time.Duration

	Limits                risk.Limits
	SlippageRatePerMinute float64
	RejectThreshold       float64
}

// DefaultConfig returns the reference harness parameters.
func DefaultConfig() Config {
	return Config{
		InitialEquity:         100000,
		TrainDays:             252,
		TestDays:              63,
		Limits:                risk.DefaultLimits(),
		SlippageRatePerMinute: decay.DefaultSlippageRatePerMinute,
		RejectThreshold:       decay.DefaultRejectThreshold,
	}
}

// openPosition tracks one simulated fill awaiting its EXIT signal.
type openPosition struct {
	strategyID string
	direction  signal.Direction
	quantity   float64
	entryPrice float64
	margin     float64
}

// Harness replays a historical signal feed through the identical decision
// pipeline used live: same constructor, same risk gate, same decay gate, same
// engine. Only the clock, the account and the sink are simulated; the sink is
// always a no-op so replay can never emit a real order.
type Harness struct {
	cfg         Config
	constructor portfolio.Constructor

	clock    *SimClock
	provider *account.SimProvider
	led      *ledger.MemoryLedger
	eng      *engine.Engine

	positions map[string]*openPosition
	returns   map[string][]float64
	dayPnL    map[string]float64

	currentDay     time.Time
	dayStartEquity float64
	daysProcessed  int
	nextRefitDay   int
	foldStart      time.Time
	foldEquity     float64

	results *Results
	seen    map[string]struct{}
}

// NewHarness wires a harness around the given constructor.
func NewHarness(cfg Config, constructor portfolio.Constructor) *Harness {
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 100000
	}
	if cfg.TrainDays <= 0 {
		cfg.TrainDays = 252
	}
	if cfg.TestDays <= 0 {
		cfg.TestDays = 63
	}

	return &Harness{
		cfg:         cfg,
		constructor: constructor,
		positions:   make(map[string]*openPosition),
		returns:     make(map[string][]float64),
		dayPnL:      make(map[string]float64),
		seen:        make(map[string]struct{}),
	}
}

// Run replays the feed until it drains and returns the aggregated results.
func (h *Harness) Run(ctx context.Context, src signal.Source) (*Results, error) {
	h.results = &Results{
		RunID:          uuid.NewString(),
		Strategy:       h.constructor.Name(),
		StartedAt:      time.Now().UTC(),
		StartEquity:    h.cfg.InitialEquity,
		RejectByReason: make(map[string]int),
	}

	for {
		sig, err := src.Next(ctx)
		if errors.Is(err, signal.ErrSourceDrained) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("signal feed failed: %w", err)
		}

		if h.eng == nil {
			h.bootstrap(sig.Timestamp)
		}

		h.clock.Advance(sig.Timestamp.Add(h.cfg.DecisionLatency))
		h.rollDay(ctx, sig.Timestamp)

		if err := h.processOne(ctx, sig); err != nil {
			return nil, err
		}
	}

	if h.eng != nil {
		h.closeDay()
	}
	h.results.Finalize()
	return h.results, nil
}

// bootstrap lazily builds the simulated collaborators once the first signal
// fixes the start of replay time.
func (h *Harness) bootstrap(start time.Time) {
	h.clock = NewSimClock(start)
	h.provider = account.NewSimProvider(h.cfg.InitialEquity, h.clock.Now)
	h.led = ledger.NewMemoryLedger()

	history := portfolio.NewPlanHistory()
	h.eng = engine.New(
		h.led,
		h.provider,
		h.constructor,
		risk.NewSizer(h.cfg.Limits),
		decay.NewGate(h.cfg.SlippageRatePerMinute, h.cfg.RejectThreshold),
		engine.NoopSink{},
		history,
		engine.WithClock(h.clock.Now),
		engine.WithReturns(h.snapshotReturns),
	)

	h.currentDay = day(start)
	h.dayStartEquity = h.cfg.InitialEquity
	h.foldStart = start
	h.foldEquity = h.cfg.InitialEquity
	h.nextRefitDay = h.cfg.TrainDays
}

func (h *Harness) processOne(ctx context.Context, sig *signal.NormalizedSignal) error {
	_, dup := h.seen[sig.SignalID]
	if !dup {
		h.seen[sig.SignalID] = struct{}{}
		h.results.TotalSignals++
	}

	d, err := h.eng.Process(ctx, sig)
	if err != nil {
		// The harness has no infrastructure to fail and no redelivery loop, so
		// any error here is a harness bug worth surfacing.
		return fmt.Errorf("replay of signal %s failed: %w", sig.SignalID, err)
	}

	if dup {
		// The ledger short-circuited to the stored decision; nothing to settle
		h.results.Duplicates++
		return nil
	}

	h.results.Decisions = append(h.results.Decisions, DecisionRow{
		SignalID:      sig.SignalID,
		StrategyID:    sig.StrategyID,
		Timestamp:     sig.Timestamp,
		Approved:      d.Approved,
		Reason:        string(d.Reason),
		FinalQuantity: d.FinalQuantity,
	})

	if d.Approved {
		h.results.Approved++
		h.applyFill(sig, d)
	} else {
		h.results.Rejected++
		h.results.RejectByReason[string(d.Reason)]++
	}
	return nil
}

// applyFill simulates execution of an approved decision at the signal's
// reference price, consuming margin on ENTRY and releasing it on EXIT.
func (h *Harness) applyFill(sig *signal.NormalizedSignal, d *decision.Decision) {
	key := sig.StrategyID + "/" + sig.Instrument
	rate := h.cfg.Limits.MarginRate.Rate(sig.Instrument)

	switch sig.Action {
	case signal.ActionEntry:
		margin := d.FinalQuantity * sig.Price * rate
		h.provider.ApplyMargin(margin, 0)
		h.positions[key] = &openPosition{
			strategyID: sig.StrategyID,
			direction:  sig.Direction,
			quantity:   d.FinalQuantity,
			entryPrice: sig.Price,
			margin:     margin,
		}

	case signal.ActionExit:
		pos, ok := h.positions[key]
		if !ok {
			return // exit without a tracked entry, nothing to settle
		}
		delete(h.positions, key)

		pnl := (sig.Price - pos.entryPrice) * pos.quantity
		if pos.direction == signal.DirectionShort {
			pnl = -pnl
		}
		h.provider.ApplyMargin(-pos.margin, pnl)
		h.dayPnL[pos.strategyID] += pnl
	}
}

// rollDay closes out completed simulation days and refits the constructor on
// the walk-forward schedule.
func (h *Harness) rollDay(ctx context.Context, ts time.Time) {
	for day(ts).After(h.currentDay) {
		h.closeDay()
		h.currentDay = h.currentDay.AddDate(0, 0, 1)
		h.daysProcessed++
		h.dayStartEquity = h.provider.Equity()

		if h.daysProcessed >= h.nextRefitDay {
			h.refit(ctx, ts)
			h.nextRefitDay += h.cfg.TestDays
		}
	}
}

// closeDay samples the equity curve and converts the day's realized pnl into
// per-strategy fractional returns for the constructor's trailing window.
func (h *Harness) closeDay() {
	equity := h.provider.Equity()
	h.results.EquityCurve = append(h.results.EquityCurve, EquityPoint{
		Timestamp: h.currentDay,
		Equity:    equity,
	})

	for strategyID, pnl := range h.dayPnL {
		ret := 0.0
		if h.dayStartEquity > 0 {
			ret = pnl / h.dayStartEquity
		}
		h.returns[strategyID] = append(h.returns[strategyID], ret)
		if len(h.returns[strategyID]) > h.cfg.TrainDays {
			h.returns[strategyID] = h.returns[strategyID][1:]
		}
	}
	h.dayPnL = make(map[string]float64)
}

func (h *Harness) refit(ctx context.Context, ts time.Time) {
	plan, err := h.eng.Refit(ctx)
	if err != nil {
		// SimProvider cannot fail; constructor errors mean invalid weights
		return
	}

	equity := h.provider.Equity()
	foldReturn := 0.0
	if h.foldEquity > 0 {
		foldReturn = (equity - h.foldEquity) / h.foldEquity
	}
	h.results.Folds = append(h.results.Folds, FoldSummary{
		Fold:        len(h.results.Folds) + 1,
		TrainStart:  h.foldStart,
		TestStart:   ts,
		TestEnd:     ts.AddDate(0, 0, h.cfg.TestDays),
		PlanVersion: plan.Version,
		TestReturn:  foldReturn,
	})
	h.foldStart = ts
	h.foldEquity = equity
}

// snapshotReturns hands the constructor a detached copy of the trailing
// return series.
func (h *Harness) snapshotReturns() map[string][]float64 {
	out := make(map[string][]float64, len(h.returns))
	for k, v := range h.returns {
		series := make([]float64, len(v))
		copy(series, v)
		out[k] = series
	}
	return out
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
