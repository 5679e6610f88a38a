package account

import (
	"context"
	"sync"
	"time"
)

// State is a read-only, time-stamped snapshot of the trading account. The
// account is owned and mutated exclusively by the external provider; the
// engine takes one snapshot per decision and never holds a lock across sizing.
type State struct {
	Equity          float64   `json:"equity"`
	MarginUsed      float64   `json:"margin_used"`
	MarginAvailable float64   `json:"margin_available"`
	Timestamp       time.Time `json:"timestamp"`
}

// MarginUtilizationPct returns margin used over equity as a percentage.
// Equity at or below zero means the account is maximally constrained, so
// utilization is reported as 100 instead of dividing by zero.
func (s State) MarginUtilizationPct() float64 {
	if s.Equity <= 0 {
		return 100
	}
	return s.MarginUsed / s.Equity * 100
}

// Provider reports the current account state
type Provider interface {
	Snapshot(ctx context.Context) (State, error)
}

// StaticProvider returns a fixed snapshot; used in tests
type StaticProvider struct {
	State State
}

func (p *StaticProvider) Snapshot(ctx context.Context) (State, error) {
	s := p.State
	s.Timestamp = time.Now().UTC()
	return s, nil
}

// SimProvider is a mutable in-memory account used by the backtest harness.
// The harness applies simulated fills and margin releases between snapshots.
type SimProvider struct {
	mu    sync.Mutex
	state State
	clock func() time.Time
}

// NewSimProvider creates a simulated account with the given starting equity.
func NewSimProvider(equity float64, clock func() time.Time) *SimProvider {
	if clock == nil {
		clock = time.Now
	}
	return &SimProvider{
		state: State{Equity: equity, MarginAvailable: equity},
		clock: clock,
	}
}

func (p *SimProvider) Snapshot(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state
	s.Timestamp = p.clock().UTC()
	return s, nil
}

// ApplyMargin consumes (positive) or releases (negative) margin and adjusts
// equity by realized pnl.
func (p *SimProvider) ApplyMargin(margin, pnl float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.MarginUsed += margin
	if p.state.MarginUsed < 0 {
		p.state.MarginUsed = 0
	}
	p.state.Equity += pnl
	p.state.MarginAvailable = p.state.Equity - p.state.MarginUsed
}

// Equity returns the current simulated equity.
func (p *SimProvider) Equity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Equity
}
