package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/decay"
	"github.com/minhle2209/signal-decision-engine/internal/engine"
	"github.com/minhle2209/signal-decision-engine/internal/ledger"
	"github.com/minhle2209/signal-decision-engine/internal/monitoring"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/risk"
)

// TestRunRefitLoop_RefitsWithoutFeedActivity verifies scheduled refits fire
// even when no signal is ever delivered, so a quiet feed cannot starve them.
func TestRunRefitLoop_RefitsWithoutFeedActivity(t *testing.T) {
	constructor, err := portfolio.New("fixed-fraction", 0.05)
	require.NoError(t, err)

	history := portfolio.NewPlanHistory()
	eng := engine.New(
		ledger.NewMemoryLedger(),
		&account.StaticProvider{State: account.State{Equity: 100000, MarginAvailable: 100000}},
		constructor,
		risk.NewSizer(risk.DefaultLimits()),
		decay.NewGate(0, 0),
		engine.NoopSink{},
		history,
	)

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		runRefitLoop(ctx, tick, eng, monitoring.NewHealthChecker(), nil)
		close(done)
	}()

	// Each unbuffered send returns only once the loop has taken the tick,
	// so the previous refit has finished by the time the next send lands.
	tick <- time.Now()
	tick <- time.Now()
	cancel()
	<-done

	assert.Equal(t, 2, history.Len())
}

func TestRunRefitLoop_StopsOnContextCancel(t *testing.T) {
	constructor, err := portfolio.New("fixed-fraction", 0.05)
	require.NoError(t, err)

	history := portfolio.NewPlanHistory()
	eng := engine.New(
		ledger.NewMemoryLedger(),
		&account.StaticProvider{State: account.State{Equity: 100000, MarginAvailable: 100000}},
		constructor,
		risk.NewSizer(risk.DefaultLimits()),
		decay.NewGate(0, 0),
		engine.NoopSink{},
		history,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		runRefitLoop(ctx, nil, eng, monitoring.NewHealthChecker(), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refit loop did not stop on cancelled context")
	}
	assert.Equal(t, 0, history.Len())
}
