package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/decay"
	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/ledger"
	"github.com/minhle2209/signal-decision-engine/internal/logger"
	"github.com/minhle2209/signal-decision-engine/internal/monitoring"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/risk"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// signalState tracks a signal's progress through the decision pipeline
type signalState int

const (
	stateReceived signalState = iota
	stateReserved
	stateSized
	stateDecayChecked
	stateDecided
	stateCommitted
	stateDiscarded
)

func (s signalState) String() string {
	switch s {
	case stateReceived:
		return "RECEIVED"
	case stateReserved:
		return "RESERVED"
	case stateSized:
		return "SIZED"
	case stateDecayChecked:
		return "DECAY_CHECKED"
	case stateDecided:
		return "DECIDED"
	case stateCommitted:
		return "COMMITTED"
	case stateDiscarded:
		return "DISCARDED"
	default:
		return "UNKNOWN"
	}
}

// Engine sequences ledger, constructor, risk gate and decay gate per signal
// and emits exactly one committed decision per signal_id.
type Engine struct {
	ledger      ledger.Ledger
	provider    account.Provider
	constructor portfolio.Constructor
	sizer       *risk.Sizer
	decayGate   *decay.Gate
	sink        OrderSink
	history     *portfolio.PlanHistory

	// returnsFn supplies trailing per-strategy returns for the constructor
	// context; nil means no history is available yet
	returnsFn func() map[string][]float64

	auditLog *logger.Logger
	clock    func() time.Time
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithAuditLog attaches a per-run audit file logger.
func WithAuditLog(l *logger.Logger) Option {
	return func(e *Engine) { e.auditLog = l }
}

// WithClock pins the engine clock; the backtest harness uses it to drive
// simulated time through the decay gate.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithReturns supplies the trailing per-strategy return series for the
// constructor context.
func WithReturns(fn func() map[string][]float64) Option {
	return func(e *Engine) { e.returnsFn = fn }
}

// New creates a decision engine.
func New(
	led ledger.Ledger,
	provider account.Provider,
	constructor portfolio.Constructor,
	sizer *risk.Sizer,
	decayGate *decay.Gate,
	sink OrderSink,
	history *portfolio.PlanHistory,
	opts ...Option,
) *Engine {
	e := &Engine{
		ledger:      led,
		provider:    provider,
		constructor: constructor,
		sizer:       sizer,
		decayGate:   decayGate,
		sink:        sink,
		history:     history,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refit recomputes the allocation plan from the current account state and
// appends it to the plan history. Called on a schedule in live mode and on
// every test-window roll by the backtest harness.
func (e *Engine) Refit(ctx context.Context) (*portfolio.AllocationPlan, error) {
	acct, err := e.provider.Snapshot(ctx)
	if err != nil {
		monitoring.RecordInfrastructureFailure("account")
		return nil, decision.NewInfrastructureError("engine", "refit", err)
	}

	plan, err := e.constructor.AllocatePortfolio(e.buildContext(acct))
	if err != nil {
		return nil, fmt.Errorf("allocation failed: %w", err)
	}
	return e.history.Append(plan), nil
}

// Metrics reports the constructor's trailing performance view.
func (e *Engine) Metrics(ctx context.Context) (portfolio.Metrics, error) {
	acct, err := e.provider.Snapshot(ctx)
	if err != nil {
		return portfolio.Metrics{}, decision.NewInfrastructureError("engine", "metrics", err)
	}
	return e.constructor.CalculateMetrics(e.buildContext(acct)), nil
}

// Process decides one signal. Duplicate deliveries short-circuit to the
// previously committed decision; a delivery racing an in-flight decision for
// the same signal_id returns a retryable error so the at-least-once source
// redelivers after the first decision resolves.
//
// Once a reservation is granted the decision always resolves: either a commit
// or an explicit rollback on unrecoverable failure. The context is consulted
// only at the blocking edges (account fetch, sink handoff).
func (e *Engine) Process(ctx context.Context, sig *signal.NormalizedSignal) (*decision.Decision, error) {
	started := e.clock()
	state := stateReceived

	if sig.SignalID == "" {
		return nil, decision.NewValidationError("engine", "process", "signal without signal_id cannot be keyed")
	}

	// RECEIVED -> RESERVED: atomic check-and-reserve
	res, err := e.ledger.RecordIfAbsent(ctx, sig.SignalID)
	if err != nil {
		monitoring.RecordInfrastructureFailure("ledger")
		return nil, err
	}
	if res.AlreadyExists() {
		state = stateDiscarded
		monitoring.RecordDuplicate()
		if res.Pending {
			return nil, decision.WrapError(
				fmt.Errorf("signal %s: %w", sig.SignalID, decision.ErrReservationPending),
				decision.ErrorCategoryInfrastructure, "engine", "process")
		}
		e.logState(sig.SignalID, state)
		return res.Existing, nil
	}
	state = stateReserved

	// The only blocking network call before sizing. Failure rolls the
	// reservation back so redelivery can re-reserve.
	acct, err := e.provider.Snapshot(ctx)
	if err != nil {
		monitoring.RecordInfrastructureFailure("account")
		e.rollback(ctx, res.Reservation)
		return nil, decision.NewInfrastructureError("engine", "process", err)
	}

	d := e.decide(sig, acct, &state)
	state = stateDecided

	// DECIDED -> COMMITTED: persists exactly once; a duplicate commit here is
	// a ledger bug and must halt this path, not overwrite.
	if err := e.ledger.Commit(ctx, res.Reservation, d); err != nil {
		if decision.IsInvariantViolation(err) {
			monitoring.RecordInvariantViolation()
			return nil, err
		}
		monitoring.RecordInfrastructureFailure("ledger")
		e.rollback(ctx, res.Reservation)
		return nil, err
	}
	state = stateCommitted
	e.logState(sig.SignalID, state)

	elapsed := e.clock().Sub(started).Seconds()
	monitoring.RecordDecision(string(d.Reason), elapsed)
	if e.auditLog != nil {
		e.auditLog.LogDecision(d.SignalID, string(d.Reason), d.Approved, d.FinalQuantity, d.MarginUtilizationAfterPct)
	}

	if !d.Approved {
		return d, nil
	}

	monitoring.UpdateMarginUtilization(d.MarginUtilizationAfterPct)

	// The decision is committed either way: redelivery must never produce a
	// second order, so a sink failure is alerted, not retried via the ledger.
	if err := e.sink.Submit(ctx, d, sig); err != nil {
		monitoring.RecordInfrastructureFailure("sink")
		if e.auditLog != nil {
			e.auditLog.LogError("order sink handoff", err)
		}
		return d, err
	}
	monitoring.RecordOrderSubmitted()
	return d, nil
}

// decide runs constructor, risk gate and decay gate. Sizing always runs, even
// when it will reject; the decay gate runs only on an approved sizing, and a
// staleness rejection keeps the sized quantity for audit.
func (e *Engine) decide(sig *signal.NormalizedSignal, acct account.State, state *signalState) *decision.Decision {
	now := e.clock().UTC()

	intent, err := e.constructor.EvaluateSignal(sig, e.buildContext(acct))
	if err != nil || intent.Action == portfolio.IntentIgnore {
		return decision.Rejected(sig.SignalID, decision.ReasonConstructorIgnored, now)
	}

	d := e.sizer.Size(sig, intent, acct)
	*state = stateSized

	if !d.Approved {
		return d
	}

	gate := e.decayGate.Check(sig, now)
	*state = stateDecayChecked
	d.AlphaLostFraction = gate.AlphaLostFraction
	if !gate.Passed {
		d.Approved = false
		d.Reason = decision.ReasonStaleSignal
		d.FinalQuantity = 0
		d.MarginUtilizationAfterPct = 0
		if e.auditLog != nil {
			e.auditLog.LogStaleness(sig.SignalID, gate.DelaySeconds, gate.AlphaLostFraction)
		}
	}
	return d
}

func (e *Engine) buildContext(acct account.State) portfolio.Context {
	ctx := portfolio.Context{
		Account: acct,
		Plan:    e.history.Current(),
		History: e.history,
	}
	if e.returnsFn != nil {
		ctx.Returns = e.returnsFn()
	}
	return ctx
}

func (e *Engine) rollback(ctx context.Context, res *ledger.Reservation) {
	if err := e.ledger.Rollback(ctx, res); err != nil {
		monitoring.RecordInfrastructureFailure("ledger")
		if e.auditLog != nil {
			e.auditLog.LogError("reservation rollback", err)
		}
	}
}

func (e *Engine) logState(signalID string, s signalState) {
	if e.auditLog != nil {
		e.auditLog.Status("signal=%s state=%s", signalID, s)
	}
}
