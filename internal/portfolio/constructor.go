package portfolio

import (
	"fmt"
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// IntentAction represents the constructor's verdict on a single signal
type IntentAction int

const (
	IntentIgnore IntentAction = iota
	IntentApproveCandidate
)

func (a IntentAction) String() string {
	switch a {
	case IntentIgnore:
		return "IGNORE"
	case IntentApproveCandidate:
		return "APPROVE_CANDIDATE"
	default:
		return "UNKNOWN"
	}
}

// RawIntent is the constructor's raw sizing intent before the risk gate
// bounds it by capital and margin.
type RawIntent struct {
	Action IntentAction

	// TargetCapitalFraction is the fraction of equity the constructor wants
	// committed to this signal. Zero means "use the configured default".
	TargetCapitalFraction float64
}

// Context bundles everything a constructor may evaluate against: the current
// account snapshot, the active allocation plan, the append-only plan history
// and trailing per-strategy returns. Evaluation is a pure function of
// (signal, context); no live side effects may leak into it, which is what lets
// the backtest harness call the same implementation verbatim.
type Context struct {
	Account account.State
	Plan    *AllocationPlan
	History *PlanHistory

	// Returns holds trailing fractional returns per strategy, most recent last.
	Returns map[string][]float64
}

// Metrics summarizes a constructor's view of trailing performance.
type Metrics struct {
	CAGR        float64            `json:"cagr"`
	GrossWeight float64            `json:"gross_weight"`
	PerStrategy map[string]float64 `json:"per_strategy,omitempty"`
}

// Constructor is the pluggable strategy capability. The same implementation
// must be invocable from the live engine and from the backtest harness.
type Constructor interface {
	// Name returns the configured identifier of this variant
	Name() string

	// AllocatePortfolio computes a fresh allocation plan from context. The
	// returned plan replaces the active one wholesale; callers append the
	// prior plan to history rather than patching it.
	AllocatePortfolio(ctx Context) (*AllocationPlan, error)

	// EvaluateSignal returns the raw intent for one signal
	EvaluateSignal(sig *signal.NormalizedSignal, ctx Context) (RawIntent, error)

	// CalculateMetrics reports trailing performance over context
	CalculateMetrics(ctx Context) Metrics
}

// New creates a constructor variant by configured name.
func New(name string, defaultFraction float64) (Constructor, error) {
	switch name {
	case "", "fixed-fraction":
		return NewFixedFraction(defaultFraction), nil
	case "cagr-weighted":
		return NewCAGRWeighted(defaultFraction), nil
	default:
		return nil, fmt.Errorf("unknown portfolio constructor: %q", name)
	}
}

// nowUTC is indirection for plan timestamps so tests can pin time.
var nowUTC = func() time.Time { return time.Now().UTC() }
