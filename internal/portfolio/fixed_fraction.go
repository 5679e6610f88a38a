package portfolio

import (
	"math"

	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// FixedFraction is the reference constructor: every known strategy receives a
// flat configured fraction of equity, and every structurally valid ENTRY
// signal is forwarded as a candidate sized at that fraction.
type FixedFraction struct {
	fraction float64
}

// NewFixedFraction creates the reference constructor with the given per-signal
// equity fraction (e.g. 0.05 for 5%).
func NewFixedFraction(fraction float64) *FixedFraction {
	if fraction <= 0 {
		fraction = 0.05
	}
	return &FixedFraction{fraction: fraction}
}

func (f *FixedFraction) Name() string { return "fixed-fraction" }

func (f *FixedFraction) AllocatePortfolio(ctx Context) (*AllocationPlan, error) {
	weights := make(map[string]float64)
	for strategyID := range ctx.Returns {
		weights[strategyID] = f.fraction
	}
	// Carry forward strategies known only from the active plan
	if ctx.Plan != nil {
		for strategyID := range ctx.Plan.Weights {
			if _, ok := weights[strategyID]; !ok {
				weights[strategyID] = f.fraction
			}
		}
	}

	plan := &AllocationPlan{CreatedAt: nowUTC(), Weights: weights}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (f *FixedFraction) EvaluateSignal(sig *signal.NormalizedSignal, ctx Context) (RawIntent, error) {
	if err := sig.Validate(); err != nil {
		return RawIntent{Action: IntentIgnore}, nil
	}

	fraction := f.fraction
	if ctx.Plan != nil {
		if w := ctx.Plan.Weight(sig.StrategyID); w > 0 {
			fraction = w
		}
	}

	return RawIntent{
		Action:                IntentApproveCandidate,
		TargetCapitalFraction: fraction,
	}, nil
}

func (f *FixedFraction) CalculateMetrics(ctx Context) Metrics {
	per := make(map[string]float64)
	sum := 0.0
	for strategyID, returns := range ctx.Returns {
		g := annualizedGrowth(returns)
		per[strategyID] = g
		sum += g
	}

	cagr := 0.0
	if len(per) > 0 {
		cagr = sum / float64(len(per))
	}

	return Metrics{
		CAGR:        cagr,
		GrossWeight: ctx.Plan.GrossExposure(),
		PerStrategy: per,
	}
}

// annualizedGrowth converts a daily return series into a CAGR-style figure,
// assuming 252 trading days per year.
func annualizedGrowth(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	if growth <= 0 {
		return -1
	}
	years := float64(len(returns)) / 252.0
	if years <= 0 {
		return 0
	}
	return math.Pow(growth, 1/years) - 1
}
