package portfolio

import (
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// CAGRWeighted allocates equity proportionally to each strategy's trailing
// compound growth, floored at zero so losing strategies fall out of the plan
// instead of going short their own allocation. Strategies with no trailing
// history receive the base fraction until enough returns accumulate.
type CAGRWeighted struct {
	baseFraction float64
}

// NewCAGRWeighted creates the growth-weighted constructor. baseFraction is
// both the cold-start weight and the gross exposure unit: total gross exposure
// scales with the number of positive strategies, which may exceed 1.0 for
// leveraged multi-strategy accounts.
func NewCAGRWeighted(baseFraction float64) *CAGRWeighted {
	if baseFraction <= 0 {
		baseFraction = 0.05
	}
	return &CAGRWeighted{baseFraction: baseFraction}
}

func (c *CAGRWeighted) Name() string { return "cagr-weighted" }

func (c *CAGRWeighted) AllocatePortfolio(ctx Context) (*AllocationPlan, error) {
	growth := make(map[string]float64)
	totalPositive := 0.0
	for strategyID, returns := range ctx.Returns {
		g := annualizedGrowth(returns)
		if g < 0 {
			g = 0
		}
		growth[strategyID] = g
		totalPositive += g
	}

	weights := make(map[string]float64, len(growth))
	budget := c.baseFraction * float64(len(growth))
	for strategyID, g := range growth {
		switch {
		case len(ctx.Returns[strategyID]) == 0:
			weights[strategyID] = c.baseFraction // cold start
		case totalPositive == 0:
			weights[strategyID] = 0
		default:
			weights[strategyID] = budget * g / totalPositive
		}
	}

	plan := &AllocationPlan{CreatedAt: nowUTC(), Weights: weights}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (c *CAGRWeighted) EvaluateSignal(sig *signal.NormalizedSignal, ctx Context) (RawIntent, error) {
	if err := sig.Validate(); err != nil {
		return RawIntent{Action: IntentIgnore}, nil
	}

	fraction := ctx.Plan.Weight(sig.StrategyID)
	if fraction == 0 {
		if ctx.Plan != nil {
			if _, known := ctx.Plan.Weights[sig.StrategyID]; known {
				// Strategy was allocated away; ignore its signals until refit
				return RawIntent{Action: IntentIgnore}, nil
			}
		}
		fraction = c.baseFraction // unseen strategy, cold start
	}

	return RawIntent{
		Action:                IntentApproveCandidate,
		TargetCapitalFraction: fraction,
	}, nil
}

func (c *CAGRWeighted) CalculateMetrics(ctx Context) Metrics {
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
