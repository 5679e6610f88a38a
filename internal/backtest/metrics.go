package backtest

import (
	"math"
	"time"
)

// EquityPoint is one sample of the simulated account value over time.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// FoldSummary reports one walk-forward fold (train window fit, test window run).
type FoldSummary struct {
	Fold        int       `json:"fold"`
	TrainStart  time.Time `json:"train_start"`
	TestStart   time.Time `json:"test_start"`
	TestEnd     time.Time `json:"test_end"`
	PlanVersion int       `json:"plan_version"`
	TestReturn  float64   `json:"test_return"`
}

// DecisionRow is one replayed decision, retained for the report's decision log.
type DecisionRow struct {
	SignalID      string    `json:"signal_id"`
	StrategyID    string    `json:"strategy_id"`
	Timestamp     time.Time `json:"timestamp"`
	Approved      bool      `json:"approved"`
	Reason        string    `json:"reason"`
	FinalQuantity float64   `json:"final_quantity"`
}

// Results aggregates everything a backtest run produces.
type Results struct {
	RunID          string         `json:"run_id"`
	Strategy       string         `json:"strategy"`
	StartedAt      time.Time      `json:"started_at"`
	StartEquity    float64        `json:"start_equity"`
	EndEquity      float64        `json:"end_equity"`
	TotalReturn    float64        `json:"total_return"`
	CAGR           float64        `json:"cagr"`
	MaxDrawdown    float64        `json:"max_drawdown"`
	SharpeRatio    float64        `json:"sharpe_ratio"`
	TotalSignals   int            `json:"total_signals"`
	Approved       int            `json:"approved"`
	Rejected       int            `json:"rejected"`
	Duplicates     int            `json:"duplicates"`
	RejectByReason map[string]int `json:"reject_by_reason"`

	EquityCurve []EquityPoint `json:"equity_curve"`
	Folds       []FoldSummary `json:"folds"`
	Decisions   []DecisionRow `json:"decisions,omitempty"`
}

// CalculateCAGR computes the compound annual growth rate over the curve span.
func (r *Results) CalculateCAGR() float64 {
	if len(r.EquityCurve) < 2 || r.StartEquity <= 0 {
		return 0
	}

	first := r.EquityCurve[0]
	last := r.EquityCurve[len(r.EquityCurve)-1]
	years := last.Timestamp.Sub(first.Timestamp).Hours() / 24 / 365.25
	if years <= 0 {
		return 0
	}

	growth := last.Equity / r.StartEquity
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, 1/years) - 1
}

// CalculateMaxDrawdown computes the largest peak-to-trough equity loss as a fraction.
func (r *Results) CalculateMaxDrawdown() float64 {
	maxDrawdown := 0.0
	peak := 0.0
	for _, p := range r.EquityCurve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			drawdown := (peak - p.Equity) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}
	return maxDrawdown
}

// CalculateSharpeRatio computes a Sharpe-like ratio from point-to-point equity
// returns, assuming a zero risk-free rate.
func (r *Results) CalculateSharpeRatio() float64 {
	var returns []float64
	for i := 1; i < len(r.EquityCurve); i++ {
		prev := r.EquityCurve[i-1].Equity
		if prev > 0 {
			returns = append(returns, (r.EquityCurve[i].Equity-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0
	}

	avgReturn := 0.0
	for _, ret := range returns {
		avgReturn += ret
	}
	avgReturn /= float64(len(returns))

	variance := 0.0
	for _, ret := range returns {
		variance += math.Pow(ret-avgReturn, 2)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)

	if stdDev == 0 || stdDev < 1e-10 {
		return 0
	}
	return avgReturn / stdDev
}

// Finalize fills the derived metrics from the raw curve and counters.
func (r *Results) Finalize() {
	if len(r.EquityCurve) > 0 {
		r.EndEquity = r.EquityCurve[len(r.EquityCurve)-1].Equity
	}
	if r.StartEquity > 0 {
		r.TotalReturn = (r.EndEquity - r.StartEquity) / r.StartEquity
	}
	r.CAGR = r.CalculateCAGR()
	r.MaxDrawdown = r.CalculateMaxDrawdown()
	r.SharpeRatio = r.CalculateSharpeRatio()
}
