package portfolio

import (
	"fmt"
	"sync"
	"time"
)

// AllocationPlan maps strategy IDs to their allocation as a fraction of total
// equity. Weights are non-negative and the sum is unconstrained above zero:
// multi-strategy leverage means gross exposure may exceed 1.0. A plan is
// replaced wholesale on each reallocation and never mutated afterwards.
type AllocationPlan struct {
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	Weights   map[string]float64 `json:"weights"`
}

// Validate rejects negative weights.
func (p *AllocationPlan) Validate() error {
	for strategyID, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("allocation for strategy %s is negative: %.6f", strategyID, w)
		}
	}
	return nil
}

// Weight returns the allocation fraction for a strategy, zero when absent.
func (p *AllocationPlan) Weight(strategyID string) float64 {
	if p == nil {
		return 0
	}
	return p.Weights[strategyID]
}

// GrossExposure returns the sum of all weights, the caller-interpretable
// total gross exposure.
func (p *AllocationPlan) GrossExposure() float64 {
	if p == nil {
		return 0
	}
	total := 0.0
	for _, w := range p.Weights {
		total += w
	}
	return total
}

// clone returns a deep copy so history entries stay immutable.
func (p *AllocationPlan) clone() *AllocationPlan {
	weights := make(map[string]float64, len(p.Weights))
	for k, v := range p.Weights {
		weights[k] = v
	}
	return &AllocationPlan{Version: p.Version, CreatedAt: p.CreatedAt, Weights: weights}
}

// PlanHistory is the append-only log of allocation plans, retained for audit.
// Replacing a global mutable "current allocation" with an explicit versioned
// record is what keeps the live and backtest call sites identical.
type PlanHistory struct {
	mu      sync.RWMutex
	plans   []*AllocationPlan
	version int
}

// NewPlanHistory creates an empty history.
func NewPlanHistory() *PlanHistory {
	return &PlanHistory{}
}

// Append stamps the plan with the next version and records it. The stored
// copy is detached from the caller's map.
func (h *PlanHistory) Append(plan *AllocationPlan) *AllocationPlan {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.version++
	stored := plan.clone()
	stored.Version = h.version
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = nowUTC()
	}
	h.plans = append(h.plans, stored)
	return stored.clone()
}

// Current returns a copy of the latest plan, or nil when none exists.
func (h *PlanHistory) Current() *AllocationPlan {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.plans) == 0 {
		return nil
	}
	return h.plans[len(h.plans)-1].clone()
}

// Len returns the number of recorded plans.
func (h *PlanHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.plans)
}

// At returns a copy of the plan with the given version, or nil.
func (h *PlanHistory) At(version int) *AllocationPlan {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, p := range h.plans {
		if p.Version == version {
			return p.clone()
		}
	}
	return nil
}
