package signal

import (
	"fmt"
	"time"
)

// Direction represents the side of the intended trade
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Action represents whether the signal opens or closes exposure
type Action string

const (
	ActionEntry Action = "ENTRY"
	ActionExit  Action = "EXIT"
)

// NormalizedSignal is the unit of work entering the engine. It is created once
// by the upstream signal source and immutable afterwards; the engine tolerates
// at-least-once delivery of the same SignalID via the decision ledger.
type NormalizedSignal struct {
	SignalID      string            `json:"signal_id"`
	StrategyID    string            `json:"strategy_id"`
	Timestamp     time.Time         `json:"timestamp"` // generation time, authoritative for decay
	Instrument    string            `json:"instrument"`
	Direction     Direction         `json:"direction"`
	Action        Action            `json:"action"`
	OrderType     string            `json:"order_type"`
	Price         float64           `json:"price"`                 // reference price at signal time
	Quantity      float64           `json:"quantity"`              // upstream-suggested size, advisory
	StopLoss      float64           `json:"stop_loss,omitempty"`   // 0 means unset
	TakeProfit    float64           `json:"take_profit,omitempty"` // 0 means unset
	ExpectedAlpha float64           `json:"expected_alpha"`        // <=0 means alpha-agnostic
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Validate checks the structural fields the engine cannot work without.
// A zero price is legal input here; the risk gate rejects it with INVALID_PRICE
// so the rejection is recorded in the ledger instead of dropped at the door.
func (s *NormalizedSignal) Validate() error {
	if s.SignalID == "" {
		return fmt.Errorf("signal is missing signal_id")
	}
	if s.StrategyID == "" {
		return fmt.Errorf("signal %s is missing strategy_id", s.SignalID)
	}
	if s.Instrument == "" {
		return fmt.Errorf("signal %s is missing instrument", s.SignalID)
	}
	if s.Direction != DirectionLong && s.Direction != DirectionShort {
		return fmt.Errorf("signal %s has invalid direction %q", s.SignalID, s.Direction)
	}
	if s.Action != ActionEntry && s.Action != ActionExit {
		return fmt.Errorf("signal %s has invalid action %q", s.SignalID, s.Action)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("signal %s has no timestamp", s.SignalID)
	}
	if s.Price < 0 {
		return fmt.Errorf("signal %s has negative price %.8f", s.SignalID, s.Price)
	}
	return nil
}

// Age returns the time elapsed since signal generation, clamped at zero so a
// slightly future-stamped signal from a skewed upstream clock does not go negative.
func (s *NormalizedSignal) Age(now time.Time) time.Duration {
	age := now.Sub(s.Timestamp)
	if age < 0 {
		return 0
	}
	return age
}
