package decision

import (
	"time"
)

// Reason is the enumerated outcome code attached to every decision
type Reason string

const (
	ReasonApproved            Reason = "APPROVED"
	ReasonMarginLimitExceeded Reason = "MARGIN_LIMIT_EXCEEDED"
	ReasonInsufficientMargin  Reason = "INSUFFICIENT_MARGIN"
	ReasonInvalidPrice        Reason = "INVALID_PRICE"
	ReasonStaleSignal         Reason = "STALE_SIGNAL"
	ReasonConstructorIgnored  Reason = "CONSTRUCTOR_IGNORED"
	ReasonDuplicateSignal     Reason = "DUPLICATE_SIGNAL"
)

// Decision is the engine's ruling on a signal. Exactly one decision is ever
// committed per signal_id; the ledger enforces at-most-one. Immutable once written.
type Decision struct {
	SignalID      string    `json:"signal_id"`
	Approved      bool      `json:"approved"`
	Reason        Reason    `json:"reason"`
	FinalQuantity float64   `json:"final_quantity"` // >= 0, zero iff rejected
	CreatedAt     time.Time `json:"created_at"`

	// MarginUtilizationAfterPct is the projected utilization after the order.
	// Only meaningful when Approved is true.
	MarginUtilizationAfterPct float64 `json:"margin_utilization_after_pct,omitempty"`

	// SizedQuantity records the quantity computed by the risk gate even when a
	// later gate rejected the signal, so staleness rejections keep their
	// would-be size for audit.
	SizedQuantity float64 `json:"sized_quantity,omitempty"`

	// AlphaLostFraction is filled when the decay gate evaluated the signal,
	// for staleness diagnosis.
	AlphaLostFraction float64 `json:"alpha_lost_fraction,omitempty"`
}

// Rejected builds a rejection decision with a zero final quantity.
func Rejected(signalID string, reason Reason, now time.Time) *Decision {
	return &Decision{
		SignalID:  signalID,
		Approved:  false,
		Reason:    reason,
		CreatedAt: now,
	}
}
