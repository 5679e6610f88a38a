package ledger

import (
	"context"
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/decision"
)

// Reservation is an atomic claim on a signal identity. It is granted at most
// once per signal_id until committed or rolled back, which is what makes the
// engine idempotent under at-least-once delivery.
type Reservation struct {
	SignalID   string
	Token      string
	ReservedAt time.Time
}

// ReserveResult is the outcome of a check-and-reserve. Exactly one of the
// three shapes holds: a fresh Reservation, an Existing committed decision, or
// Pending when another delivery of the same signal_id is still in flight.
type ReserveResult struct {
	Reservation *Reservation
	Existing    *decision.Decision
	Pending     bool
}

// AlreadyExists reports whether the signal_id had been recorded before this call.
func (r ReserveResult) AlreadyExists() bool {
	return r.Reservation == nil
}

// Ledger is the idempotency and audit store keyed by signal identity.
//
// RecordIfAbsent must be a single atomic check-and-set: two concurrent
// deliveries of one signal_id must never both receive a fresh reservation.
// Commit finalizes exactly once; a second commit for a committed signal_id is
// surfaced as decision.ErrDuplicateCommit, never overwritten. Rollback releases
// a reservation after an unrecoverable failure so redelivery can re-reserve.
type Ledger interface {
	RecordIfAbsent(ctx context.Context, signalID string) (ReserveResult, error)
	Commit(ctx context.Context, res *Reservation, d *decision.Decision) error
	Rollback(ctx context.Context, res *Reservation) error
	Get(ctx context.Context, signalID string) (*decision.Decision, error)
}
