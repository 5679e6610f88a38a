package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minhle2209/signal-decision-engine/internal/decision"
)

type entryStatus int

const (
	statusReserved entryStatus = iota
	statusCommitted
)

type entry struct {
	status     entryStatus
	token      string
	reservedAt time.Time
	decision   *decision.Decision
}

// MemoryLedger is an in-memory Ledger used by the backtest harness and tests.
// A single mutex makes the check-and-reserve atomic.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]*entry)}
}

func (l *MemoryLedger) RecordIfAbsent(ctx context.Context, signalID string) (ReserveResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[signalID]; ok {
		if e.status == statusCommitted {
			d := *e.decision
			return ReserveResult{Existing: &d}, nil
		}
		return ReserveResult{Pending: true}, nil
	}

	res := &Reservation{
		SignalID:   signalID,
		Token:      uuid.NewString(),
		ReservedAt: time.Now().UTC(),
	}
	l.entries[signalID] = &entry{
		status:     statusReserved,
		token:      res.Token,
		reservedAt: res.ReservedAt,
	}
	return ReserveResult{Reservation: res}, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, res *Reservation, d *decision.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[res.SignalID]
	if !ok {
		return decision.NewInvariantError("ledger", "commit",
			fmt.Errorf("commit for unreserved signal %s", res.SignalID))
	}
	if e.status == statusCommitted {
		return decision.NewInvariantError("ledger", "commit",
			fmt.Errorf("signal %s: %w", res.SignalID, decision.ErrDuplicateCommit))
	}
	if e.token != res.Token {
		return decision.NewInvariantError("ledger", "commit",
			fmt.Errorf("commit for signal %s with stale reservation token", res.SignalID))
	}

	stored := *d
	e.status = statusCommitted
	e.decision = &stored
	return nil
}

func (l *MemoryLedger) Rollback(ctx context.Context, res *Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[res.SignalID]
	if !ok || e.token != res.Token {
		return nil // reservation already released or superseded
	}
	if e.status == statusCommitted {
		return decision.NewInvariantError("ledger", "rollback",
			fmt.Errorf("rollback for committed signal %s", res.SignalID))
	}
	delete(l.entries, res.SignalID)
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, signalID string) (*decision.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[signalID]; ok && e.status == statusCommitted {
		d := *e.decision
		return &d, nil
	}
	return nil, nil
}

// Committed returns the number of committed decisions, for harness summaries.
func (l *MemoryLedger) Committed() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.entries {
		if e.status == statusCommitted {
			n++
		}
	}
	return n
}
