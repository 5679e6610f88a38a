package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhle2209/signal-decision-engine/internal/decision"
)

func approvedDecision(signalID string) *decision.Decision {
	return &decision.Decision{
		SignalID:      signalID,
		Approved:      true,
		Reason:        decision.ReasonApproved,
		FinalQuantity: 10,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestRecordIfAbsent_FreshReservation(t *testing.T) {
	l := NewMemoryLedger()

	res, err := l.RecordIfAbsent(context.Background(), "sig-1")
	require.NoError(t, err)

	assert.False(t, res.AlreadyExists())
	require.NotNil(t, res.Reservation)
	assert.Equal(t, "sig-1", res.Reservation.SignalID)
	assert.NotEmpty(t, res.Reservation.Token)
}

func TestRecordIfAbsent_PendingWhileInFlight(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	first, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)
	require.False(t, first.AlreadyExists())

	second, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists())
	assert.True(t, second.Pending)
	assert.Nil(t, second.Existing)
}

func TestRecordIfAbsent_ReturnsCommittedDecision(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	res, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, res.Reservation, approvedDecision("sig-1")))

	dup, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, dup.AlreadyExists())
	assert.False(t, dup.Pending)
	require.NotNil(t, dup.Existing)
	assert.Equal(t, decision.ReasonApproved, dup.Existing.Reason)
	assert.Equal(t, 10.0, dup.Existing.FinalQuantity)
}

// TestRecordIfAbsent_ConcurrentRace checks the atomic check-and-set: of many
// concurrent deliveries of one signal_id, exactly one wins a fresh reservation.
func TestRecordIfAbsent_ConcurrentRace(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	results := make([]ReserveResult, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.RecordIfAbsent(ctx, "sig-race")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, res := range results {
		if !res.AlreadyExists() {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
}

func TestCommit_DuplicateIsInvariantViolation(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	res, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, res.Reservation, approvedDecision("sig-1")))

	err = l.Commit(ctx, res.Reservation, approvedDecision("sig-1"))
	require.Error(t, err)
	assert.True(t, decision.IsInvariantViolation(err))
	assert.ErrorIs(t, err, decision.ErrDuplicateCommit)

	// The stored decision is not overwritten
	d, err := l.Get(ctx, "sig-1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 10.0, d.FinalQuantity)
}

func TestCommit_StaleTokenRejected(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	res, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)

	forged := *res.Reservation
	forged.Token = "not-the-token"

	err = l.Commit(ctx, &forged, approvedDecision("sig-1"))
	require.Error(t, err)
	assert.True(t, decision.IsInvariantViolation(err))
}

func TestRollback_ReleasesReservation(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	res, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)
	require.NoError(t, l.Rollback(ctx, res.Reservation))

	// Redelivery can re-reserve after rollback
	again, err := l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, again.AlreadyExists())
}

func TestGet_UncommittedReturnsNil(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	d, err := l.Get(ctx, "never-seen")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = l.RecordIfAbsent(ctx, "sig-1")
	require.NoError(t, err)

	d, err = l.Get(ctx, "sig-1")
	require.NoError(t, err)
	assert.Nil(t, d)
}
