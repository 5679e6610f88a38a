package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestSignal() *NormalizedSignal {
	return &NormalizedSignal{
		SignalID:   "sig-1",
		StrategyID: "trend",
		Timestamp:  time.Now().UTC(),
		Instrument: "BTCUSDT",
		Direction:  DirectionLong,
		Action:     ActionEntry,
		Price:      450,
	}
}

func TestValidate_AcceptsWellFormedSignal(t *testing.T) {
	require.NoError(t, validTestSignal().Validate())
}

func TestValidate_RejectsMissingFields(t *testing.T) {
	cases := map[string]func(*NormalizedSignal){
		"missing signal_id":   func(s *NormalizedSignal) { s.SignalID = "" },
		"missing strategy_id": func(s *NormalizedSignal) { s.StrategyID = "" },
		"missing instrument":  func(s *NormalizedSignal) { s.Instrument = "" },
		"bad direction":       func(s *NormalizedSignal) { s.Direction = "SIDEWAYS" },
		"bad action":          func(s *NormalizedSignal) { s.Action = "HOLD" },
		"zero timestamp":      func(s *NormalizedSignal) { s.Timestamp = time.Time{} },
		"negative price":      func(s *NormalizedSignal) { s.Price = -1 },
	}

	for name, mutate := range cases {
		s := validTestSignal()
		mutate(s)
		assert.Error(t, s.Validate(), name)
	}
}

// TestValidate_ZeroPriceIsStructurallyValid: a zero price passes structural
// validation so the risk gate can record an INVALID_PRICE rejection in the
// ledger instead of dropping the signal at the door.
func TestValidate_ZeroPriceIsStructurallyValid(t *testing.T) {
	s := validTestSignal()
	s.Price = 0
	assert.NoError(t, s.Validate())
}

func TestAge_ClampedAtZero(t *testing.T) {
	now := time.Now().UTC()

	s := validTestSignal()
	s.Timestamp = now.Add(-90 * time.Second)
	assert.Equal(t, 90*time.Second, s.Age(now))

	s.Timestamp = now.Add(5 * time.Minute) // skewed upstream clock
	assert.Equal(t, time.Duration(0), s.Age(now))
}
