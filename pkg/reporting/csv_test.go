package reporting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhle2209/signal-decision-engine/internal/backtest"
)

func TestWriteEquityCurve(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	results := &backtest.Results{
		EquityCurve: []backtest.EquityPoint{
			{Timestamp: start, Equity: 100000},
			{Timestamp: start.AddDate(0, 0, 1), Equity: 101000},
			{Timestamp: start.AddDate(0, 0, 2), Equity: 99990},
		},
	}

	path := filepath.Join(t.TempDir(), "reports", "equity.csv")
	require.NoError(t, NewCSVReporter().WriteEquityCurve(results, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "timestamp,equity,drawdown_pct", lines[0])
	assert.Contains(t, lines[1], "100000.00")
	// Third day draws down from the 101000 peak
	assert.Contains(t, lines[3], "99990.00")
	assert.NotContains(t, lines[3], ",0.0000")
}
