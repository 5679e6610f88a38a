package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/backtest"
)

// CSVReporter writes the equity curve as a flat CSV file
type CSVReporter struct{}

// NewCSVReporter creates a new CSV reporter
func NewCSVReporter() *CSVReporter {
	return &CSVReporter{}
}

// WriteEquityCurve writes one row per sampled day.
func (r *CSVReporter) WriteEquityCurve(results *backtest.Results, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "equity", "drawdown_pct"}); err != nil {
		return err
	}

	peak := 0.0
	for _, p := range results.EquityCurve {
		if p.Equity > peak {
			peak = p.Equity
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - p.Equity) / peak * 100
		}
		row := []string{
			p.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(p.Equity, 'f', 2, 64),
			strconv.FormatFloat(drawdown, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
