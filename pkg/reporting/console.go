package reporting

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/minhle2209/signal-decision-engine/internal/backtest"
)

// ConsoleReporter renders backtest results to stdout
type ConsoleReporter struct{}

// NewConsoleReporter creates a new console reporter
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// OutputResults prints the full backtest summary to the console.
func (r *ConsoleReporter) OutputResults(results *backtest.Results) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📊 BACKTEST RESULTS")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("🆔 Run ID:           %s\n", results.RunID)
	fmt.Printf("🧭 Constructor:      %s\n", results.Strategy)
	fmt.Printf("💰 Initial Equity:   $%.2f\n", results.StartEquity)
	fmt.Printf("💰 Final Equity:     $%.2f\n", results.EndEquity)
	fmt.Printf("📈 Total Return:     %.2f%%\n", results.TotalReturn*100)
	fmt.Printf("📈 CAGR:             %.2f%%\n", results.CAGR*100)
	fmt.Printf("📉 Max Drawdown:     %.2f%%\n", results.MaxDrawdown*100)
	fmt.Printf("📊 Sharpe Ratio:     %.2f\n", results.SharpeRatio)
	fmt.Printf("📨 Total Signals:    %d\n", results.TotalSignals)

	approvalRate := 0.0
	if results.TotalSignals > 0 {
		approvalRate = float64(results.Approved) / float64(results.TotalSignals) * 100
	}
	fmt.Printf("✅ Approved:         %d (%.1f%%)\n", results.Approved, approvalRate)
	fmt.Printf("❌ Rejected:         %d\n", results.Rejected)
	fmt.Printf("🔁 Duplicates:       %d\n", results.Duplicates)

	if len(results.RejectByReason) > 0 {
		r.printRejectionTable(results)
	}
	if len(results.Folds) > 0 {
		r.printFoldTable(results)
	}
}

// printRejectionTable renders the rejection breakdown sorted by count.
func (r *ConsoleReporter) printRejectionTable(results *backtest.Results) {
	reasons := make([]string, 0, len(results.RejectByReason))
	for reason := range results.RejectByReason {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		return results.RejectByReason[reasons[i]] > results.RejectByReason[reasons[j]]
	})

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("❌ Rejections by Reason")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Reason", "Count", "Share"})
	for _, reason := range reasons {
		count := results.RejectByReason[reason]
		share := float64(count) / float64(results.Rejected) * 100
		t.AppendRow(table.Row{reason, count, fmt.Sprintf("%.1f%%", share)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
}

// printFoldTable renders one row per walk-forward fold.
func (r *ConsoleReporter) printFoldTable(results *backtest.Results) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("🔁 Walk-Forward Folds")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Fold", "Train Start", "Test Start", "Test End", "Plan", "Test Return"})
	for _, f := range results.Folds {
		t.AppendRow(table.Row{
			f.Fold,
			f.TrainStart.Format("2006-01-02"),
			f.TestStart.Format("2006-01-02"),
			f.TestEnd.Format("2006-01-02"),
			fmt.Sprintf("v%d", f.PlanVersion),
			fmt.Sprintf("%.2f%%", f.TestReturn*100),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}
