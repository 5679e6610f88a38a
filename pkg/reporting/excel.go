package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/minhle2209/signal-decision-engine/internal/backtest"
)

// ExcelReporter writes a multi-sheet workbook for a backtest run
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// excelStyles holds the style IDs shared across sheets
type excelStyles struct {
	Header   int
	Currency int
	Percent  int
}

// WriteReport writes summary, equity curve and fold sheets to path.
func (r *ExcelReporter) WriteReport(results *backtest.Results, path string) error {
	// Ensure directory exists before creating file
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const equitySheet = "Equity Curve"
	const foldsSheet = "Walk-Forward Folds"
	const decisionsSheet = "Decisions"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(equitySheet)
	fx.NewSheet(foldsSheet)
	fx.NewSheet(decisionsSheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, summarySheet, results, styles); err != nil {
		return err
	}
	if err := r.writeEquitySheet(fx, equitySheet, results, styles); err != nil {
		return err
	}
	if err := r.writeFoldsSheet(fx, foldsSheet, results, styles); err != nil {
		return err
	}
	if err := r.writeDecisionsSheet(fx, decisionsSheet, results, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.Header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.Currency, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7, // Currency format with $ symbol
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.Percent, err = fx.NewStyle(&excelize.Style{
		NumFmt: 10, // Percentage with two decimals
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, results *backtest.Results, styles excelStyles) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Run ID", results.RunID},
		{"Constructor", results.Strategy},
		{"Started At", results.StartedAt.Format("2006-01-02 15:04:05")},
		{"Initial Equity", results.StartEquity},
		{"Final Equity", results.EndEquity},
		{"Total Return", results.TotalReturn},
		{"CAGR", results.CAGR},
		{"Max Drawdown", results.MaxDrawdown},
		{"Sharpe Ratio", results.SharpeRatio},
		{"Total Signals", results.TotalSignals},
		{"Approved", results.Approved},
		{"Rejected", results.Rejected},
		{"Duplicates", results.Duplicates},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(sheet, "A1", "B1", styles.Header); err != nil {
		return err
	}

	// Rejection breakdown below the summary block
	start := len(rows) + 2
	cell, err := excelize.CoordinatesToCellName(1, start)
	if err != nil {
		return err
	}
	header := []interface{}{"Rejection Reason", "Count"}
	if err := fx.SetSheetRow(sheet, cell, &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, fmt.Sprintf("A%d", start), fmt.Sprintf("B%d", start), styles.Header); err != nil {
		return err
	}
	i := start + 1
	for reason, count := range results.RejectByReason {
		row := []interface{}{reason, count}
		cell, err := excelize.CoordinatesToCellName(1, i)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		i++
	}

	return fx.SetColWidth(sheet, "A", "A", 24)
}

func (r *ExcelReporter) writeEquitySheet(fx *excelize.File, sheet string, results *backtest.Results, styles excelStyles) error {
	header := []interface{}{"Date", "Equity"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", "B1", styles.Header); err != nil {
		return err
	}

	for i, p := range results.EquityCurve {
		row := []interface{}{p.Timestamp.Format("2006-01-02"), p.Equity}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if len(results.EquityCurve) > 0 {
		last := fmt.Sprintf("B%d", len(results.EquityCurve)+1)
		if err := fx.SetCellStyle(sheet, "B2", last, styles.Currency); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "A", "B", 14)
}

func (r *ExcelReporter) writeFoldsSheet(fx *excelize.File, sheet string, results *backtest.Results, styles excelStyles) error {
	header := []interface{}{"Fold", "Train Start", "Test Start", "Test End", "Plan Version", "Test Return"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", "F1", styles.Header); err != nil {
		return err
	}

	for i, f := range results.Folds {
		row := []interface{}{
			f.Fold,
			f.TrainStart.Format("2006-01-02"),
			f.TestStart.Format("2006-01-02"),
			f.TestEnd.Format("2006-01-02"),
			f.PlanVersion,
			f.TestReturn,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if len(results.Folds) > 0 {
		last := fmt.Sprintf("F%d", len(results.Folds)+1)
		if err := fx.SetCellStyle(sheet, "F2", last, styles.Percent); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "B", "D", 14)
}

func (r *ExcelReporter) writeDecisionsSheet(fx *excelize.File, sheet string, results *backtest.Results, styles excelStyles) error {
	header := []interface{}{"Signal ID", "Strategy", "Timestamp", "Approved", "Reason", "Final Quantity"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", "F1", styles.Header); err != nil {
		return err
	}

	for i, row := range results.Decisions {
		values := []interface{}{
			row.SignalID,
			row.StrategyID,
			row.Timestamp.Format("2006-01-02 15:04:05"),
			row.Approved,
			row.Reason,
			row.FinalQuantity,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "A", "C", 20)
}
