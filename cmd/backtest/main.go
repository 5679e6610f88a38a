package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/backtest"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/risk"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
	"github.com/minhle2209/signal-decision-engine/pkg/config"
	"github.com/minhle2209/signal-decision-engine/pkg/reporting"
)

func main() {
	var (
		dataFile    = flag.String("data", "", "JSONL signal feed to replay (required)")
		configFile  = flag.String("config", "", "JSON configuration file")
		envFile     = flag.String("env", "", ".env file with environment overrides")
		strategy    = flag.String("strategy", "", "override the configured portfolio constructor")
		trainDays   = flag.Int("train-days", 0, "override the fit window in days")
		testDays    = flag.Int("test-days", 0, "override the roll-forward window in days")
		latencySecs = flag.Int("latency", 0, "override the simulated decision latency in seconds")
		outputDir   = flag.String("output", "results", "directory for CSV and Excel reports")
		noExcel     = flag.Bool("no-excel", false, "skip the Excel workbook")
	)
	flag.Parse()

	if *dataFile == "" {
		log.Fatal("❌ -data is required")
	}

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *strategy != "" {
		cfg.Constructor = *strategy
	}
	if *trainDays > 0 {
		cfg.Backtest.TrainDays = *trainDays
	}
	if *testDays > 0 {
		cfg.Backtest.TestDays = *testDays
	}
	if *latencySecs > 0 {
		cfg.Backtest.DecisionLatencySeconds = *latencySecs
	}

	if err := run(cfg, *dataFile, *outputDir, !*noExcel); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(cfg *config.Config, dataFile, outputDir string, excel bool) error {
	constructor, err := portfolio.New(cfg.Constructor, cfg.Risk.DefaultPositionSizePct/100)
	if err != nil {
		return err
	}

	src, err := signal.NewFileSource(dataFile)
	if err != nil {
		return err
	}
	defer src.Close()

	harness := backtest.NewHarness(backtest.Config{
		InitialEquity:   cfg.Backtest.InitialEquity,
		TrainDays:       cfg.Backtest.TrainDays,
		TestDays:        cfg.Backtest.TestDays,
		DecisionLatency: time.Duration(cfg.Backtest.DecisionLatencySeconds) * time.Second,
		Limits: risk.Limits{
			MaxMarginUtilizationPct: cfg.Risk.MaxMarginUtilizationPct,
			DefaultPositionSizePct:  cfg.Risk.DefaultPositionSizePct,
			MarginRate:              risk.FlatRate(cfg.Risk.MarginRateAssumption),
		},
		SlippageRatePerMinute: cfg.Decay.SlippageRatePerMinute,
		RejectThreshold:       cfg.Decay.AlphaDecayRejectThreshold,
	}, constructor)

	log.Printf("🔁 replaying %s through %s (train=%dd test=%dd)",
		dataFile, cfg.Constructor, cfg.Backtest.TrainDays, cfg.Backtest.TestDays)

	results, err := harness.Run(context.Background(), src)
	if err != nil {
		return err
	}

	reporting.NewConsoleReporter().OutputResults(results)

	csvPath := filepath.Join(outputDir, fmt.Sprintf("equity_%s.csv", results.RunID))
	if err := reporting.NewCSVReporter().WriteEquityCurve(results, csvPath); err != nil {
		return fmt.Errorf("csv report failed: %w", err)
	}
	log.Printf("💾 equity curve written to %s", csvPath)

	if excel {
		xlsxPath := filepath.Join(outputDir, fmt.Sprintf("backtest_%s.xlsx", results.RunID))
		if err := reporting.NewExcelReporter().WriteReport(results, xlsxPath); err != nil {
			return fmt.Errorf("excel report failed: %w", err)
		}
		log.Printf("💾 workbook written to %s", xlsxPath)
	}
	return nil
}
