package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minhle2209/signal-decision-engine/internal/account"
	"github.com/minhle2209/signal-decision-engine/internal/decay"
	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/engine"
	"github.com/minhle2209/signal-decision-engine/internal/ledger/sqlitestore"
	"github.com/minhle2209/signal-decision-engine/internal/logger"
	"github.com/minhle2209/signal-decision-engine/internal/monitoring"
	"github.com/minhle2209/signal-decision-engine/internal/portfolio"
	"github.com/minhle2209/signal-decision-engine/internal/risk"
	sig "github.com/minhle2209/signal-decision-engine/internal/signal"
	"github.com/minhle2209/signal-decision-engine/pkg/config"
)

const retryDelay = 250 * time.Millisecond

func main() {
	var (
		configFile  = flag.String("config", "", "JSON configuration file")
		envFile     = flag.String("env", "", ".env file with environment overrides")
		signalsPath = flag.String("signals", "-", "JSONL signal feed ('-' for stdin)")
		runName     = flag.String("run", "live", "run name used for the audit log file")
		refitEvery  = flag.Duration("refit-interval", 24*time.Hour, "allocation plan refit interval")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	if err := run(cfg, *signalsPath, *runName, *refitEvery); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(cfg *config.Config, signalsPath, runName string, refitEvery time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditLog, err := logger.NewLogger(runName)
	if err != nil {
		return fmt.Errorf("audit log setup failed: %w", err)
	}
	defer auditLog.Close()

	store, err := sqlitestore.Open(cfg.Ledger.Path, time.Duration(cfg.Ledger.ReservationTTLSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("ledger setup failed: %w", err)
	}
	defer store.Close()

	constructor, err := portfolio.New(cfg.Constructor, cfg.Risk.DefaultPositionSizePct/100)
	if err != nil {
		return err
	}

	provider := buildProvider(cfg)
	sink := buildSink(cfg, auditLog)

	eng := engine.New(
		store,
		provider,
		constructor,
		risk.NewSizer(risk.Limits{
			MaxMarginUtilizationPct: cfg.Risk.MaxMarginUtilizationPct,
			DefaultPositionSizePct:  cfg.Risk.DefaultPositionSizePct,
			MarginRate:              risk.FlatRate(cfg.Risk.MarginRateAssumption),
		}),
		decay.NewGate(cfg.Decay.SlippageRatePerMinute, cfg.Decay.AlphaDecayRejectThreshold),
		sink,
		portfolio.NewPlanHistory(),
		engine.WithAuditLog(auditLog),
	)

	health := monitoring.NewHealthChecker()
	health.SetLedgerReady(true)
	startHTTPServer(cfg.MetricsAddr, health)

	if _, err := eng.Refit(ctx); err != nil {
		// Plan-less operation falls back to the default fraction per signal
		auditLog.Warning("initial allocation refit failed: %v", err)
	}

	src, err := openSource(signalsPath)
	if err != nil {
		return err
	}
	defer src.Close()
	health.SetSourceAttached(true)

	log.Printf("🚀 decision engine started (constructor=%s, ledger=%s)", cfg.Constructor, cfg.Ledger.Path)

	refitTicker := time.NewTicker(refitEvery)
	defer refitTicker.Stop()
	go runRefitLoop(ctx, refitTicker.C, eng, health, auditLog)

	for {
		s, err := src.Next(ctx)
		if errors.Is(err, sig.ErrSourceDrained) {
			log.Println("✅ signal feed drained")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Println("🛑 shutdown requested, draining")
				return nil
			}
			return fmt.Errorf("signal feed failed: %w", err)
		}

		processSignal(ctx, eng, health, auditLog, s)
	}
}

// runRefitLoop drives scheduled plan refits independently of the feed loop,
// which may block in Next for hours when the feed is quiet.
func runRefitLoop(ctx context.Context, tick <-chan time.Time, eng *engine.Engine, health *monitoring.HealthChecker, auditLog *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if _, err := eng.Refit(ctx); err != nil {
				health.RecordError(fmt.Sprintf("refit: %v", err))
				if auditLog != nil {
					auditLog.Warning("scheduled refit failed: %v", err)
				}
			}
		}
	}
}

// processSignal runs one delivery through the engine. Errors never stop the
// loop: the feed is at-least-once, so transient failures resolve via
// redelivery and permanent ones are logged per signal.
func processSignal(ctx context.Context, eng *engine.Engine, health *monitoring.HealthChecker, auditLog *logger.Logger, s *sig.NormalizedSignal) {
	for {
		d, err := eng.Process(ctx, s)
		if err == nil {
			health.RecordDecision()
			if d.Approved {
				log.Printf("✅ %s approved qty=%.6f util=%.2f%%", d.SignalID, d.FinalQuantity, d.MarginUtilizationAfterPct)
			} else {
				log.Printf("⛔ %s rejected (%s)", d.SignalID, d.Reason)
			}
			return
		}

		if errors.Is(err, decision.ErrReservationPending) {
			// Another delivery of the same signal_id is still deciding
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		health.RecordError(err.Error())
		auditLog.LogError("signal processing", err)
		if decision.IsInvariantViolation(err) {
			log.Printf("🚨 invariant violation on %s: %v", s.SignalID, err)
		} else {
			log.Printf("⚠️ %s failed: %v", s.SignalID, err)
		}
		return
	}
}

func buildProvider(cfg *config.Config) account.Provider {
	if cfg.External.AccountURL != "" {
		return account.NewHTTPProvider(cfg.External.AccountURL, time.Duration(cfg.External.ProviderTimeoutSeconds)*time.Second)
	}
	log.Println("⚠️ no account URL configured, using static snapshot")
	return &account.StaticProvider{State: account.State{
		Equity:          cfg.Backtest.InitialEquity,
		MarginAvailable: cfg.Backtest.InitialEquity,
	}}
}

func buildSink(cfg *config.Config, auditLog *logger.Logger) engine.OrderSink {
	if cfg.External.OrderSinkURL != "" {
		return engine.NewHTTPSink(cfg.External.OrderSinkURL, time.Duration(cfg.External.SinkTimeoutSeconds)*time.Second, cfg.External.SinkMaxRetries)
	}
	auditLog.Warning("no order sink URL configured, approved decisions are logged only")
	return engine.NoopSink{}
}

func openSource(path string) (*sig.FileSource, error) {
	if path == "-" {
		return sig.NewReaderSource(os.Stdin), nil
	}
	return sig.NewFileSource(path)
}

func startHTTPServer(addr string, health *monitoring.HealthChecker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/healthz", health)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ metrics server failed: %v", err)
		}
	}()
}
