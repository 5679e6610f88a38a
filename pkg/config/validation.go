package config

import "fmt"

// Validate checks the configuration for values the engine cannot operate with.
func (c *Config) Validate() error {
	switch c.Constructor {
	case "fixed-fraction", "cagr-weighted":
	default:
		return fmt.Errorf("unknown constructor %q (want fixed-fraction or cagr-weighted)", c.Constructor)
	}

	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.Decay.Validate(); err != nil {
		return fmt.Errorf("decay: %w", err)
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.External.Validate(); err != nil {
		return fmt.Errorf("external: %w", err)
	}
	if err := c.Backtest.Validate(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	return nil
}

// Validate checks risk limits.
func (r *RiskConfig) Validate() error {
	if r.MaxMarginUtilizationPct <= 0 || r.MaxMarginUtilizationPct > 100 {
		return fmt.Errorf("max_margin_utilization_pct must be in (0, 100], got %.2f", r.MaxMarginUtilizationPct)
	}
	if r.DefaultPositionSizePct <= 0 || r.DefaultPositionSizePct > 100 {
		return fmt.Errorf("default_position_size_pct must be in (0, 100], got %.2f", r.DefaultPositionSizePct)
	}
	if r.MarginRateAssumption <= 0 || r.MarginRateAssumption > 1 {
		return fmt.Errorf("margin_rate_assumption must be in (0, 1], got %.4f", r.MarginRateAssumption)
	}
	return nil
}

// Validate checks decay gate parameters.
func (d *DecayConfig) Validate() error {
	if d.SlippageRatePerMinute < 0 {
		return fmt.Errorf("slippage_rate_per_minute cannot be negative, got %.6f", d.SlippageRatePerMinute)
	}
	if d.AlphaDecayRejectThreshold <= 0 || d.AlphaDecayRejectThreshold > 1 {
		return fmt.Errorf("alpha_decay_reject_threshold must be in (0, 1], got %.4f", d.AlphaDecayRejectThreshold)
	}
	return nil
}

// Validate checks the ledger settings.
func (l *LedgerConfig) Validate() error {
	if l.Path == "" {
		return fmt.Errorf("path is required")
	}
	if l.ReservationTTLSeconds <= 0 {
		return fmt.Errorf("reservation_ttl_seconds must be positive, got %d", l.ReservationTTLSeconds)
	}
	return nil
}

// Validate checks the external collaborator settings. URLs are optional:
// without an account URL the engine runs against a static snapshot, without a
// sink URL decisions are logged but never handed off.
func (e *ExternalConfig) Validate() error {
	if e.ProviderTimeoutSeconds <= 0 {
		return fmt.Errorf("provider_timeout_seconds must be positive, got %d", e.ProviderTimeoutSeconds)
	}
	if e.SinkTimeoutSeconds <= 0 {
		return fmt.Errorf("sink_timeout_seconds must be positive, got %d", e.SinkTimeoutSeconds)
	}
	if e.SinkMaxRetries < 1 {
		return fmt.Errorf("sink_max_retries must be at least 1, got %d", e.SinkMaxRetries)
	}
	return nil
}

// Validate checks the walk-forward parameters.
func (b *BacktestConfig) Validate() error {
	if b.InitialEquity <= 0 {
		return fmt.Errorf("initial_equity must be positive, got %.2f", b.InitialEquity)
	}
	if b.TrainDays <= 0 {
		return fmt.Errorf("train_days must be positive, got %d", b.TrainDays)
	}
	if b.TestDays <= 0 {
		return fmt.Errorf("test_days must be positive, got %d", b.TestDays)
	}
	if b.DecisionLatencySeconds < 0 {
		return fmt.Errorf("decision_latency_seconds cannot be negative, got %d", b.DecisionLatencySeconds)
	}
	return nil
}
