package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Default configuration values
const (
	DefaultMaxMarginUtilizationPct   = 40.0
	DefaultPositionSizePct           = 5.0
	DefaultMarginRateAssumption      = 0.5
	DefaultSlippageRatePerMinute     = 0.001
	DefaultAlphaDecayRejectThreshold = 0.30

	DefaultTrainDays = 252
	DefaultTestDays  = 63

	DefaultLedgerPath            = "data/decisions.db"
	DefaultReservationTTLSeconds = 300
	DefaultMetricsAddr           = ":9090"
	DefaultProviderTimeoutSecs   = 5
	DefaultSinkTimeoutSecs       = 5
	DefaultSinkMaxRetries        = 3
)

// RiskConfig holds the account-level risk limits
type RiskConfig struct {
	MaxMarginUtilizationPct float64 `json:"max_margin_utilization_pct"`
	DefaultPositionSizePct  float64 `json:"default_position_size_pct"`
	MarginRateAssumption    float64 `json:"margin_rate_assumption"`
}

// DecayConfig holds the alpha-decay gate parameters
type DecayConfig struct {
	SlippageRatePerMinute     float64 `json:"slippage_rate_per_minute"`
	AlphaDecayRejectThreshold float64 `json:"alpha_decay_reject_threshold"`
}

// LedgerConfig holds the durable decision store settings
type LedgerConfig struct {
	Path                  string `json:"path"`
	ReservationTTLSeconds int    `json:"reservation_ttl_seconds"`
}

// ExternalConfig holds the endpoints of the external collaborators
type ExternalConfig struct {
	AccountURL             string `json:"account_url"`
	OrderSinkURL           string `json:"order_sink_url"`
	ProviderTimeoutSeconds int    `json:"provider_timeout_seconds"`
	SinkTimeoutSeconds     int    `json:"sink_timeout_seconds"`
	SinkMaxRetries         int    `json:"sink_max_retries"`
}

// BacktestConfig holds walk-forward parameters
type BacktestConfig struct {
	InitialEquity          float64 `json:"initial_equity"`
	TrainDays              int     `json:"train_days"`
	TestDays               int     `json:"test_days"`
	DecisionLatencySeconds int     `json:"decision_latency_seconds"`
}

// Config is the full engine configuration
type Config struct {
	Constructor string         `json:"constructor"` // fixed-fraction | cagr-weighted
	Risk        RiskConfig     `json:"risk"`
	Decay       DecayConfig    `json:"decay"`
	Ledger      LedgerConfig   `json:"ledger"`
	External    ExternalConfig `json:"external"`
	Backtest    BacktestConfig `json:"backtest"`
	MetricsAddr string         `json:"metrics_addr"`
}

// NewDefaultConfig returns the reference configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Constructor: "fixed-fraction",
		Risk: RiskConfig{
			MaxMarginUtilizationPct: DefaultMaxMarginUtilizationPct,
			DefaultPositionSizePct:  DefaultPositionSizePct,
			MarginRateAssumption:    DefaultMarginRateAssumption,
		},
		Decay: DecayConfig{
			SlippageRatePerMinute:     DefaultSlippageRatePerMinute,
			AlphaDecayRejectThreshold: DefaultAlphaDecayRejectThreshold,
		},
		Ledger: LedgerConfig{
			Path:                  DefaultLedgerPath,
			ReservationTTLSeconds: DefaultReservationTTLSeconds,
		},
		External: ExternalConfig{
			ProviderTimeoutSeconds: DefaultProviderTimeoutSecs,
			SinkTimeoutSeconds:     DefaultSinkTimeoutSecs,
			SinkMaxRetries:         DefaultSinkMaxRetries,
		},
		Backtest: BacktestConfig{
			InitialEquity: 100000,
			TrainDays:     DefaultTrainDays,
			TestDays:      DefaultTestDays,
		},
		MetricsAddr: DefaultMetricsAddr,
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment overrides (optionally loaded from a .env file first).
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: a local .env is optional
		_ = godotenv.Load()
	}

	cfg := NewDefaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configFile, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override file values without
// editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENGINE_CONSTRUCTOR"); v != "" {
		cfg.Constructor = v
	}
	if v, ok := envFloat("ENGINE_MAX_MARGIN_UTILIZATION_PCT"); ok {
		cfg.Risk.MaxMarginUtilizationPct = v
	}
	if v, ok := envFloat("ENGINE_DEFAULT_POSITION_SIZE_PCT"); ok {
		cfg.Risk.DefaultPositionSizePct = v
	}
	if v, ok := envFloat("ENGINE_MARGIN_RATE_ASSUMPTION"); ok {
		cfg.Risk.MarginRateAssumption = v
	}
	if v, ok := envFloat("ENGINE_SLIPPAGE_RATE_PER_MINUTE"); ok {
		cfg.Decay.SlippageRatePerMinute = v
	}
	if v, ok := envFloat("ENGINE_ALPHA_DECAY_REJECT_THRESHOLD"); ok {
		cfg.Decay.AlphaDecayRejectThreshold = v
	}
	if v := os.Getenv("ENGINE_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("ENGINE_ACCOUNT_URL"); v != "" {
		cfg.External.AccountURL = v
	}
	if v := os.Getenv("ENGINE_ORDER_SINK_URL"); v != "" {
		cfg.External.OrderSinkURL = v
	}
	if v := os.Getenv("ENGINE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
