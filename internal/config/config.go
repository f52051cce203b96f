package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Risk      RiskConfig      `yaml:"risk"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Metering  MeteringConfig  `yaml:"metering"`
	Hermes    HermesConfig    `yaml:"hermes"`
	Server    ServerConfig    `yaml:"server"`
	State     StateConfig     `yaml:"state"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeedConfig struct {
	MinConfidence   float64       `yaml:"min_confidence"`
	MaxPriceAge     time.Duration `yaml:"max_price_age"`
	HistoryCapacity int           `yaml:"history_capacity"`
	EstimatorWindow int           `yaml:"estimator_window"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
	Publishers      []string      `yaml:"publishers"`
}

type RiskConfig struct {
	LambdaMinPermille int64 `yaml:"lambda_min_permille"`
	LambdaMaxPermille int64 `yaml:"lambda_max_permille"`
	VolLowBps         int64 `yaml:"vol_low_bps"`
	VolHighBps        int64 `yaml:"vol_high_bps"`
	DefaultVolBps     int64 `yaml:"default_vol_bps"`
}

type LedgerConfig struct {
	Instrument              string        `yaml:"instrument"`
	InterestRateBps         int64         `yaml:"interest_rate_bps"`
	MaxSlippageBps          int64         `yaml:"max_slippage_bps"`
	LiquidationThresholdBps int64         `yaml:"liquidation_threshold_bps"`
	LiquidatorBonusBps      int64         `yaml:"liquidator_bonus_bps"`
	PerPrincipalCapUSD      float64       `yaml:"per_principal_cap_usd"`
	GlobalCapUSD            float64       `yaml:"global_cap_usd"`
	Automation              []string      `yaml:"automation"`
	SweepInterval           time.Duration `yaml:"sweep_interval"`
}

type OracleConfig struct {
	Mode      string   `yaml:"mode"` // allowlist or attestation
	Allowlist []string `yaml:"allowlist"`
	Signer    string   `yaml:"signer"`
}

type MeteringConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ServiceID string `yaml:"service_id"`
}

type HermesConfig struct {
	Enabled        bool          `yaml:"enabled"`
	WSURL          string        `yaml:"ws_url"`
	HTTPURL        string        `yaml:"http_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Timeout        time.Duration `yaml:"timeout"`
	Feeds          []HermesFeed  `yaml:"feeds"`
}

type HermesFeed struct {
	Symbol string `yaml:"symbol"`
	ID     string `yaml:"id"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Feed.MinConfidence == 0 {
		cfg.Feed.MinConfidence = 0.95
	}
	if cfg.Feed.MaxPriceAge == 0 {
		cfg.Feed.MaxPriceAge = time.Hour
	}
	if cfg.Feed.HistoryCapacity == 0 {
		cfg.Feed.HistoryCapacity = 168
	}
	if cfg.Feed.EstimatorWindow == 0 {
		cfg.Feed.EstimatorWindow = 24
	}
	if cfg.Feed.SampleInterval == 0 {
		cfg.Feed.SampleInterval = time.Hour
	}
	if cfg.Risk.LambdaMinPermille == 0 {
		cfg.Risk.LambdaMinPermille = 300
	}
	if cfg.Risk.LambdaMaxPermille == 0 {
		cfg.Risk.LambdaMaxPermille = 1800
	}
	if cfg.Risk.VolLowBps == 0 {
		cfg.Risk.VolLowBps = 1000
	}
	if cfg.Risk.VolHighBps == 0 {
		cfg.Risk.VolHighBps = 5000
	}
	if cfg.Risk.DefaultVolBps == 0 {
		cfg.Risk.DefaultVolBps = 2500
	}
	if cfg.Ledger.MaxSlippageBps == 0 {
		cfg.Ledger.MaxSlippageBps = 500
	}
	if cfg.Ledger.LiquidationThresholdBps == 0 {
		cfg.Ledger.LiquidationThresholdBps = 8500
	}
	if cfg.Ledger.LiquidatorBonusBps == 0 {
		cfg.Ledger.LiquidatorBonusBps = 500
	}
	if cfg.Ledger.SweepInterval == 0 {
		cfg.Ledger.SweepInterval = 30 * time.Second
	}
	if cfg.Oracle.Mode == "" {
		cfg.Oracle.Mode = "allowlist"
	}
	if cfg.Metering.ServiceID == "" {
		cfg.Metering.ServiceID = "AI_VOLATILITY_INFERENCE"
	}
	if cfg.Hermes.WSURL == "" {
		cfg.Hermes.WSURL = "wss://hermes.pyth.network/ws"
	}
	if cfg.Hermes.HTTPURL == "" {
		cfg.Hermes.HTTPURL = "https://hermes.pyth.network"
	}
	if cfg.Hermes.ReconnectDelay == 0 {
		cfg.Hermes.ReconnectDelay = 3 * time.Second
	}
	if cfg.Hermes.Timeout == 0 {
		cfg.Hermes.Timeout = 10 * time.Second
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/riskvault.db"
	}
}

func validate(cfg *Config) error {
	if cfg.Ledger.Instrument == "" {
		return errors.New("ledger.instrument is required")
	}
	if cfg.Feed.MinConfidence <= 0 || cfg.Feed.MinConfidence > 1 {
		return errors.New("feed.min_confidence must be in (0, 1]")
	}
	if cfg.Feed.EstimatorWindow < 2 {
		return errors.New("feed.estimator_window must be at least 2")
	}
	if cfg.Feed.EstimatorWindow > cfg.Feed.HistoryCapacity {
		return errors.New("feed.estimator_window exceeds feed.history_capacity")
	}
	if cfg.Risk.LambdaMinPermille <= 0 || cfg.Risk.LambdaMinPermille >= cfg.Risk.LambdaMaxPermille {
		return errors.New("risk.lambda_min_permille must be positive and below risk.lambda_max_permille")
	}
	if cfg.Risk.VolLowBps < 0 || cfg.Risk.VolLowBps >= cfg.Risk.VolHighBps {
		return errors.New("risk.vol_low_bps must be non-negative and below risk.vol_high_bps")
	}
	if cfg.Risk.DefaultVolBps <= 0 {
		return errors.New("risk.default_vol_bps must be positive")
	}
	if cfg.Ledger.InterestRateBps < 0 {
		return errors.New("ledger.interest_rate_bps must not be negative")
	}
	if cfg.Ledger.MaxSlippageBps < 0 || cfg.Ledger.MaxSlippageBps > 10000 {
		return errors.New("ledger.max_slippage_bps must be in [0, 10000]")
	}
	if cfg.Ledger.LiquidationThresholdBps <= 0 || cfg.Ledger.LiquidationThresholdBps > 10000 {
		return errors.New("ledger.liquidation_threshold_bps must be in (0, 10000]")
	}
	if cfg.Ledger.LiquidatorBonusBps < 0 || cfg.Ledger.LiquidatorBonusBps > 10000 {
		return errors.New("ledger.liquidator_bonus_bps must be in [0, 10000]")
	}
	if cfg.Ledger.PerPrincipalCapUSD < 0 || cfg.Ledger.GlobalCapUSD < 0 {
		return errors.New("ledger caps must not be negative")
	}
	for _, addr := range cfg.Ledger.Automation {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("ledger.automation address %q is not a valid address", addr)
		}
	}
	for _, addr := range cfg.Feed.Publishers {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("feed.publishers address %q is not a valid address", addr)
		}
	}
	switch cfg.Oracle.Mode {
	case "allowlist":
		for _, addr := range cfg.Oracle.Allowlist {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("oracle.allowlist address %q is not a valid address", addr)
			}
		}
	case "attestation":
		if !common.IsHexAddress(cfg.Oracle.Signer) {
			return errors.New("oracle.signer must be a valid address in attestation mode")
		}
	default:
		return fmt.Errorf("oracle.mode %q is not supported", cfg.Oracle.Mode)
	}
	if cfg.Hermes.Enabled && len(cfg.Hermes.Feeds) == 0 {
		return errors.New("hermes.feeds is required when hermes is enabled")
	}
	return nil
}

// Addresses parses a list of hex addresses that already passed validation.
func Addresses(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		out = append(out, common.HexToAddress(s))
	}
	return out
}
