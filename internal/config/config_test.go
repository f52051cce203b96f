package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "ledger:\n  instrument: ETH/USD\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Feed.MinConfidence != 0.95 {
		t.Fatalf("expected default min confidence 0.95, got %f", cfg.Feed.MinConfidence)
	}
	if cfg.Feed.MaxPriceAge != time.Hour {
		t.Fatalf("expected default max price age 1h, got %s", cfg.Feed.MaxPriceAge)
	}
	if cfg.Feed.HistoryCapacity != 168 || cfg.Feed.EstimatorWindow != 24 {
		t.Fatalf("unexpected history defaults: %d/%d", cfg.Feed.HistoryCapacity, cfg.Feed.EstimatorWindow)
	}
	if cfg.Risk.LambdaMinPermille != 300 || cfg.Risk.LambdaMaxPermille != 1800 {
		t.Fatalf("unexpected lambda defaults: %d/%d", cfg.Risk.LambdaMinPermille, cfg.Risk.LambdaMaxPermille)
	}
	if cfg.Risk.VolLowBps != 1000 || cfg.Risk.VolHighBps != 5000 {
		t.Fatalf("unexpected vol breakpoints: %d/%d", cfg.Risk.VolLowBps, cfg.Risk.VolHighBps)
	}
	if cfg.Risk.DefaultVolBps != 2500 {
		t.Fatalf("expected default vol 2500bps, got %d", cfg.Risk.DefaultVolBps)
	}
	if cfg.Ledger.LiquidationThresholdBps != 8500 {
		t.Fatalf("expected liquidation threshold 8500bps, got %d", cfg.Ledger.LiquidationThresholdBps)
	}
	if cfg.Ledger.LiquidatorBonusBps != 500 {
		t.Fatalf("expected liquidator bonus 500bps, got %d", cfg.Ledger.LiquidatorBonusBps)
	}
	if cfg.Oracle.Mode != "allowlist" {
		t.Fatalf("expected default oracle mode allowlist, got %s", cfg.Oracle.Mode)
	}
}

func TestLoadRequiresInstrument(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing instrument")
	}
}

func TestLoadRejectsInvertedLambdaBounds(t *testing.T) {
	path := writeConfig(t, `
ledger:
  instrument: ETH/USD
risk:
  lambda_min_permille: 1800
  lambda_max_permille: 300
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for inverted lambda bounds")
	}
}

func TestLoadRejectsInvertedVolBreakpoints(t *testing.T) {
	path := writeConfig(t, `
ledger:
  instrument: ETH/USD
risk:
  vol_low_bps: 5000
  vol_high_bps: 1000
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for inverted vol breakpoints")
	}
}

func TestLoadRejectsBadAutomationAddress(t *testing.T) {
	path := writeConfig(t, `
ledger:
  instrument: ETH/USD
  automation: ["not-an-address"]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid automation address")
	}
}

func TestLoadRejectsWindowBeyondCapacity(t *testing.T) {
	path := writeConfig(t, `
ledger:
  instrument: ETH/USD
feed:
  history_capacity: 10
  estimator_window: 24
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for window beyond capacity")
	}
}

func TestLoadAttestationModeRequiresSigner(t *testing.T) {
	path := writeConfig(t, `
ledger:
  instrument: ETH/USD
oracle:
  mode: attestation
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for attestation mode without signer")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
ledger:
  instrument: ETH/USD
  interest_rate_bps: 250
  per_principal_cap_usd: 100000
  global_cap_usd: 5000000
  automation: ["0x1111111111111111111111111111111111111111"]
feed:
  publishers: ["0x2222222222222222222222222222222222222222"]
oracle:
  mode: attestation
  signer: "0x3333333333333333333333333333333333333333"
hermes:
  enabled: true
  feeds:
    - symbol: ETH/USD
      id: ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace
metering:
  enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(Addresses(cfg.Ledger.Automation)) != 1 {
		t.Fatalf("expected one automation address")
	}
	if cfg.Metering.ServiceID != "AI_VOLATILITY_INFERENCE" {
		t.Fatalf("expected default metering service id, got %s", cfg.Metering.ServiceID)
	}
	if cfg.Hermes.Feeds[0].Symbol != "ETH/USD" {
		t.Fatalf("unexpected hermes feed symbol %s", cfg.Hermes.Feeds[0].Symbol)
	}
}
