package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.ServiceName != "exchange-trader" {
		t.Errorf("unexpected service name: %s", cfg.ServiceName)
	}
	if cfg.Mode != "DRY_RUN" {
		t.Errorf("unexpected default mode: %s", cfg.Mode)
	}
	if cfg.DecisionStream != "trader:decisions" || cfg.EventStream != "trader:events" {
		t.Errorf("unexpected streams: %s, %s", cfg.DecisionStream, cfg.EventStream)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "BTCUSDT" {
		t.Errorf("unexpected symbols: %v", cfg.Symbols)
	}
	if cfg.MaxRetries != 3 || cfg.BaseDelayMs != 500 {
		t.Errorf("unexpected retry defaults: %d, %d", cfg.MaxRetries, cfg.BaseDelayMs)
	}
	if cfg.BreakerClearsOnNewDay {
		t.Error("breaker must not clear on new day by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRADER_MODE", "PAPER")
	t.Setenv("SYMBOLS", "BTCUSDT, ETHUSDT ,SOLUSDT")
	t.Setenv("RISK_MAX_POSITION_PCT", "0.05")
	t.Setenv("RISK_HARD_BLOCK_POLICIES", "MarginLevel")
	t.Setenv("BREAKER_CLEARS_ON_NEW_DAY", "true")

	cfg := Load()
	if cfg.Mode != "PAPER" {
		t.Errorf("unexpected mode: %s", cfg.Mode)
	}
	if len(cfg.Symbols) != 3 || cfg.Symbols[1] != "ETHUSDT" {
		t.Errorf("list not trimmed: %v", cfg.Symbols)
	}
	if cfg.MaxPositionPct != 0.05 {
		t.Errorf("unexpected position pct: %v", cfg.MaxPositionPct)
	}
	if len(cfg.HardBlockPolicies) != 1 || cfg.HardBlockPolicies[0] != "MarginLevel" {
		t.Errorf("unexpected hard block policies: %v", cfg.HardBlockPolicies)
	}
	if !cfg.BreakerClearsOnNewDay {
		t.Error("expected breaker clears-on-new-day enabled")
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("SUBMIT_MAX_RETRIES", "not-a-number")
	t.Setenv("RISK_MAX_LEVERAGE", "abc")

	cfg := Load()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected default retries, got %d", cfg.MaxRetries)
	}
	if cfg.MaxLeverage != 3 {
		t.Errorf("expected default leverage, got %v", cfg.MaxLeverage)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config { return Load() }

	cfg := base()
	cfg.Mode = "BACKTEST"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}

	// LIVE 模式必须提供网关与行情流地址
	cfg = base()
	cfg.Mode = "LIVE"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for LIVE without endpoints")
	}
	cfg.ExchangeBaseURL = "http://localhost:8084"
	cfg.UserStreamURL = "ws://localhost:8084/ws"
	if err := cfg.Validate(); err != nil {
		t.Errorf("LIVE with endpoints must validate: %v", err)
	}

	cfg = base()
	cfg.MinQty = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero MIN_QTY")
	}

	cfg = base()
	cfg.MaxPositionPct = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for position pct above 1")
	}

	cfg = base()
	cfg.Symbols = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty symbols")
	}
}
